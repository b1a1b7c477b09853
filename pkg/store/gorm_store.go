package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"inkshelf/pkg/domain"
)

const migrateLockID int64 = 48120377

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&AdminModel{}, &WorkModel{}, &FeedbackModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveAdmin registers or updates an admin account.
func (s *GormStore) SaveAdmin(a domain.Admin) error {
	model := adminToModel(a)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "email", "password_hash", "name", "role", "is_active",
			"profile_image_url", "profile_image_id", "updated_at",
		}),
	}).Create(&model).Error
}

// GetAdminByID returns an admin by ID.
func (s *GormStore) GetAdminByID(id string) (domain.Admin, bool, error) {
	var model AdminModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Admin{}, false, nil
		}
		return domain.Admin{}, false, err
	}
	return adminFromModel(model), true, nil
}

// GetAdminByEmail looks up an admin by email.
func (s *GormStore) GetAdminByEmail(email string) (domain.Admin, bool, error) {
	var model AdminModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Admin{}, false, nil
		}
		return domain.Admin{}, false, err
	}
	return adminFromModel(model), true, nil
}

// GetAdminByUsername looks up an admin by username.
func (s *GormStore) GetAdminByUsername(username string) (domain.Admin, bool, error) {
	var model AdminModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Admin{}, false, nil
		}
		return domain.Admin{}, false, err
	}
	return adminFromModel(model), true, nil
}

// HasAdminEmail checks if the email is taken.
func (s *GormStore) HasAdminEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&AdminModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// AdminCount returns the number of admin accounts.
func (s *GormStore) AdminCount() (int, error) {
	var count int64
	if err := s.db.Model(&AdminModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SaveWork stores or updates a work record.
func (s *GormStore) SaveWork(w domain.Work) error {
	model := workToModel(w)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "author", "genre", "isbn", "pages", "language",
			"price", "cover_url", "cover_id", "file_url", "file_id", "file_name",
			"file_size", "tags", "status", "is_public", "rating_average",
			"rating_count", "published_date", "updated_at",
		}),
	}).Create(&model).Error
}

// GetWork retrieves a work by ID.
func (s *GormStore) GetWork(id string) (domain.Work, bool, error) {
	var model WorkModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Work{}, false, nil
		}
		return domain.Work{}, false, err
	}
	return workFromModel(model), true, nil
}

// GetWorkByISBN retrieves a work by its ISBN.
func (s *GormStore) GetWorkByISBN(isbn string) (domain.Work, bool, error) {
	var model WorkModel
	if err := s.db.Where("isbn = ?", isbn).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Work{}, false, nil
		}
		return domain.Work{}, false, err
	}
	return workFromModel(model), true, nil
}

// DeleteWork removes a work record.
func (s *GormStore) DeleteWork(id string) error {
	return s.db.Delete(&WorkModel{}, "id = ?", id).Error
}

// ListWorks returns one page of works matching the query plus the total count.
// Free-text search is a case-insensitive substring match over title,
// description, author, and the serialized tag list.
func (s *GormStore) ListWorks(q WorkQuery) ([]domain.Work, int64, error) {
	tx := s.db.Model(&WorkModel{})
	if search := strings.TrimSpace(q.Search); search != "" {
		like := "%" + search + "%"
		tx = tx.Where(
			"title ILIKE ? OR description ILIKE ? OR author ILIKE ? OR tags::text ILIKE ?",
			like, like, like, like,
		)
	}
	if genre := strings.TrimSpace(q.Genre); genre != "" {
		tx = tx.Where("genre ILIKE ?", "%"+genre+"%")
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", string(q.Status))
	}
	if q.VisibleOnly {
		tx = tx.Where("status = ? AND is_public = ?", string(domain.StatusPublished), true)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		direction = "ASC"
	}

	var models []WorkModel
	if err := tx.Order(column + " " + direction).
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	works := make([]domain.Work, 0, len(models))
	for _, m := range models {
		works = append(works, workFromModel(m))
	}
	return works, total, nil
}

// IncrementDownloads bumps the download counter atomically at the store so
// concurrent downloads never lose updates.
func (s *GormStore) IncrementDownloads(id string) error {
	return s.db.Model(&WorkModel{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}

// WorkStats aggregates counters across all works.
func (s *GormStore) WorkStats() (domain.LibraryStats, error) {
	stats := domain.LibraryStats{}
	if err := s.db.Model(&WorkModel{}).Count(&stats.TotalBooks).Error; err != nil {
		return stats, err
	}
	statusCounts := map[domain.WorkStatus]*int64{
		domain.StatusPublished: &stats.PublishedBooks,
		domain.StatusDraft:     &stats.DraftBooks,
		domain.StatusArchived:  &stats.ArchivedBooks,
	}
	for status, dest := range statusCounts {
		if err := s.db.Model(&WorkModel{}).Where("status = ?", string(status)).Count(dest).Error; err != nil {
			return stats, err
		}
	}
	if err := s.db.Model(&WorkModel{}).
		Select("COALESCE(SUM(download_count), 0)").
		Scan(&stats.TotalDownloads).Error; err != nil {
		return stats, err
	}
	var rows []struct {
		Genre string
		Count int64
	}
	if err := s.db.Model(&WorkModel{}).
		Select("genre, COUNT(*) AS count").
		Group("genre").
		Order("count DESC").
		Scan(&rows).Error; err != nil {
		return stats, err
	}
	stats.GenreStats = make([]domain.GenreCount, 0, len(rows))
	for _, row := range rows {
		stats.GenreStats = append(stats.GenreStats, domain.GenreCount{Genre: row.Genre, Count: row.Count})
	}
	return stats, nil
}

// SaveFeedback appends a feedback message.
func (s *GormStore) SaveFeedback(f domain.Feedback) error {
	model := feedbackToModel(f)
	return s.db.Create(&model).Error
}

func adminToModel(a domain.Admin) AdminModel {
	model := AdminModel{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Name:         a.Name,
		Role:         string(a.Role),
		IsActive:     a.IsActive,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
	if a.ProfileImage != nil {
		model.ProfileImageURL = a.ProfileImage.URL
		model.ProfileImageID = a.ProfileImage.ExternalID
	}
	return model
}

func adminFromModel(m AdminModel) domain.Admin {
	admin := domain.Admin{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Name:         m.Name,
		Role:         domain.AdminRole(m.Role),
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.ProfileImageID != "" {
		admin.ProfileImage = &domain.MediaRef{
			URL:        m.ProfileImageURL,
			ExternalID: m.ProfileImageID,
		}
	}
	return admin
}

func workToModel(w domain.Work) WorkModel {
	var isbn *string
	if strings.TrimSpace(w.ISBN) != "" {
		value := strings.TrimSpace(w.ISBN)
		isbn = &value
	}
	rawTags, _ := json.Marshal(w.Tags)
	return WorkModel{
		ID:            w.ID,
		Title:         w.Title,
		Description:   w.Description,
		Author:        w.Author,
		Genre:         w.Genre,
		ISBN:          isbn,
		Pages:         w.Pages,
		Language:      w.Language,
		Price:         w.Price,
		CoverURL:      w.CoverImage.URL,
		CoverID:       w.CoverImage.ExternalID,
		FileURL:       w.PDFFile.URL,
		FileID:        w.PDFFile.ExternalID,
		FileName:      w.PDFFile.Filename,
		FileSize:      w.PDFFile.SizeBytes,
		Tags:          rawTags,
		Status:        string(w.Status),
		IsPublic:      w.IsPublic,
		DownloadCount: w.DownloadCount,
		RatingAverage: w.Rating.Average,
		RatingCount:   w.Rating.Count,
		PublishedDate: w.PublishedDate,
		CreatedBy:     w.CreatedBy,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

func workFromModel(m WorkModel) domain.Work {
	isbn := ""
	if m.ISBN != nil {
		isbn = *m.ISBN
	}
	var tags []string
	if len(m.Tags) > 0 {
		_ = json.Unmarshal(m.Tags, &tags)
	}
	return domain.Work{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Author:      m.Author,
		Genre:       m.Genre,
		ISBN:        isbn,
		Pages:       m.Pages,
		Language:    m.Language,
		Price:       m.Price,
		CoverImage: domain.MediaRef{
			URL:        m.CoverURL,
			ExternalID: m.CoverID,
		},
		PDFFile: domain.FileRef{
			URL:        m.FileURL,
			ExternalID: m.FileID,
			Filename:   m.FileName,
			SizeBytes:  m.FileSize,
		},
		Tags:          tags,
		Status:        domain.WorkStatus(m.Status),
		IsPublic:      m.IsPublic,
		DownloadCount: m.DownloadCount,
		Rating: domain.Rating{
			Average: m.RatingAverage,
			Count:   m.RatingCount,
		},
		PublishedDate: m.PublishedDate,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func feedbackToModel(f domain.Feedback) FeedbackModel {
	return FeedbackModel{
		ID:        f.ID,
		Name:      f.Name,
		Email:     f.Email,
		Message:   f.Message,
		CreatedAt: f.CreatedAt,
	}
}
