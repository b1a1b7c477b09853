package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"inkshelf/pkg/domain"
	"inkshelf/pkg/storage"
	"inkshelf/pkg/store"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// WorkInput carries the metadata for a new work. Tags values may each be a
// comma-separated string; they are normalized to a trimmed list.
type WorkInput struct {
	Title         string
	Description   string
	Author        string
	Genre         string
	ISBN          string
	Pages         int
	Language      string
	Price         float64
	Tags          []string
	Status        string
	IsPublic      *bool
	PublishedDate *time.Time
}

// WorkPatch is a partial update; nil fields retain previous values.
type WorkPatch struct {
	Title         *string
	Description   *string
	Author        *string
	Genre         *string
	ISBN          *string
	Pages         *int
	Language      *string
	Price         *float64
	Tags          []string
	Status        *string
	IsPublic      *bool
	PublishedDate *time.Time
}

// ListQuery is the public listing contract.
type ListQuery struct {
	Search    string
	Genre     string
	Status    string
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

// CreateWork validates metadata, uploads both media objects, and persists the
// record. Each step compensates the previous uploads on failure.
func (a *App) CreateWork(ctx context.Context, creator domain.Admin, in WorkInput, cover, doc *storage.Upload) (domain.Work, error) {
	fields := map[string]string{}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Author = strings.TrimSpace(in.Author)
	in.Genre = strings.TrimSpace(in.Genre)
	in.ISBN = strings.TrimSpace(in.ISBN)
	if in.Title == "" {
		fields["title"] = "Title is required"
	}
	if in.Description == "" {
		fields["description"] = "Description is required"
	}
	if in.Author == "" {
		fields["author"] = "Author is required"
	}
	if in.Genre == "" {
		fields["genre"] = "Genre is required"
	}
	if in.Pages < 0 {
		fields["pages"] = "Pages must be a non-negative number"
	}
	if in.Price < 0 {
		fields["price"] = "Price must be a non-negative number"
	}
	status := domain.StatusDraft
	if in.Status != "" {
		status = domain.WorkStatus(strings.ToLower(strings.TrimSpace(in.Status)))
		if !domain.ValidWorkStatus(status) {
			fields["status"] = "Status must be one of draft, published, archived"
		}
	}
	if cover == nil {
		fields["coverImage"] = "Cover image is required"
	}
	if doc == nil {
		fields["pdfFile"] = "PDF file is required"
	}
	if len(fields) > 0 {
		return domain.Work{}, InvalidFields("Validation failed", fields)
	}

	if in.ISBN != "" {
		if _, ok, err := a.store.GetWorkByISBN(in.ISBN); err != nil {
			return domain.Work{}, fmt.Errorf("check isbn: %w", err)
		} else if ok {
			return domain.Work{}, Conflict("A book with this ISBN already exists")
		}
	}

	pages := in.Pages
	if pages == 0 {
		data, err := io.ReadAll(doc.Reader)
		if err != nil {
			return domain.Work{}, Upstream("Failed to read PDF file", err)
		}
		pages = countPDFPages(data)
		doc.Reader = bytes.NewReader(data)
		doc.Size = int64(len(data))
	}

	coverRef, err := a.media.Upload(ctx, storage.KindCoverImage, *cover)
	if err != nil {
		return domain.Work{}, Upstream("Failed to store cover image", err)
	}
	docRef, err := a.media.Upload(ctx, storage.KindDocument, *doc)
	if err != nil {
		a.deleteMedia(ctx, coverRef.ExternalID)
		return domain.Work{}, Upstream("Failed to store PDF file", err)
	}

	language := strings.TrimSpace(in.Language)
	if language == "" {
		language = "English"
	}
	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}
	now := time.Now().UTC()
	publishedDate := now
	if in.PublishedDate != nil {
		publishedDate = in.PublishedDate.UTC()
	}
	work := domain.Work{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Author:      in.Author,
		Genre:       in.Genre,
		ISBN:        in.ISBN,
		Pages:       pages,
		Language:    language,
		Price:       in.Price,
		CoverImage:  domain.MediaRef{URL: coverRef.URL, ExternalID: coverRef.ExternalID},
		PDFFile: domain.FileRef{
			URL:        docRef.URL,
			ExternalID: docRef.ExternalID,
			Filename:   docRef.Filename,
			SizeBytes:  docRef.SizeBytes,
		},
		Tags:          NormalizeTags(in.Tags),
		Status:        status,
		IsPublic:      isPublic,
		PublishedDate: publishedDate,
		CreatedBy:     creator.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.store.SaveWork(work); err != nil {
		a.deleteMedia(ctx, coverRef.ExternalID)
		a.deleteMedia(ctx, docRef.ExternalID)
		return domain.Work{}, fmt.Errorf("save work: %w", err)
	}
	return work, nil
}

// ListWorks pages through works. Non-admin callers only see published public
// works regardless of the requested filters.
func (a *App) ListWorks(q ListQuery, callerIsAdmin bool) ([]domain.Work, domain.Pagination, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	sortBy := q.SortBy
	if !store.SortableField(sortBy) {
		sortBy = "createdAt"
	}
	sortOrder := strings.ToLower(q.SortOrder)
	if sortOrder != "asc" {
		sortOrder = "desc"
	}

	query := store.WorkQuery{
		Search:    q.Search,
		Genre:     q.Genre,
		SortBy:    sortBy,
		SortOrder: sortOrder,
		Page:      page,
		Limit:     limit,
	}
	if callerIsAdmin {
		if q.Status != "" {
			status := domain.WorkStatus(strings.ToLower(q.Status))
			if !domain.ValidWorkStatus(status) {
				return nil, domain.Pagination{}, Invalid("Status must be one of draft, published, archived")
			}
			query.Status = status
		}
	} else {
		query.VisibleOnly = true
	}

	works, total, err := a.store.ListWorks(query)
	if err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("list works: %w", err)
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	pagination := domain.Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalBooks:  total,
		HasNextPage: int64(page)*int64(limit) < total,
		HasPrevPage: page > 1,
	}
	return works, pagination, nil
}

// GetWork retrieves one work, applying the visibility rule for non-admins.
func (a *App) GetWork(id string, callerIsAdmin bool) (domain.Work, error) {
	work, ok, err := a.store.GetWork(id)
	if err != nil {
		return domain.Work{}, fmt.Errorf("fetch work: %w", err)
	}
	if !ok {
		return domain.Work{}, NotFound("Book not found")
	}
	if !callerIsAdmin && !work.Visible() {
		return domain.Work{}, NotFound("Book not found")
	}
	return work, nil
}

// UpdateWork applies a partial update. New media replaces and then deletes the
// previous remote object.
func (a *App) UpdateWork(ctx context.Context, id string, patch WorkPatch, cover, doc *storage.Upload) (domain.Work, error) {
	work, ok, err := a.store.GetWork(id)
	if err != nil {
		return domain.Work{}, fmt.Errorf("fetch work: %w", err)
	}
	if !ok {
		return domain.Work{}, NotFound("Book not found")
	}

	fields := map[string]string{}
	applyString := func(dst *string, src *string, field, requiredMsg string) {
		if src == nil {
			return
		}
		trimmed := strings.TrimSpace(*src)
		if trimmed == "" && requiredMsg != "" {
			fields[field] = requiredMsg
			return
		}
		*dst = trimmed
	}
	applyString(&work.Title, patch.Title, "title", "Title is required")
	applyString(&work.Description, patch.Description, "description", "Description is required")
	applyString(&work.Author, patch.Author, "author", "Author is required")
	applyString(&work.Genre, patch.Genre, "genre", "Genre is required")
	applyString(&work.Language, patch.Language, "language", "")
	if patch.Pages != nil {
		if *patch.Pages < 0 {
			fields["pages"] = "Pages must be a non-negative number"
		} else {
			work.Pages = *patch.Pages
		}
	}
	if patch.Price != nil {
		if *patch.Price < 0 {
			fields["price"] = "Price must be a non-negative number"
		} else {
			work.Price = *patch.Price
		}
	}
	if patch.Status != nil {
		status := domain.WorkStatus(strings.ToLower(strings.TrimSpace(*patch.Status)))
		if !domain.ValidWorkStatus(status) {
			fields["status"] = "Status must be one of draft, published, archived"
		} else {
			work.Status = status
		}
	}
	if len(fields) > 0 {
		return domain.Work{}, InvalidFields("Validation failed", fields)
	}
	if patch.ISBN != nil {
		isbn := strings.TrimSpace(*patch.ISBN)
		if isbn != "" && isbn != work.ISBN {
			existing, ok, err := a.store.GetWorkByISBN(isbn)
			if err != nil {
				return domain.Work{}, fmt.Errorf("check isbn: %w", err)
			}
			if ok && existing.ID != work.ID {
				return domain.Work{}, Conflict("A book with this ISBN already exists")
			}
		}
		work.ISBN = isbn
	}
	if patch.Tags != nil {
		work.Tags = NormalizeTags(patch.Tags)
	}
	if patch.IsPublic != nil {
		work.IsPublic = *patch.IsPublic
	}
	if patch.PublishedDate != nil {
		work.PublishedDate = patch.PublishedDate.UTC()
	}

	var oldCoverID, oldDocID string
	if cover != nil {
		ref, err := a.media.Upload(ctx, storage.KindCoverImage, *cover)
		if err != nil {
			return domain.Work{}, Upstream("Failed to store cover image", err)
		}
		oldCoverID = work.CoverImage.ExternalID
		work.CoverImage = domain.MediaRef{URL: ref.URL, ExternalID: ref.ExternalID}
	}
	if doc != nil {
		ref, err := a.media.Upload(ctx, storage.KindDocument, *doc)
		if err != nil {
			if cover != nil {
				a.deleteMedia(ctx, work.CoverImage.ExternalID)
			}
			return domain.Work{}, Upstream("Failed to store PDF file", err)
		}
		oldDocID = work.PDFFile.ExternalID
		work.PDFFile = domain.FileRef{
			URL:        ref.URL,
			ExternalID: ref.ExternalID,
			Filename:   ref.Filename,
			SizeBytes:  ref.SizeBytes,
		}
	}

	work.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveWork(work); err != nil {
		if cover != nil {
			a.deleteMedia(ctx, work.CoverImage.ExternalID)
		}
		if doc != nil {
			a.deleteMedia(ctx, work.PDFFile.ExternalID)
		}
		return domain.Work{}, fmt.Errorf("update work: %w", err)
	}
	if oldCoverID != "" {
		a.deleteMedia(ctx, oldCoverID)
	}
	if oldDocID != "" {
		a.deleteMedia(ctx, oldDocID)
	}
	return work, nil
}

// DeleteWork removes the record and both remote media objects. Media deletion
// failures are logged, never surfaced.
func (a *App) DeleteWork(ctx context.Context, id string) error {
	work, ok, err := a.store.GetWork(id)
	if err != nil {
		return fmt.Errorf("fetch work: %w", err)
	}
	if !ok {
		return NotFound("Book not found")
	}
	if err := a.store.DeleteWork(id); err != nil {
		return fmt.Errorf("delete work: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, externalID := range []string{work.CoverImage.ExternalID, work.PDFFile.ExternalID} {
		externalID := externalID
		g.Go(func() error {
			if err := a.media.Delete(gctx, externalID); err != nil {
				slog.Warn("media delete failed", "workId", id, "externalId", externalID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

// ToggleVisibility flips the public flag.
func (a *App) ToggleVisibility(id string) (domain.Work, error) {
	work, ok, err := a.store.GetWork(id)
	if err != nil {
		return domain.Work{}, fmt.Errorf("fetch work: %w", err)
	}
	if !ok {
		return domain.Work{}, NotFound("Book not found")
	}
	work.IsPublic = !work.IsPublic
	work.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveWork(work); err != nil {
		return domain.Work{}, fmt.Errorf("update work: %w", err)
	}
	return work, nil
}

// SetStatus moves the work to a new lifecycle status.
func (a *App) SetStatus(id, status string) (domain.Work, error) {
	parsed := domain.WorkStatus(strings.ToLower(strings.TrimSpace(status)))
	if !domain.ValidWorkStatus(parsed) {
		return domain.Work{}, Invalid("Status must be one of draft, published, archived")
	}
	work, ok, err := a.store.GetWork(id)
	if err != nil {
		return domain.Work{}, fmt.Errorf("fetch work: %w", err)
	}
	if !ok {
		return domain.Work{}, NotFound("Book not found")
	}
	work.Status = parsed
	work.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveWork(work); err != nil {
		return domain.Work{}, fmt.Errorf("update work: %w", err)
	}
	return work, nil
}

// RecordDownload enforces visibility, bumps the counter, and returns a
// presigned URL plus the original filename.
func (a *App) RecordDownload(ctx context.Context, id string, callerIsAdmin bool) (string, string, error) {
	work, err := a.GetWork(id, callerIsAdmin)
	if err != nil {
		return "", "", err
	}
	if err := a.store.IncrementDownloads(id); err != nil {
		return "", "", fmt.Errorf("increment downloads: %w", err)
	}
	url, err := a.media.PresignGet(ctx, work.PDFFile.ExternalID, a.presignExpiry)
	if err != nil {
		return "", "", Upstream("Failed to generate download URL", err)
	}
	return url, work.PDFFile.Filename, nil
}

// Stats returns library-wide aggregate counters.
func (a *App) Stats() (domain.LibraryStats, error) {
	stats, err := a.store.WorkStats()
	if err != nil {
		return domain.LibraryStats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	return stats, nil
}

func (a *App) deleteMedia(ctx context.Context, externalID string) {
	if err := a.media.Delete(ctx, externalID); err != nil {
		slog.Warn("media cleanup failed", "externalId", externalID, "error", err)
	}
}

// countPDFPages returns 0 when the document cannot be parsed. The parser can
// panic on malformed cross-reference tables, so that is trapped here too.
func countPDFPages(data []byte) (pages int) {
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}
