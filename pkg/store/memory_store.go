package store

import (
	"sort"
	"strings"
	"sync"

	"inkshelf/pkg/domain"
)

// MemoryStore keeps all records in-process. It backs tests and local
// development; production uses GormStore.
type MemoryStore struct {
	mu       sync.RWMutex
	admins   map[string]domain.Admin
	works    map[string]domain.Work
	feedback []domain.Feedback
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		admins: make(map[string]domain.Admin),
		works:  make(map[string]domain.Work),
	}
}

// SaveAdmin stores or replaces an admin account.
func (m *MemoryStore) SaveAdmin(a domain.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[a.ID] = a
	return nil
}

// GetAdminByID returns an admin by ID.
func (m *MemoryStore) GetAdminByID(id string) (domain.Admin, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	admin, ok := m.admins[id]
	return admin, ok, nil
}

// GetAdminByEmail returns an admin by email.
func (m *MemoryStore) GetAdminByEmail(email string) (domain.Admin, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, admin := range m.admins {
		if admin.Email == email {
			return admin, true, nil
		}
	}
	return domain.Admin{}, false, nil
}

// GetAdminByUsername returns an admin by username.
func (m *MemoryStore) GetAdminByUsername(username string) (domain.Admin, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, admin := range m.admins {
		if admin.Username == username {
			return admin, true, nil
		}
	}
	return domain.Admin{}, false, nil
}

// HasAdminEmail checks if the email is taken.
func (m *MemoryStore) HasAdminEmail(email string) (bool, error) {
	_, ok, err := m.GetAdminByEmail(email)
	return ok, err
}

// AdminCount returns the number of admin accounts.
func (m *MemoryStore) AdminCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.admins), nil
}

// SaveWork stores or replaces a work record.
func (m *MemoryStore) SaveWork(w domain.Work) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.works[w.ID] = w
	return nil
}

// GetWork retrieves a work by ID.
func (m *MemoryStore) GetWork(id string) (domain.Work, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	work, ok := m.works[id]
	return work, ok, nil
}

// GetWorkByISBN retrieves a work by ISBN.
func (m *MemoryStore) GetWorkByISBN(isbn string) (domain.Work, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, work := range m.works {
		if work.ISBN != "" && work.ISBN == isbn {
			return work, true, nil
		}
	}
	return domain.Work{}, false, nil
}

// DeleteWork removes a work record.
func (m *MemoryStore) DeleteWork(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.works, id)
	return nil
}

// ListWorks filters, sorts, and pages works with the same semantics as the
// Postgres store (substring search, case-insensitive genre match).
func (m *MemoryStore) ListWorks(q WorkQuery) ([]domain.Work, int64, error) {
	m.mu.RLock()
	matched := make([]domain.Work, 0, len(m.works))
	for _, work := range m.works {
		if workMatches(work, q) {
			matched = append(matched, work)
		}
	}
	m.mu.RUnlock()

	sortWorks(matched, q.SortBy, q.SortOrder)

	total := int64(len(matched))
	start := (q.Page - 1) * q.Limit
	if start >= len(matched) {
		return []domain.Work{}, total, nil
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func workMatches(w domain.Work, q WorkQuery) bool {
	if q.VisibleOnly && !w.Visible() {
		return false
	}
	if q.Status != "" && w.Status != q.Status {
		return false
	}
	if genre := strings.TrimSpace(q.Genre); genre != "" {
		if !strings.Contains(strings.ToLower(w.Genre), strings.ToLower(genre)) {
			return false
		}
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		needle := strings.ToLower(search)
		haystack := strings.ToLower(w.Title + " " + w.Description + " " + w.Author + " " + strings.Join(w.Tags, " "))
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func sortWorks(works []domain.Work, sortBy, sortOrder string) {
	asc := strings.EqualFold(sortOrder, "asc")
	less := func(a, b domain.Work) bool {
		switch sortBy {
		case "title":
			return a.Title < b.Title
		case "author":
			return a.Author < b.Author
		case "updatedAt":
			return a.UpdatedAt.Before(b.UpdatedAt)
		case "publishedDate":
			return a.PublishedDate.Before(b.PublishedDate)
		case "downloadCount":
			return a.DownloadCount < b.DownloadCount
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(works, func(i, j int) bool {
		if asc {
			return less(works[i], works[j])
		}
		return less(works[j], works[i])
	})
}

// IncrementDownloads bumps the download counter under the store lock.
func (m *MemoryStore) IncrementDownloads(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work, ok := m.works[id]
	if !ok {
		return nil
	}
	work.DownloadCount++
	m.works[id] = work
	return nil
}

// WorkStats aggregates counters across all works.
func (m *MemoryStore) WorkStats() (domain.LibraryStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := domain.LibraryStats{}
	genres := make(map[string]int64)
	for _, work := range m.works {
		stats.TotalBooks++
		stats.TotalDownloads += work.DownloadCount
		switch work.Status {
		case domain.StatusPublished:
			stats.PublishedBooks++
		case domain.StatusDraft:
			stats.DraftBooks++
		case domain.StatusArchived:
			stats.ArchivedBooks++
		}
		genres[work.Genre]++
	}
	stats.GenreStats = make([]domain.GenreCount, 0, len(genres))
	for genre, count := range genres {
		stats.GenreStats = append(stats.GenreStats, domain.GenreCount{Genre: genre, Count: count})
	}
	sort.Slice(stats.GenreStats, func(i, j int) bool {
		if stats.GenreStats[i].Count != stats.GenreStats[j].Count {
			return stats.GenreStats[i].Count > stats.GenreStats[j].Count
		}
		return stats.GenreStats[i].Genre < stats.GenreStats[j].Genre
	})
	return stats, nil
}

// SaveFeedback appends a feedback message.
func (m *MemoryStore) SaveFeedback(f domain.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, f)
	return nil
}

// Feedback returns stored feedback messages (test helper).
func (m *MemoryStore) Feedback() []domain.Feedback {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Feedback, len(m.feedback))
	copy(out, m.feedback)
	return out
}
