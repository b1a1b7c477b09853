package store

import "inkshelf/pkg/domain"

// WorkQuery selects, orders, and pages a work listing.
type WorkQuery struct {
	Search      string
	Genre       string
	Status      domain.WorkStatus
	VisibleOnly bool
	SortBy      string
	SortOrder   string
	Page        int
	Limit       int
}

// Store defines persistence operations for admins, works, and feedback.
type Store interface {
	// admins
	SaveAdmin(domain.Admin) error
	GetAdminByID(id string) (domain.Admin, bool, error)
	GetAdminByEmail(email string) (domain.Admin, bool, error)
	GetAdminByUsername(username string) (domain.Admin, bool, error)
	HasAdminEmail(email string) (bool, error)
	AdminCount() (int, error)

	// works
	SaveWork(domain.Work) error
	GetWork(id string) (domain.Work, bool, error)
	GetWorkByISBN(isbn string) (domain.Work, bool, error)
	DeleteWork(id string) error
	ListWorks(q WorkQuery) ([]domain.Work, int64, error)
	IncrementDownloads(id string) error
	WorkStats() (domain.LibraryStats, error)

	// feedback
	SaveFeedback(domain.Feedback) error
}

// sortColumns maps the public sort field names onto database columns.
// Fields outside this map are rejected before reaching the store.
var sortColumns = map[string]string{
	"title":         "title",
	"author":        "author",
	"createdAt":     "created_at",
	"updatedAt":     "updated_at",
	"publishedDate": "published_date",
	"downloadCount": "download_count",
}

// SortableField reports whether the field is in the sort allow-list.
func SortableField(field string) bool {
	_, ok := sortColumns[field]
	return ok
}
