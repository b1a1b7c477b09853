package domain

import "time"

type WorkStatus string

const (
	StatusDraft     WorkStatus = "draft"
	StatusPublished WorkStatus = "published"
	StatusArchived  WorkStatus = "archived"
)

// ValidWorkStatus reports whether s is one of the fixed status values.
func ValidWorkStatus(s WorkStatus) bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

type AdminRole string

const (
	RoleAdmin      AdminRole = "admin"
	RoleSuperAdmin AdminRole = "superadmin"
)

// MediaRef points at an object stored on the media host.
type MediaRef struct {
	URL        string `json:"url"`
	ExternalID string `json:"publicId"`
}

// FileRef is a MediaRef plus the original file details.
type FileRef struct {
	URL        string `json:"url"`
	ExternalID string `json:"publicId"`
	Filename   string `json:"filename"`
	SizeBytes  int64  `json:"size"`
}

type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type Admin struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         AdminRole `json:"role"`
	IsActive     bool      `json:"isActive"`
	ProfileImage *MediaRef `json:"profileImage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Work struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Author        string     `json:"author"`
	Genre         string     `json:"genre"`
	ISBN          string     `json:"isbn,omitempty"`
	Pages         int        `json:"pages,omitempty"`
	Language      string     `json:"language"`
	Price         float64    `json:"price,omitempty"`
	CoverImage    MediaRef   `json:"coverImage"`
	PDFFile       FileRef    `json:"pdfFile"`
	Tags          []string   `json:"tags"`
	Status        WorkStatus `json:"status"`
	IsPublic      bool       `json:"isPublic"`
	DownloadCount int64      `json:"downloadCount"`
	Rating        Rating     `json:"rating"`
	PublishedDate time.Time  `json:"publishedDate"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Visible reports whether a non-admin caller may see the work.
func (w Work) Visible() bool {
	return w.Status == StatusPublished && w.IsPublic
}

type Feedback struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Pagination describes one page of a list result.
type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalBooks  int64 `json:"totalBooks"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

type GenreCount struct {
	Genre string `json:"genre"`
	Count int64  `json:"count"`
}

// LibraryStats aggregates counters across all works.
type LibraryStats struct {
	TotalBooks     int64        `json:"totalBooks"`
	PublishedBooks int64        `json:"publishedBooks"`
	DraftBooks     int64        `json:"draftBooks"`
	ArchivedBooks  int64        `json:"archivedBooks"`
	TotalDownloads int64        `json:"totalDownloads"`
	GenreStats     []GenreCount `json:"genreStats"`
}
