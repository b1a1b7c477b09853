package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type AdminModel struct {
	ID              string `gorm:"primaryKey"`
	Username        string `gorm:"uniqueIndex;not null"`
	Email           string `gorm:"uniqueIndex;not null"`
	PasswordHash    string `gorm:"not null"`
	Name            string `gorm:"not null"`
	Role            string `gorm:"not null"`
	IsActive        bool   `gorm:"not null;default:true"`
	ProfileImageURL string
	ProfileImageID  string
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time
}

type WorkModel struct {
	ID            string  `gorm:"primaryKey"`
	Title         string  `gorm:"not null"`
	Description   string  `gorm:"not null"`
	Author        string  `gorm:"not null;index"`
	Genre         string  `gorm:"not null;index"`
	ISBN          *string `gorm:"uniqueIndex"`
	Pages         int
	Language      string
	Price         float64
	CoverURL      string `gorm:"not null"`
	CoverID       string `gorm:"not null"`
	FileURL       string `gorm:"not null"`
	FileID        string `gorm:"not null"`
	FileName      string
	FileSize      int64
	Tags          datatypes.JSON `gorm:"type:jsonb"`
	Status        string         `gorm:"not null;index"`
	IsPublic      bool           `gorm:"not null;index"`
	DownloadCount int64          `gorm:"not null;default:0"`
	RatingAverage float64
	RatingCount   int
	PublishedDate time.Time
	CreatedBy     string    `gorm:"not null;index"`
	CreatedAt     time.Time `gorm:"not null;index"`
	UpdatedAt     time.Time `gorm:"not null"`
}

type FeedbackModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Email     string `gorm:"not null"`
	Message   string `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}
