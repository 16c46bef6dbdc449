package store

import (
	"time"
)

// User is an account that may act as the author of imported entities.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;size:100" json:"username"`
	Email     string    `gorm:"uniqueIndex;size:255" json:"email"`
	Token     string    `gorm:"uniqueIndex;size:64" json:"-"` // API token, hidden from JSON
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntryRow is the persisted form of an entity. The attribute values
// live in a JSON document; publish state and audit actors are lifted
// into columns so they can be queried without decoding the document.
type EntryRow struct {
	ID          uint       `gorm:"primaryKey"`
	Model       string     `gorm:"index;size:100"`
	Document    string     `gorm:"type:text"`
	PublishedAt *time.Time `gorm:"index"`
	CreatedByID uint
	UpdatedByID uint
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// File is a media library record. The pipeline only tracks metadata;
// downloading and caching file bytes belongs to other services.
type File struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"index;size:512" json:"name"`
	URL         string    `gorm:"index;size:2048" json:"url"`
	Hash        string    `gorm:"index;size:64" json:"hash,omitempty"`
	Mime        string    `gorm:"size:128" json:"mime,omitempty"`
	Kind        string    `gorm:"size:20" json:"kind"` // images, videos, audios, files
	Size        int64     `json:"size,omitempty"`
	AltText     string    `gorm:"size:512" json:"alt_text,omitempty"`
	Caption     string    `gorm:"size:512" json:"caption,omitempty"`
	CreatedByID uint      `gorm:"index" json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ImportStatus string

const (
	ImportStatusRunning   ImportStatus = "running"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusFailed    ImportStatus = "failed"
)

// ImportSession records one import call for audit purposes.
type ImportSession struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	UserID        uint         `gorm:"index" json:"user_id"`
	Model         string       `gorm:"index;size:100" json:"model"`
	Format        string       `gorm:"size:30" json:"format"`
	Status        ImportStatus `gorm:"size:20" json:"status"`
	TotalRecords  int          `json:"total_records"`
	FailedRecords int          `json:"failed_records"`
	Error         string       `gorm:"type:text" json:"error,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    *time.Time   `json:"finished_at,omitempty"`
}
