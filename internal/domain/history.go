package domain

import "time"

// HistoryEntry represents a finished (or in-flight) retrieval recorded for
// the browsing surface. Unlike live task records these are persisted.
type HistoryEntry struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	URL          string    `json:"url" gorm:"not null"`
	Title        string    `json:"title"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
	Uploader     string    `json:"uploader,omitempty"`
	Status       string    `json:"status" gorm:"index"`
	FilePath     string    `json:"file_path,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	Source       string    `json:"source,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// HistoryRepository defines the interface for history persistence
type HistoryRepository interface {
	// Create creates a new history entry
	Create(entry *HistoryEntry) error

	// Update updates an existing entry
	Update(entry *HistoryEntry) error

	// FindByID finds an entry by task id
	FindByID(id string) (*HistoryEntry, error)

	// FindRecent returns the most recent entries, newest first
	FindRecent(limit int) ([]*HistoryEntry, error)

	// Delete deletes an entry by task id
	Delete(id string) error

	// Count returns the total number of entries
	Count() (int64, error)
}
