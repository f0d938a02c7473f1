package infrastructure

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourusername/yt-fetch-go/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultHistoryCap = 100

// SQLiteHistoryRepository implements HistoryRepository using SQLite. The
// table is capped: adding an entry beyond the cap evicts the oldest ones.
type SQLiteHistoryRepository struct {
	db         *gorm.DB
	maxEntries int
}

// NewSQLiteHistoryRepository creates a new SQLite history repository at
// dbPath, creating the parent directory when needed
func NewSQLiteHistoryRepository(dbPath string, maxEntries int) (*SQLiteHistoryRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.HistoryEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if maxEntries <= 0 {
		maxEntries = defaultHistoryCap
	}

	return &SQLiteHistoryRepository{db: db, maxEntries: maxEntries}, nil
}

// Create creates a new history entry, evicting the oldest entries beyond
// the cap
func (r *SQLiteHistoryRepository) Create(entry *domain.HistoryEntry) error {
	if err := r.db.Create(entry).Error; err != nil {
		return err
	}
	return r.trimToCap()
}

// Update updates an existing entry
func (r *SQLiteHistoryRepository) Update(entry *domain.HistoryEntry) error {
	return r.db.Save(entry).Error
}

// FindByID finds an entry by task id
func (r *SQLiteHistoryRepository) FindByID(id string) (*domain.HistoryEntry, error) {
	var entry domain.HistoryEntry
	err := r.db.First(&entry, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindRecent returns the most recent entries, newest first
func (r *SQLiteHistoryRepository) FindRecent(limit int) ([]*domain.HistoryEntry, error) {
	if limit <= 0 || limit > r.maxEntries {
		limit = r.maxEntries
	}

	var entries []*domain.HistoryEntry
	err := r.db.Order("downloaded_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// Delete deletes an entry by task id
func (r *SQLiteHistoryRepository) Delete(id string) error {
	return r.db.Delete(&domain.HistoryEntry{}, "id = ?", id).Error
}

// Count returns the total number of entries
func (r *SQLiteHistoryRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&domain.HistoryEntry{}).Count(&count).Error
	return count, err
}

// trimToCap deletes everything older than the newest maxEntries records
func (r *SQLiteHistoryRepository) trimToCap() error {
	keep := r.db.Model(&domain.HistoryEntry{}).
		Select("id").
		Order("downloaded_at DESC").
		Limit(r.maxEntries)
	return r.db.Where("id NOT IN (?)", keep).Delete(&domain.HistoryEntry{}).Error
}

// Close closes the database connection
func (r *SQLiteHistoryRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
