// Package history persists finished tool jobs in SQLite.
package history

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultLimit is the number of records Recent returns when limit is not positive
const DefaultLimit = 20

// Store handles job history operations
type Store struct {
	db *gorm.DB
}

// Open opens or creates the history database at path. ":memory:" keeps it in memory.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history database path cannot be empty")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// SQLite allows one writer; batch jobs record concurrently.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Record{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}

	return &Store{db: db}, nil
}

// Add saves a record and fills in its ID and CreatedAt
func (s *Store) Add(ctx context.Context, r *Record) error {
	if r.Status == "" {
		r.Status = StatusSucceeded
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("save history record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var records []Record
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return records, nil
}

// Totals sums sizes over successful jobs and counts failures
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var t Totals

	err := s.db.WithContext(ctx).Model(&Record{}).
		Select("COUNT(*) AS jobs, COALESCE(SUM(original_size), 0) AS bytes_in, COALESCE(SUM(output_size), 0) AS bytes_out").
		Where("status = ?", StatusSucceeded).
		Scan(&t).Error
	if err != nil {
		return Totals{}, fmt.Errorf("query history totals: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&Record{}).Where("status = ?", StatusFailed).Count(&t.Failed).Error; err != nil {
		return Totals{}, fmt.Errorf("query history totals: %w", err)
	}

	t.BytesSaved = t.BytesIn - t.BytesOut
	return t, nil
}

// Close releases the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
