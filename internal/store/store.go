package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a filter matches no record.
var ErrNotFound = errors.New("store: not found")

// DefaultBatchSize bounds list queries used by background tasks.
const DefaultBatchSize = 200

// Store persists wealthvault records via GORM.
type Store struct {
	db *gorm.DB
}

// New constructs a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for packages that run their own transactions.
func (s *Store) DB() *gorm.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store: not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.WithContext(ctx), nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 10*DefaultBatchSize {
		return DefaultBatchSize
	}
	return limit
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
