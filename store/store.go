// Package store is the typed query layer over the RunTogether database.
package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Page sizes for message history.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrEventFull  = errors.New("event is full")
	ErrNotPending = errors.New("request already processed")
)

// Store wraps a gorm connection.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// translate maps gorm errors onto the store sentinels, wrapping anything
// else with op for context.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrForbidden),
		errors.Is(err, ErrEventFull), errors.Is(err, ErrNotPending):
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ClampLimit bounds a requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
