// Package memory is an in-process Backend used to test the entry store in
// isolation from real storage engines.
package memory

import (
	"context"
	"fmt"
	"sync"

	"ananke/internal/model"
	"ananke/internal/repo"
)

// Backend хранит записи в срезе в порядке вставки.
type Backend struct {
	mu      sync.Mutex
	entries []model.Entry
	unique  bool

	// Failure hooks: a non-nil error is returned by the matching call
	// without touching the stored entries.
	InsertErr  error
	ScanErr    error
	ReplaceErr error
}

var (
	_ repo.Backend        = (*Backend)(nil)
	_ repo.UniqueEnforcer = (*Backend)(nil)
)

// Option настраивает Backend.
type Option func(*Backend)

// WithoutUniqueIDs makes the backend accept duplicate ids, like the flat-file backend.
func WithoutUniqueIDs() Option {
	return func(b *Backend) { b.unique = false }
}

// WithEntries preloads the history.
func WithEntries(entries ...model.Entry) Option {
	return func(b *Backend) { b.entries = append(b.entries, entries...) }
}

// New returns an empty backend that rejects duplicate ids.
func New(opts ...Option) *Backend {
	b := &Backend{unique: true}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Backend) EnforcesUniqueIDs() bool { return b.unique }

func (b *Backend) Insert(_ context.Context, e model.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.InsertErr != nil {
		return b.InsertErr
	}
	if b.unique {
		for _, cur := range b.entries {
			if cur.ID == e.ID {
				return fmt.Errorf("%w: %s", repo.ErrDuplicateID, e.ID)
			}
		}
	}
	b.entries = append(b.entries, e)
	return nil
}

func (b *Backend) ScanAll(_ context.Context) ([]model.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ScanErr != nil {
		return nil, b.ScanErr
	}
	return append([]model.Entry(nil), b.entries...), nil
}

func (b *Backend) ReplaceAll(_ context.Context, entries []model.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ReplaceErr != nil {
		return b.ReplaceErr
	}
	b.entries = append([]model.Entry(nil), entries...)
	return nil
}

func (b *Backend) Close() error { return nil }

// Len returns the number of stored entries.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
