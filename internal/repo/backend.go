// Package repo defines the durable storage contract for the entry history.
// Backends only persist and return entries; resolution lives in the service layer.
package repo

import (
	"context"
	"errors"

	"ananke/internal/model"
)

// ErrDuplicateID is returned by Insert when an entry with the same id is already stored.
var ErrDuplicateID = errors.New("duplicate entry id")

// Backend — порт долговременного хранения истории записей.
type Backend interface {
	// Insert дописывает одну запись. Неудачная вставка не должна оставлять частичных данных.
	Insert(ctx context.Context, e model.Entry) error

	// ScanAll возвращает всю историю в стабильном порядке. Каждый вызов читает текущее состояние.
	ScanAll(ctx context.Context) ([]model.Entry, error)

	// ReplaceAll атомарно заменяет всю историю: либо полностью, либо никак.
	ReplaceAll(ctx context.Context, entries []model.Entry) error

	Close() error
}

// UniqueEnforcer is implemented by backends that reject duplicate ids
// themselves. Callers must check ids before Insert on backends that do not.
type UniqueEnforcer interface {
	EnforcesUniqueIDs() bool
}

// EnforcesUniqueIDs reports whether b guarantees id uniqueness on Insert.
func EnforcesUniqueIDs(b Backend) bool {
	u, ok := b.(UniqueEnforcer)
	return ok && u.EnforcesUniqueIDs()
}
