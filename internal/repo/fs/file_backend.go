// Package fs is the flat-file backend: the whole history lives in one JSON
// document that is rewritten atomically on every change.
package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"ananke/internal/document"
	"ananke/internal/model"
	"ananke/internal/repo"
)

// FileBackend — файловое хранилище записей.
// Уникальность id не проверяется: это делает хранилище записей перед Insert.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

var _ repo.Backend = (*FileBackend)(nil)

// Open возвращает бэкенд для файла path, создавая каталог при необходимости.
// Отсутствующий файл означает пустую историю.
func Open(path string) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("empty data file path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileBackend{path: path}, nil
}

// Path returns the data file location.
func (b *FileBackend) Path() string { return b.path }

// EnforcesUniqueIDs — нет, файл не индексируется.
func (b *FileBackend) EnforcesUniqueIDs() bool { return false }

// Insert перечитывает файл, дописывает запись и атомарно перезаписывает файл.
func (b *FileBackend) Insert(ctx context.Context, e model.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.read()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.write(append(entries, e)); err != nil {
		return fmt.Errorf("insert entry %s: %w", e.ID, err)
	}
	return nil
}

// ScanAll читает весь файл; порядок — порядок вставки.
func (b *FileBackend) ScanAll(ctx context.Context) ([]model.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.read()
}

// ReplaceAll атомарно подменяет файл новым содержимым.
func (b *FileBackend) ReplaceAll(ctx context.Context, entries []model.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.write(entries); err != nil {
		return fmt.Errorf("replace entries: %w", err)
	}
	return nil
}

// Close — файл не держится открытым.
func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) read() ([]model.Entry, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	entries, err := document.Decode(bytes.NewReader(data), document.JSON)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", b.path, err)
	}
	return entries, nil
}

func (b *FileBackend) write(entries []model.Entry) error {
	data, err := document.Marshal(entries, document.JSON)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(b.path, bytes.NewReader(data)); err != nil {
		return err
	}
	return os.Chmod(b.path, 0o600)
}
