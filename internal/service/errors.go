package service

import (
	"errors"
	"fmt"
	"strings"

	"ananke/internal/model"
)

// Сентинелы для сравнения через errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrAmbiguous  = errors.New("ambiguous target")
	ErrConflict   = errors.New("conflict")
	ErrEncryption = errors.New("encryption failed")
	ErrDecryption = errors.New("decryption failed")
	ErrStorage    = errors.New("storage failure")
	ErrInvalid    = errors.New("invalid input")
)

// NotFoundError — ни одна актуальная запись не подходит под запрос.
type NotFoundError struct {
	Query    string
	Identity *string
}

func (e *NotFoundError) Error() string {
	if e.Identity != nil {
		return fmt.Sprintf("no entry matches %q with identity %q", e.Query, *e.Identity)
	}
	return fmt.Sprintf("no entry matches %q", e.Query)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AmbiguousError is returned by Modify, Remove and History when a
// description-only target resolves to more than one pair.
type AmbiguousError struct {
	Query   string
	Matches []model.Pair
}

func (e *AmbiguousError) Error() string {
	parts := make([]string, 0, len(e.Matches))
	for _, p := range e.Matches {
		if p.Identity == "" {
			parts = append(parts, p.Description)
		} else {
			parts = append(parts, p.Description+" ("+p.Identity+")")
		}
	}
	return fmt.Sprintf("%q matches %d entries: %s; narrow it with an identity or entry id",
		e.Query, len(e.Matches), strings.Join(parts, ", "))
}

func (e *AmbiguousError) Is(target error) bool { return target == ErrAmbiguous }

// ConflictError — id уже есть в истории.
type ConflictError struct {
	IDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("entry id already present: %s", strings.Join(e.IDs, ", "))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// EncryptionError wraps a Seal failure for the given pair.
type EncryptionError struct {
	Description string
	Identity    *string
	Err         error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("seal %s: %v", describePair(e.Description, e.Identity), e.Err)
}

func (e *EncryptionError) Is(target error) bool { return target == ErrEncryption }
func (e *EncryptionError) Unwrap() error        { return e.Err }

// DecryptionError wraps an Unseal failure for the given entry.
type DecryptionError struct {
	EntryID     string
	Description string
	Err         error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("unseal entry %s (%s): %v", e.EntryID, e.Description, e.Err)
}

func (e *DecryptionError) Is(target error) bool { return target == ErrDecryption }
func (e *DecryptionError) Unwrap() error        { return e.Err }

// StorageError — сбой чтения или записи бэкенда.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
func (e *StorageError) Unwrap() error        { return e.Err }

// ValidationError — некорректные входные данные.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }
func (e *ValidationError) Unwrap() error        { return e.Err }

func invalid(format string, args ...any) error {
	return &ValidationError{Err: fmt.Errorf(format, args...)}
}

func describePair(description string, identity *string) string {
	if identity == nil {
		return fmt.Sprintf("%q", description)
	}
	return fmt.Sprintf("%q (%s)", description, *identity)
}
