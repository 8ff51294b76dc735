package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TombstoneMarker — значение meta, которым помечается запись-надгробие (логическое удаление пары).
const TombstoneMarker = "ananke:tombstone"

// Entry — неизменяемая историческая запись: зашифрованный секрет под описанием/идентичностью.
type Entry struct {
	ID          string
	KeyID       string // один ключ или несколько через запятую
	Timestamp   time.Time
	Description string
	Identity    *string
	Ciphertext  []byte
	Meta        *string
}

// Pair identifies the supersession group an entry belongs to.
type Pair struct {
	Description string
	Identity    string
}

// Pair returns the (description, identity) group key; a missing identity is the empty string.
func (e Entry) Pair() Pair {
	return Pair{Description: e.Description, Identity: e.IdentityOrEmpty()}
}

// IdentityOrEmpty разыменовывает необязательную идентичность.
func (e Entry) IdentityOrEmpty() string {
	if e.Identity == nil {
		return ""
	}
	return *e.Identity
}

// IsTombstone reports whether the entry marks its pair as removed.
func (e Entry) IsTombstone() bool {
	return e.Meta != nil && *e.Meta == TombstoneMarker && len(e.Ciphertext) == 0
}

// KeyIDs splits the recorded key id set.
func (e Entry) KeyIDs() []string {
	return SplitKeyIDs(e.KeyID)
}

// Newer reports whether e supersedes other: later timestamp wins, equal timestamps fall back to id order.
func (e Entry) Newer(other Entry) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.After(other.Timestamp)
	}
	return e.ID > other.ID
}

// Validate проверяет обязательные поля записи.
func (e Entry) Validate() error {
	if e.ID == "" {
		return errors.New("id is required")
	}
	if e.KeyID == "" {
		return fmt.Errorf("entry %s: key id is required", e.ID)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("entry %s: timestamp is required", e.ID)
	}
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("entry %s: description is required", e.ID)
	}
	if len(e.Ciphertext) == 0 && !e.IsTombstone() {
		return fmt.Errorf("entry %s: ciphertext is required", e.ID)
	}
	return nil
}

// ValidateMeta rejects user metadata that would collide with the tombstone marker.
func ValidateMeta(meta *string) error {
	if meta != nil && *meta == TombstoneMarker {
		return fmt.Errorf("meta %q is reserved", TombstoneMarker)
	}
	return nil
}

// JoinKeyIDs собирает набор ключей в строку для поля keyId.
func JoinKeyIDs(ids []string) string {
	return strings.Join(ids, ",")
}

// SplitKeyIDs разбирает поле keyId, отбрасывая пустые элементы.
func SplitKeyIDs(s string) []string {
	var res []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
