package service

import (
	"context"
	"fmt"
	"sort"

	"ananke/internal/crypto"
	"ananke/internal/model"
)

// ImportReport summarizes a successful Import.
type ImportReport struct {
	Imported int
	Total    int
}

// Export возвращает всю историю как есть, без расшифровки.
func (s *EntryStore) Export(ctx context.Context) ([]model.Entry, error) {
	return s.scan(ctx)
}

// Import сливает внешнюю историю с текущей. Любое совпадение id — ConflictError
// со списком всех совпавших id; в этом случае ничего не записывается.
func (s *EntryStore) Import(ctx context.Context, incoming []model.Entry) (ImportReport, error) {
	seen := make(map[string]bool, len(incoming))
	var dups []string
	for i, e := range incoming {
		if err := e.Validate(); err != nil {
			return ImportReport{}, invalid("record %d: %w", i, err)
		}
		if seen[e.ID] {
			dups = append(dups, e.ID)
		}
		seen[e.ID] = true
	}
	if len(dups) > 0 {
		return ImportReport{}, &ConflictError{IDs: dups}
	}

	existing, err := s.scan(ctx)
	if err != nil {
		return ImportReport{}, err
	}
	var collisions []string
	for _, e := range existing {
		if seen[e.ID] {
			collisions = append(collisions, e.ID)
		}
	}
	if len(collisions) > 0 {
		sort.Strings(collisions)
		return ImportReport{}, &ConflictError{IDs: collisions}
	}
	if len(incoming) == 0 {
		return ImportReport{Total: len(existing)}, nil
	}

	merged := make([]model.Entry, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)
	merged = append(merged, incoming...)
	if err := s.backend.ReplaceAll(ctx, merged); err != nil {
		return ImportReport{}, &StorageError{Op: "import", Err: err}
	}
	s.log.Infow("entries imported", "imported", len(incoming), "total", len(merged))
	return ImportReport{Imported: len(incoming), Total: len(merged)}, nil
}

// Compact удаляет вытесненные записи пар, чья актуальная запись — надгробие.
// Само надгробие остаётся, поэтому разрешение всех пар не меняется.
// Возвращает число удалённых записей.
func (s *EntryStore) Compact(ctx context.Context) (int, error) {
	entries, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	idx := buildIndex(entries)
	kept := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		cur := idx[e.Pair()]
		if cur.IsTombstone() && cur.ID != e.ID {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.backend.ReplaceAll(ctx, kept); err != nil {
		return 0, &StorageError{Op: "compact", Err: err}
	}
	s.log.Infow("history compacted", "removed", removed, "remaining", len(kept))
	return removed, nil
}

// Reseal дописывает перезапечатанного преемника для каждой живой актуальной
// записи, чей набор ключей отличается от текущей политики. Возвращает число
// новых записей. Первая ошибка расшифровки прерывает проход.
func (s *EntryStore) Reseal(ctx context.Context) (int, error) {
	entries, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	var stale []model.Entry
	for _, e := range buildIndex(entries) {
		if !e.IsTombstone() && !s.policy.matches(e.KeyID) {
			stale = append(stale, e)
		}
	}
	sortEntries(stale)

	count := 0
	for _, cur := range stale {
		plain, err := s.unseal(cur)
		if err != nil {
			s.log.Warnw("cannot reseal entry", "id", cur.ID, "description", cur.Description, "keyId", cur.KeyID, "error", err)
			return count, err
		}
		ct, err := s.seal(plain, cur.Description, cur.Identity)
		crypto.Wipe(plain)
		if err != nil {
			return count, err
		}
		e := s.successor(cur)
		e.Ciphertext = ct
		e.Meta = cur.Meta
		if err := s.append(ctx, entries, e); err != nil {
			return count, err
		}
		entries = append(entries, e)
		count++
	}
	if count > 0 {
		s.log.Infow("entries resealed", "count", count, "keyId", s.policy.KeyID())
	}
	return count, nil
}

// KeyUsage считает записи с секретом по каждому ключу.
func (s *EntryStore) KeyUsage(ctx context.Context) (map[string]int, error) {
	entries, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	usage := make(map[string]int)
	for _, e := range entries {
		if e.IsTombstone() {
			continue
		}
		for _, id := range e.KeyIDs() {
			usage[id]++
		}
	}
	return usage, nil
}

// Stats is a summary of the stored history.
type Stats struct {
	Entries int
	Pairs   int
	Live    int
}

// Stats считает записи, пары и живые пары.
func (s *EntryStore) Stats(ctx context.Context) (Stats, error) {
	entries, err := s.scan(ctx)
	if err != nil {
		return Stats{}, err
	}
	idx := buildIndex(entries)
	st := Stats{Entries: len(entries), Pairs: len(idx)}
	for _, e := range idx {
		if !e.IsTombstone() {
			st.Live++
		}
	}
	return st, nil
}

func (r ImportReport) String() string {
	return fmt.Sprintf("imported %d entries, %d total", r.Imported, r.Total)
}
