// Package service is the entry store: it layers resolution over the raw
// append-only history kept by a repo.Backend and seals secrets through a
// crypto.Sealer.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ananke/internal/crypto"
	"ananke/internal/model"
	"ananke/internal/repo"
)

// EntryStore — хранилище записей с разрешением «последняя запись пары побеждает».
type EntryStore struct {
	backend repo.Backend
	sealer  crypto.Sealer
	policy  KeyPolicy
	log     *zap.SugaredLogger
	now     func() time.Time
	newID   func() string
}

// Option настраивает EntryStore.
type Option func(*EntryStore)

// WithClock overrides the time source used for new entries.
func WithClock(now func() time.Time) Option {
	return func(s *EntryStore) { s.now = now }
}

// WithIDGenerator overrides entry id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *EntryStore) { s.newID = gen }
}

// NewEntryStore собирает хранилище. policy фиксируется на всё время жизни хранилища.
func NewEntryStore(backend repo.Backend, sealer crypto.Sealer, policy KeyPolicy, logger *zap.SugaredLogger, opts ...Option) (*EntryStore, error) {
	if backend == nil {
		return nil, errors.New("nil backend")
	}
	if sealer == nil {
		return nil, errors.New("nil sealer")
	}
	if err := policy.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &EntryStore{
		backend: backend,
		sealer:  sealer,
		policy:  NewKeyPolicy(policy.KeyIDs, policy.AllowMultipleKeys),
		log:     logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Policy returns the key policy new entries are sealed under.
func (s *EntryStore) Policy() KeyPolicy { return s.policy }

// Target выбирает пару для Modify, Remove и History: по id записи
// либо по подстроке описания с необязательной идентичностью.
type Target struct {
	ID          string
	Description string
	Identity    *string
}

func (t Target) String() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Description
}

// Match — актуальная запись и её расшифрованный секрет.
type Match struct {
	Entry  model.Entry
	Secret []byte
}

// LookupResult holds the authoritative matches of a lookup, oldest first.
type LookupResult struct {
	Matches []Match
}

// Single returns the only match when the lookup resolved to exactly one pair.
func (r *LookupResult) Single() (Match, bool) {
	if r == nil || len(r.Matches) != 1 {
		return Match{}, false
	}
	return r.Matches[0], true
}

// Add создаёт новую запись и запечатывает plaintext по текущей политике ключей.
func (s *EntryStore) Add(ctx context.Context, description string, identity *string, plaintext []byte, meta *string) (model.Entry, error) {
	if strings.TrimSpace(description) == "" {
		return model.Entry{}, invalid("description is required")
	}
	if len(plaintext) == 0 {
		return model.Entry{}, invalid("secret is required")
	}
	if err := model.ValidateMeta(meta); err != nil {
		return model.Entry{}, &ValidationError{Err: err}
	}
	identity = normalizeIdentity(identity)

	entries, err := s.scan(ctx)
	if err != nil {
		return model.Entry{}, err
	}
	ct, err := s.seal(plaintext, description, identity)
	if err != nil {
		return model.Entry{}, err
	}
	e := model.Entry{
		ID:          s.newID(),
		KeyID:       s.policy.KeyID(),
		Timestamp:   s.now().UTC(),
		Description: description,
		Identity:    identity,
		Ciphertext:  ct,
		Meta:        meta,
	}
	// пара уже есть (в том числе надгробие): новая запись должна её вытеснить
	if cur, ok := buildIndex(entries)[e.Pair()]; ok {
		e.Timestamp = s.stamp(cur.Timestamp)
	}
	if err := s.append(ctx, entries, e); err != nil {
		return model.Entry{}, err
	}
	return e, nil
}

// Lookup разрешает запрос в актуальные записи и расшифровывает только их.
// Отсутствие совпадений — NotFoundError.
func (s *EntryStore) Lookup(ctx context.Context, query string, identity *string) (*LookupResult, error) {
	entries, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	current := resolve(entries, query, identity)
	if len(current) == 0 {
		return nil, &NotFoundError{Query: query, Identity: identity}
	}
	res := &LookupResult{Matches: make([]Match, 0, len(current))}
	for _, e := range current {
		secret, err := s.unseal(e)
		if err != nil {
			return nil, err
		}
		res.Matches = append(res.Matches, Match{Entry: e, Secret: secret})
	}
	return res, nil
}

// Modify дописывает преемника актуальной записи пары с новым секретом,
// запечатанным по текущей политике. Пустой plaintext сохраняет прежний секрет,
// nil meta сохраняет прежние метаданные. Новую пару Modify не создаёт.
func (s *EntryStore) Modify(ctx context.Context, target Target, plaintext []byte, meta *string) (model.Entry, error) {
	if err := model.ValidateMeta(meta); err != nil {
		return model.Entry{}, &ValidationError{Err: err}
	}
	entries, err := s.scan(ctx)
	if err != nil {
		return model.Entry{}, err
	}
	cur, err := s.resolveTarget(entries, target)
	if err != nil {
		return model.Entry{}, err
	}

	if len(plaintext) == 0 {
		plaintext, err = s.unseal(cur)
		if err != nil {
			return model.Entry{}, err
		}
		defer crypto.Wipe(plaintext)
	}
	if meta == nil {
		meta = cur.Meta
	}
	ct, err := s.seal(plaintext, cur.Description, cur.Identity)
	if err != nil {
		return model.Entry{}, err
	}
	e := s.successor(cur)
	e.Ciphertext = ct
	e.Meta = meta
	if err := s.append(ctx, entries, e); err != nil {
		return model.Entry{}, err
	}
	return e, nil
}

// Remove дописывает надгробие для пары; история остаётся нетронутой.
func (s *EntryStore) Remove(ctx context.Context, target Target) (model.Entry, error) {
	entries, err := s.scan(ctx)
	if err != nil {
		return model.Entry{}, err
	}
	cur, err := s.resolveTarget(entries, target)
	if err != nil {
		return model.Entry{}, err
	}
	e := s.successor(cur)
	e.Meta = model.StringPtr(model.TombstoneMarker)
	if err := s.append(ctx, entries, e); err != nil {
		return model.Entry{}, err
	}
	return e, nil
}

// History returns every entry of one pair, oldest first, without unsealing.
// Removed pairs are included.
func (s *EntryStore) History(ctx context.Context, target Target) ([]model.Entry, error) {
	entries, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var pair model.Pair
	switch {
	case target.ID != "":
		e, ok := findByID(entries, target.ID)
		if !ok {
			return nil, &NotFoundError{Query: target.ID}
		}
		pair = e.Pair()
	case target.Description != "":
		pairs := matchPairs(entries, target.Description, target.Identity)
		switch len(pairs) {
		case 0:
			return nil, &NotFoundError{Query: target.Description, Identity: target.Identity}
		case 1:
			pair = pairs[0]
		default:
			return nil, &AmbiguousError{Query: target.Description, Matches: pairs}
		}
	default:
		return nil, invalid("entry id or description is required")
	}

	var res []model.Entry
	for _, e := range entries {
		if e.Pair() == pair {
			res = append(res, e)
		}
	}
	sortEntries(res)
	return res, nil
}

// resolveTarget находит единственную живую актуальную запись для target.
func (s *EntryStore) resolveTarget(entries []model.Entry, target Target) (model.Entry, error) {
	if target.ID != "" {
		e, ok := findByID(entries, target.ID)
		if !ok {
			return model.Entry{}, &NotFoundError{Query: target.ID}
		}
		cur := buildIndex(entries)[e.Pair()]
		if cur.IsTombstone() {
			return model.Entry{}, &NotFoundError{Query: target.ID}
		}
		return cur, nil
	}
	if target.Description == "" {
		return model.Entry{}, invalid("entry id or description is required")
	}
	current := resolve(entries, target.Description, target.Identity)
	switch len(current) {
	case 0:
		return model.Entry{}, &NotFoundError{Query: target.Description, Identity: target.Identity}
	case 1:
		return current[0], nil
	default:
		return model.Entry{}, &AmbiguousError{Query: target.Description, Matches: pairsOf(current)}
	}
}

// successor готовит новую запись той же пары, которая гарантированно новее prev.
func (s *EntryStore) successor(prev model.Entry) model.Entry {
	return model.Entry{
		ID:          s.newID(),
		KeyID:       s.policy.KeyID(),
		Timestamp:   s.stamp(prev.Timestamp),
		Description: prev.Description,
		Identity:    prev.Identity,
	}
}

// stamp возвращает текущее время, но строго позже after.
func (s *EntryStore) stamp(after time.Time) time.Time {
	ts := s.now().UTC()
	if !ts.After(after) {
		ts = after.UTC().Add(time.Nanosecond)
	}
	return ts
}

func (s *EntryStore) seal(plaintext []byte, description string, identity *string) ([]byte, error) {
	ct, err := s.sealer.Seal(plaintext, s.policy.Recipients())
	if err != nil {
		return nil, &EncryptionError{Description: description, Identity: identity, Err: err}
	}
	return ct, nil
}

func (s *EntryStore) unseal(e model.Entry) ([]byte, error) {
	plain, err := s.sealer.Unseal(e.Ciphertext)
	if err != nil {
		return nil, &DecryptionError{EntryID: e.ID, Description: e.Description, Err: err}
	}
	return plain, nil
}

func (s *EntryStore) scan(ctx context.Context) ([]model.Entry, error) {
	entries, err := s.backend.ScanAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "scan", Err: err}
	}
	return entries, nil
}

// append вставляет запись. Если бэкенд сам не следит за уникальностью id,
// проверка делается здесь по уже прочитанной истории entries.
func (s *EntryStore) append(ctx context.Context, entries []model.Entry, e model.Entry) error {
	if err := e.Validate(); err != nil {
		return &ValidationError{Err: err}
	}
	if !repo.EnforcesUniqueIDs(s.backend) {
		if _, ok := findByID(entries, e.ID); ok {
			return &ConflictError{IDs: []string{e.ID}}
		}
	}
	if err := s.backend.Insert(ctx, e); err != nil {
		if errors.Is(err, repo.ErrDuplicateID) {
			return &ConflictError{IDs: []string{e.ID}}
		}
		return &StorageError{Op: "insert", Err: err}
	}
	s.log.Debugw("entry appended",
		"id", e.ID,
		"description", e.Description,
		"identity", e.IdentityOrEmpty(),
		"keyId", e.KeyID,
		"tombstone", e.IsTombstone(),
	)
	return nil
}

func normalizeIdentity(identity *string) *string {
	if identity == nil {
		return nil
	}
	return model.StringPtr(strings.TrimSpace(*identity))
}
