package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ananke/internal/model"
	"ananke/internal/repo/memory"
)

func TestLookup_FoomailTwoIdentities(t *testing.T) {
	s, _ := newTestStore(t, memory.New())
	ctx := context.Background()

	_, err := s.Add(ctx, "https://www.foomail.com", ptr("quux"), []byte("pw-quux"), nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, "https://www.foomail.com", ptr("altquux"), []byte("pw-alt"), nil)
	require.NoError(t, err)

	res, err := s.Lookup(ctx, "foomail", nil)
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)
	_, single := res.Single()
	assert.False(t, single)
	assert.Equal(t, "quux", *res.Matches[0].Entry.Identity)
	assert.Equal(t, "altquux", *res.Matches[1].Entry.Identity)
	assert.Equal(t, []string{"pw-quux", "pw-alt"}, secrets(res))

	res, err = s.Lookup(ctx, "foomail", ptr("quux"))
	require.NoError(t, err)
	m, single := res.Single()
	require.True(t, single)
	assert.Equal(t, "pw-quux", string(m.Secret))
}

func TestLookup_BazlibModifySupersedes(t *testing.T) {
	b := memory.New()
	s, _ := newTestStore(t, b)
	ctx := context.Background()

	_, err := s.Add(ctx, "https://www.bazlib.org/", ptr("quux137"), []byte("foopass"), nil)
	require.NoError(t, err)

	res, err := s.Lookup(ctx, "bazlib", nil)
	require.NoError(t, err)
	m, ok := res.Single()
	require.True(t, ok)
	assert.Equal(t, "foopass", string(m.Secret))

	_, err = s.Modify(ctx, Target{Description: "https://www.bazlib.org/", Identity: ptr("quux137")}, []byte("quuxpass"), nil)
	require.NoError(t, err)

	res, err = s.Lookup(ctx, "bazlib", nil)
	require.NoError(t, err)
	m, ok = res.Single()
	require.True(t, ok)
	assert.Equal(t, "quuxpass", string(m.Secret))

	hist, err := s.History(ctx, Target{Description: "bazlib"})
	require.NoError(t, err)
	assert.Len(t, hist, 2)
	assert.Equal(t, 2, b.Len())
}

func TestLookup_NoMatchIsNotFound(t *testing.T) {
	s, _ := newTestStore(t, memory.New())
	ctx := context.Background()

	_, err := s.Lookup(ctx, "anything", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Add(ctx, "https://www.foomail.com", ptr("quux"), []byte("pw"), nil)
	require.NoError(t, err)

	res, err := s.Lookup(ctx, "bazlib", nil)
	assert.Nil(t, res)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "bazlib", nf.Query)

	// фильтр по идентичности тоже может ничего не найти
	_, err = s.Lookup(ctx, "foomail", ptr("nobody"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookup_GreaterTimestampWins(t *testing.T) {
	older := entry("z-old", t0, "example.org", ptr("me"), sealedFor("old", keyA))
	newer := entry("a-new", t0.Add(time.Minute), "example.org", ptr("me"), sealedFor("new", keyA))

	// порядок вставки не влияет на результат
	for _, order := range [][]model.Entry{{older, newer}, {newer, older}} {
		s, _ := newTestStore(t, memory.New(memory.WithEntries(order...)))
		res, err := s.Lookup(context.Background(), "example", nil)
		require.NoError(t, err)
		m, ok := res.Single()
		require.True(t, ok)
		assert.Equal(t, "new", string(m.Secret))
		assert.Equal(t, "a-new", m.Entry.ID)
	}
}

func TestLookup_EqualTimestampsBreakTiesByID(t *testing.T) {
	first := entry("id-a", t0, "example.org", nil, sealedFor("from-a", keyA))
	second := entry("id-b", t0, "example.org", nil, sealedFor("from-b", keyA))

	for _, order := range [][]model.Entry{{first, second}, {second, first}} {
		s, _ := newTestStore(t, memory.New(memory.WithEntries(order...)))
		for i := 0; i < 3; i++ {
			res, err := s.Lookup(context.Background(), "example", nil)
			require.NoError(t, err)
			m, ok := res.Single()
			require.True(t, ok)
			assert.Equal(t, "id-b", m.Entry.ID)
			assert.Equal(t, "from-b", string(m.Secret))
		}
	}
}

func TestLookup_CaseInsensitiveAndOrdered(t *testing.T) {
	b := memory.New(memory.WithEntries(
		entry("3", t0.Add(3*time.Second), "GitHub", nil, sealedFor("gh", keyA)),
		entry("1", t0.Add(time.Second), "github enterprise", nil, sealedFor("ghe", keyA)),
		entry("2", t0.Add(2*time.Second), "gitlab", nil, sealedFor("gl", keyA)),
	))
	s, _ := newTestStore(t, b)

	res, err := s.Lookup(context.Background(), "GITHUB", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ghe", "gh"}, secrets(res))

	res, err = s.Lookup(context.Background(), "git", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ghe", "gl", "gh"}, secrets(res))
}

func TestLookup_UnsealsOnlyAuthoritative(t *testing.T) {
	b := memory.New(memory.WithEntries(
		entry("1", t0, "example.org", nil, []byte("corrupt history")),
		entry("2", t0.Add(time.Second), "example.org", nil, []byte("also corrupt")),
		entry("3", t0.Add(2*time.Second), "example.org", nil, sealedFor("current", keyA)),
	))
	s, sealer := newTestStore(t, b)

	res, err := s.Lookup(context.Background(), "example", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"current"}, secrets(res))
	assert.Len(t, sealer.unsealed, 1)
}

func TestLookup_DecryptionErrorSurfaces(t *testing.T) {
	b := memory.New(memory.WithEntries(entry("1", t0, "example.org", nil, sealedFor("x", keyB))))
	s, _ := newTestStore(t, b)

	_, err := s.Lookup(context.Background(), "example", nil)
	assert.ErrorIs(t, err, ErrDecryption)
	var de *DecryptionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "1", de.EntryID)
}

func TestAdd_RecordsPolicyAndFields(t *testing.T) {
	s, _ := newTestStore(t, memory.New())
	e, err := s.Add(context.Background(), "example.org", ptr("  me "), []byte("pw"), ptr("note"))
	require.NoError(t, err)

	assert.Equal(t, "id-001", e.ID)
	assert.Equal(t, keyA, e.KeyID)
	assert.True(t, e.Timestamp.Equal(t0.Add(time.Second)))
	assert.Equal(t, "me", *e.Identity)
	assert.Equal(t, "note", *e.Meta)
	assert.NotContains(t, e.KeyID, ",")

	e, err = s.Add(context.Background(), "other.org", ptr(""), []byte("pw"), nil)
	require.NoError(t, err)
	assert.Nil(t, e.Identity)
}

func TestAdd_Validation(t *testing.T) {
	b := memory.New()
	s, _ := newTestStore(t, b)
	ctx := context.Background()

	_, err := s.Add(ctx, "  ", nil, []byte("pw"), nil)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.Add(ctx, "example.org", nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.Add(ctx, "example.org", nil, []byte("pw"), ptr(model.TombstoneMarker))
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, 0, b.Len())
}

func TestAdd_EncryptionError(t *testing.T) {
	b := memory.New()
	s, sealer := newTestStore(t, b)
	sealer.sealErr = errBoom

	_, err := s.Add(context.Background(), "example.org", nil, []byte("pw"), nil)
	assert.ErrorIs(t, err, ErrEncryption)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, b.Len())
}

func TestAdd_DuplicateIDIsConflict(t *testing.T) {
	fixedID := func() string { return "same" }

	t.Run("backend enforces uniqueness", func(t *testing.T) {
		b := memory.New()
		s, _ := newTestStore(t, b, WithIDGenerator(fixedID))
		_, err := s.Add(context.Background(), "a", nil, []byte("pw"), nil)
		require.NoError(t, err)
		_, err = s.Add(context.Background(), "b", nil, []byte("pw"), nil)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, 1, b.Len())
	})

	t.Run("store checks for flat-file backends", func(t *testing.T) {
		b := memory.New(memory.WithoutUniqueIDs())
		s, _ := newTestStore(t, b, WithIDGenerator(fixedID))
		_, err := s.Add(context.Background(), "a", nil, []byte("pw"), nil)
		require.NoError(t, err)
		_, err = s.Add(context.Background(), "b", nil, []byte("pw"), nil)
		var ce *ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []string{"same"}, ce.IDs)
		assert.Equal(t, 1, b.Len())
	})
}

func TestModify_NonExistentPairIsNotFound(t *testing.T) {
	b := memory.New()
	s, _ := newTestStore(t, b)
	ctx := context.Background()

	_, err := s.Modify(ctx, Target{Description: "bazlib", Identity: ptr("quux137")}, []byte("x"), nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Add(ctx, "https://www.bazlib.org/", ptr("quux137"), []byte("foopass"), nil)
	require.NoError(t, err)

	_, err = s.Modify(ctx, Target{Description: "bazlib", Identity: ptr("other")}, []byte("x"), nil)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Modify(ctx, Target{ID: "missing"}, []byte("x"), nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, b.Len())
}

func TestModify_AmbiguousFailsClosed(t *testing.T) {
	b := memory.New()
	s, _ := newTestStore(t, b)
	ctx := context.Background()
	_, err := s.Add(ctx, "https://www.foomail.com", ptr("quux"), []byte("1"), nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, "https://www.foomail.com", ptr("altquux"), []byte("2"), nil)
	require.NoError(t, err)

	_, err = s.Modify(ctx, Target{Description: "foomail"}, []byte("3"), nil)
	var ae *AmbiguousError
	require.ErrorAs(t, err, &ae)
	assert.Len(t, ae.Matches, 2)
	assert.Contains(t, ae.Error(), "altquux")

	_, err = s.Remove(ctx, Target{Description: "foomail"})
	assert.ErrorIs(t, err, ErrAmbiguous)
	assert.Equal(t, 2, b.Len())

	_, err = s.Modify(ctx, Target{Description: "foomail", Identity: ptr("altquux")}, []byte("3"), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len())
}

func TestModify_ByIDKeepsSecretAndMeta(t *testing.T) {
	s, _ := newTestStore(t, memory.New())
	ctx := context.Background()
	first, err := s.Add(ctx, "example.org", ptr("me"), []byte("pw"), ptr("note"))
	require.NoError(t, err)

	second, err := s.Modify(ctx, Target{ID: first.ID}, nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.Newer(first))
	assert.Equal(t, "note", *second.Meta)

	// id вытесненной записи указывает на ту же пару
	third, err := s.Modify(ctx, Target{ID: first.ID}, []byte("pw2"), ptr("changed"))
	require.NoError(t, err)
	assert.Equal(t, "changed", *third.Meta)

	res, err := s.Lookup(ctx, "example", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pw2"}, secrets(res))
	assert.Equal(t, third.ID, res.Matches[0].Entry.ID)
}

func TestModify_SealsUnderCurrentPolicy(t *testing.T) {
	b := memory.New(memory.WithEntries(entry("old", t0, "example.org", nil, sealedFor("pw", keyA))))
	sealer := &fakeSealer{local: keyA}
	s, err := NewEntryStore(b, sealer, NewKeyPolicy([]string{keyA, keyB}, true), nil,
		WithClock(stepClock(t0)), WithIDGenerator(seqIDs("n")))
	require.NoError(t, err)

	e, err := s.Modify(context.Background(), Target{Description: "example"}, []byte("pw2"), nil)
	require.NoError(t, err)
	assert.Equal(t, keyA+","+keyB, e.KeyID)
	assert.Equal(t, []string{keyA, keyB}, e.KeyIDs())
}

func TestModify_SuccessorIsNewerEvenWithStalledClock(t *testing.T) {
	frozen := func() time.Time { return t0 }
	b := memory.New(memory.WithEntries(entry("zzz", t0, "example.org", nil, sealedFor("pw", keyA))))
	s, _ := newTestStore(t, b, WithClock(frozen))

	e, err := s.Modify(context.Background(), Target{Description: "example"}, []byte("pw2"), nil)
	require.NoError(t, err)
	assert.True(t, e.Timestamp.After(t0))

	res, err := s.Lookup(context.Background(), "example", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pw2"}, secrets(res))
}

func TestAdd_ReaddAfterRemoveWithStalledClock(t *testing.T) {
	frozen := func() time.Time { return t0 }
	s, _ := newTestStore(t, memory.New(), WithClock(frozen))
	ctx := context.Background()

	_, err := s.Add(ctx, "https://www.bazlib.org/", ptr("quux137"), []byte("foopass"), nil)
	require.NoError(t, err)
	tomb, err := s.Remove(ctx, Target{Description: "bazlib"})
	require.NoError(t, err)

	again, err := s.Add(ctx, "https://www.bazlib.org/", ptr("quux137"), []byte("again"), nil)
	require.NoError(t, err)
	assert.True(t, again.Timestamp.After(tomb.Timestamp))

	res, err := s.Lookup(ctx, "bazlib", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"again"}, secrets(res))
}

func TestAdd_SupersedesFutureDatedTombstone(t *testing.T) {
	future := t0.Add(time.Hour)
	b := memory.New(memory.WithEntries(
		entry("old", t0.Add(-time.Hour), "example.org", ptr("me"), sealedFor("pw", keyA)),
		model.Entry{ID: "tomb", KeyID: keyA, Timestamp: future, Description: "example.org",
			Identity: ptr("me"), Meta: ptr(model.TombstoneMarker)},
	))
	s, _ := newTestStore(t, b)
	ctx := context.Background()

	e, err := s.Add(ctx, "example.org", ptr("me"), []byte("back"), nil)
	require.NoError(t, err)
	assert.True(t, e.Timestamp.Equal(future.Add(time.Nanosecond)))

	res, err := s.Lookup(ctx, "example", ptr("me"))
	require.NoError(t, err)
	assert.Equal(t, []string{"back"}, secrets(res))

	// новая пара не трогает чужие метки времени
	other, err := s.Add(ctx, "other.org", nil, []byte("x"), nil)
	require.NoError(t, err)
	assert.True(t, other.Timestamp.Before(future))
}

func TestIdentityFilterIgnoresSurroundingSpaces(t *testing.T) {
	s, _ := newTestStore(t, memory.New())
	ctx := context.Background()
	_, err := s.Add(ctx, "https://www.foomail.com", ptr(" quux"), []byte("pw-quux"), nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, "https://www.foomail.com", ptr("altquux"), []byte("pw-alt"), nil)
	require.NoError(t, err)

	res, err := s.Lookup(ctx, "foomail", ptr(" quux "))
	require.NoError(t, err)
	assert.Equal(t, []string{"pw-quux"}, secrets(res))

	_, err = s.Modify(ctx, Target{Description: "foomail", Identity: ptr("quux ")}, []byte("pw2"), nil)
	require.NoError(t, err)
	hist, err := s.History(ctx, Target{Description: "foomail", Identity: ptr("  quux")})
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

func TestRemove_TombstoneHidesPairKeepsHistory(t *testing.T) {
	b := memory.New()
	s, _ := newTestStore(t, b)
	ctx := context.Background()

	_, err := s.Add(ctx, "https://www.bazlib.org/", ptr("quux137"), []byte("foopass"), nil)
	require.NoError(t, err)
	_, err = s.Modify(ctx, Target{Description: "bazlib"}, []byte("quuxpass"), nil)
	require.NoError(t, err)

	tomb, err := s.Remove(ctx, Target{Description: "bazlib", Identity: ptr("quux137")})
	require.NoError(t, err)
	assert.True(t, tomb.IsTombstone())
	assert.Equal(t, "quux137", *tomb.Identity)

	_, err = s.Lookup(ctx, "bazlib", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Remove(ctx, Target{Description: "bazlib"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Modify(ctx, Target{ID: tomb.ID}, []byte("x"), nil)
	assert.ErrorIs(t, err, ErrNotFound)

	hist, err := s.History(ctx, Target{Description: "bazlib"})
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.True(t, hist[2].IsTombstone())

	// новая запись возвращает пару
	_, err = s.Add(ctx, "https://www.bazlib.org/", ptr("quux137"), []byte("again"), nil)
	require.NoError(t, err)
	res, err := s.Lookup(ctx, "bazlib", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"again"}, secrets(res))
}

func TestRemove_OtherIdentityUnaffected(t *testing.T) {
	s, _ := newTestStore(t, memory.New())
	ctx := context.Background()
	_, err := s.Add(ctx, "https://www.foomail.com", ptr("quux"), []byte("1"), nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, "https://www.foomail.com", ptr("altquux"), []byte("2"), nil)
	require.NoError(t, err)

	_, err = s.Remove(ctx, Target{Description: "foomail", Identity: ptr("quux")})
	require.NoError(t, err)

	res, err := s.Lookup(ctx, "foomail", nil)
	require.NoError(t, err)
	m, ok := res.Single()
	require.True(t, ok)
	assert.Equal(t, "altquux", *m.Entry.Identity)
}

func TestHistory_Targets(t *testing.T) {
	s, _ := newTestStore(t, memory.New())
	ctx := context.Background()
	a, err := s.Add(ctx, "https://www.foomail.com", ptr("quux"), []byte("1"), nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, "https://www.foomail.com", ptr("altquux"), []byte("2"), nil)
	require.NoError(t, err)

	_, err = s.History(ctx, Target{Description: "foomail"})
	assert.ErrorIs(t, err, ErrAmbiguous)
	_, err = s.History(ctx, Target{Description: "nothing"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.History(ctx, Target{})
	assert.ErrorIs(t, err, ErrInvalid)

	hist, err := s.History(ctx, Target{ID: a.ID})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, a.ID, hist[0].ID)
}

func TestStorageErrorsPropagate(t *testing.T) {
	b := memory.New()
	s, _ := newTestStore(t, b)
	ctx := context.Background()

	b.InsertErr = errBoom
	_, err := s.Add(ctx, "example.org", nil, []byte("pw"), nil)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, errBoom)

	b.InsertErr = nil
	b.ScanErr = errBoom
	_, err = s.Lookup(ctx, "example", nil)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "scan", se.Op)
}

func TestNewEntryStore_Validation(t *testing.T) {
	sealer := &fakeSealer{local: keyA}
	_, err := NewEntryStore(nil, sealer, NewKeyPolicy([]string{keyA}, false), nil)
	assert.Error(t, err)
	_, err = NewEntryStore(memory.New(), nil, NewKeyPolicy([]string{keyA}, false), nil)
	assert.Error(t, err)
	_, err = NewEntryStore(memory.New(), sealer, KeyPolicy{}, nil)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = NewEntryStore(memory.New(), sealer, KeyPolicy{KeyIDs: []string{keyA, keyB}}, nil)
	assert.ErrorIs(t, err, ErrInvalid)

	s, err := NewEntryStore(memory.New(), sealer, KeyPolicy{KeyIDs: []string{" aaaaaaaaaaaaaaaa "}}, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, keyA, s.Policy().KeyID())
}
