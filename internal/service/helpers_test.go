package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ananke/internal/crypto"
	"ananke/internal/model"
	"ananke/internal/repo"
)

const (
	keyA = "AAAAAAAAAAAAAAAA"
	keyB = "BBBBBBBBBBBBBBBB"
)

// fakeSealer — обратимый «шифр» для тестов: ciphertext хранит получателей и plaintext.
type fakeSealer struct {
	local    string
	sealErr  error
	unsealed []string
}

func (f *fakeSealer) Seal(plaintext []byte, recipients []string) ([]byte, error) {
	if f.sealErr != nil {
		return nil, f.sealErr
	}
	if len(recipients) == 0 {
		return nil, crypto.ErrNoRecipients
	}
	return []byte("sealed|" + strings.Join(recipients, ",") + "|" + string(plaintext)), nil
}

func (f *fakeSealer) Unseal(ciphertext []byte) ([]byte, error) {
	parts := strings.SplitN(string(ciphertext), "|", 3)
	if len(parts) != 3 || parts[0] != "sealed" {
		return nil, crypto.ErrMalformed
	}
	for _, r := range strings.Split(parts[1], ",") {
		if r == f.local {
			f.unsealed = append(f.unsealed, string(ciphertext))
			return []byte(parts[2]), nil
		}
	}
	return nil, crypto.ErrNotRecipient
}

func sealedFor(plain string, keys ...string) []byte {
	return []byte("sealed|" + strings.Join(keys, ",") + "|" + plain)
}

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// stepClock возвращает часы, которые сдвигаются на секунду при каждом вызове.
func stepClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

func newTestStore(t *testing.T, b repo.Backend, opts ...Option) (*EntryStore, *fakeSealer) {
	t.Helper()
	sealer := &fakeSealer{local: keyA}
	opts = append([]Option{WithClock(stepClock(t0)), WithIDGenerator(seqIDs("id"))}, opts...)
	s, err := NewEntryStore(b, sealer, NewKeyPolicy([]string{keyA}, false), zap.NewNop().Sugar(), opts...)
	require.NoError(t, err)
	return s, sealer
}

func entry(id string, ts time.Time, desc string, identity *string, ct []byte) model.Entry {
	return model.Entry{ID: id, KeyID: keyA, Timestamp: ts, Description: desc, Identity: identity, Ciphertext: ct}
}

func ptr(s string) *string { return &s }

func secrets(r *LookupResult) []string {
	var res []string
	for _, m := range r.Matches {
		res = append(res, string(m.Secret))
	}
	return res
}

var errBoom = errors.New("boom")
