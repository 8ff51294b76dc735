// Package crypto is the cipher boundary: it seals secret payloads for a set
// of recipient keys and unseals them with the local identity. It knows
// nothing about storage; callers must not persist the plaintext it returns.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrUnknownRecipient is returned by Seal when a recipient key id cannot be resolved.
	ErrUnknownRecipient = errors.New("unknown recipient key")
	// ErrNoRecipients is returned by Seal when the recipient list is empty.
	ErrNoRecipients = errors.New("no recipient keys")
	// ErrNotRecipient is returned by Unseal when the ciphertext was not sealed for the local identity.
	ErrNotRecipient = errors.New("ciphertext is not sealed for the local key")
	// ErrMalformed is returned by Unseal for corrupt or tampered ciphertext.
	ErrMalformed = errors.New("malformed ciphertext")
	// ErrNoIdentity is returned by Unseal when no local identity is available.
	ErrNoIdentity = errors.New("no local identity")
)

// Sealer — граница шифрования, которую использует хранилище записей.
type Sealer interface {
	// Seal шифрует plaintext для всех перечисленных получателей.
	Seal(plaintext []byte, recipients []string) ([]byte, error)
	// Unseal расшифровывает ciphertext ключом локальной идентичности.
	Unseal(ciphertext []byte) ([]byte, error)
}

// KeyResolver finds a recipient public key by its key id.
type KeyResolver interface {
	PublicKey(keyID string) (*[32]byte, error)
}

// Identity — локальная пара ключей X25519 и её идентификатор.
type Identity struct {
	KeyID   string
	Public  *[32]byte
	Private *[32]byte
}

// keyIDLen is the raw length of a key id; its text form is twice as long.
const keyIDLen = 8

// KeyIDOf derives the key id of a public key: upper-case hex of the first
// eight bytes of its SHA-256 digest.
func KeyIDOf(pub *[32]byte) string {
	sum := sha256.Sum256(pub[:])
	return strings.ToUpper(hex.EncodeToString(sum[:keyIDLen]))
}

func rawKeyID(keyID string) ([]byte, error) {
	b, err := hex.DecodeString(keyID)
	if err != nil || len(b) != keyIDLen {
		return nil, errors.New("invalid key id " + keyID)
	}
	return b, nil
}
