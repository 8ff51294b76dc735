// Package keyring keeps the local identity and the public keys of other
// recipients on disk. It is the key-custody side of the cipher boundary.
package keyring

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/box"

	"ananke/internal/crypto"
)

const (
	identityFile = "identity.json"
	pubDir       = "pub"
	pubExt       = ".pub"

	// параметры Argon2id для защиты приватного ключа
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	saltLen      = 16
)

// ErrNoIdentity is returned when the keyring holds no local identity yet.
var ErrNoIdentity = errors.New("no local identity: run `keys init`")

// PassphraseFunc returns the passphrase protecting the local private key.
// An empty passphrase stores the key unprotected.
type PassphraseFunc func() ([]byte, error)

// Keyring — файловое хранилище ключей.
type Keyring struct {
	dir        string
	passphrase PassphraseFunc
}

var _ crypto.KeyResolver = (*Keyring)(nil)

type kdfParams struct {
	Salt    string `json:"salt"`
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
}

type identityDoc struct {
	KeyID         string     `json:"keyId"`
	Public        string     `json:"public"`
	Private       string     `json:"private,omitempty"`
	SealedPrivate string     `json:"sealedPrivate,omitempty"`
	Nonce         string     `json:"nonce,omitempty"`
	KDF           *kdfParams `json:"kdf,omitempty"`
}

// Open открывает (и создаёт при необходимости) каталог ключей.
func Open(dir string, passphrase PassphraseFunc) (*Keyring, error) {
	if dir == "" {
		return nil, errors.New("empty keyring dir")
	}
	if err := os.MkdirAll(filepath.Join(dir, pubDir), 0o700); err != nil {
		return nil, fmt.Errorf("create keyring dir: %w", err)
	}
	if passphrase == nil {
		passphrase = func() ([]byte, error) { return nil, nil }
	}
	return &Keyring{dir: dir, passphrase: passphrase}, nil
}

// Dir returns the keyring directory.
func (k *Keyring) Dir() string { return k.dir }

// HasIdentity reports whether a local identity exists.
func (k *Keyring) HasIdentity() bool {
	_, err := os.Stat(filepath.Join(k.dir, identityFile))
	return err == nil
}

// Generate создаёт новую локальную идентичность. Существующая не перезаписывается.
func (k *Keyring) Generate() (*crypto.Identity, error) {
	if k.HasIdentity() {
		return nil, errors.New("identity already exists")
	}
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	id := &crypto.Identity{KeyID: crypto.KeyIDOf(pub), Public: pub, Private: priv}

	pass, err := k.passphrase()
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	defer crypto.Wipe(pass)

	doc := identityDoc{KeyID: id.KeyID, Public: encodeKey(pub)}
	if len(pass) == 0 {
		doc.Private = encodeKey(priv)
	} else {
		salt := make([]byte, saltLen)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, err
		}
		kek := argon2.IDKey(pass, salt, argonTime, argonMemory, argonThreads, 32)
		defer crypto.Wipe(kek)
		sealed, nonce, err := crypto.Encrypt(priv[:], kek, []byte(id.KeyID))
		if err != nil {
			return nil, fmt.Errorf("protect private key: %w", err)
		}
		doc.SealedPrivate = base64.StdEncoding.EncodeToString(sealed)
		doc.Nonce = base64.StdEncoding.EncodeToString(nonce)
		doc.KDF = &kdfParams{
			Salt:    base64.StdEncoding.EncodeToString(salt),
			Time:    argonTime,
			Memory:  argonMemory,
			Threads: argonThreads,
		}
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(k.dir, identityFile), b); err != nil {
		return nil, fmt.Errorf("write identity: %w", err)
	}
	if err := k.savePublic(id.KeyID, pub); err != nil {
		return nil, err
	}
	return id, nil
}

// Identity загружает локальную идентичность, при необходимости спрашивая пароль.
func (k *Keyring) Identity() (*crypto.Identity, error) {
	b, err := os.ReadFile(filepath.Join(k.dir, identityFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoIdentity
		}
		return nil, err
	}
	var doc identityDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	pub, err := decodeKey(doc.Public)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if crypto.KeyIDOf(pub) != doc.KeyID {
		return nil, fmt.Errorf("identity key id mismatch: %s", doc.KeyID)
	}

	var priv *[32]byte
	if doc.Private != "" {
		priv, err = decodeKey(doc.Private)
		if err != nil {
			return nil, fmt.Errorf("decode private key: %w", err)
		}
	} else {
		priv, err = k.unsealPrivate(doc)
		if err != nil {
			return nil, err
		}
	}
	return &crypto.Identity{KeyID: doc.KeyID, Public: pub, Private: priv}, nil
}

// PublicIdentity loads the local identity without touching the private key.
func (k *Keyring) PublicIdentity() (*crypto.Identity, error) {
	b, err := os.ReadFile(filepath.Join(k.dir, identityFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoIdentity
		}
		return nil, err
	}
	var doc identityDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	pub, err := decodeKey(doc.Public)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	return &crypto.Identity{KeyID: doc.KeyID, Public: pub}, nil
}

// LoadOrCreateIdentity загружает существующую идентичность или создаёт новую.
// Второе значение — true, если идентичность была создана.
func (k *Keyring) LoadOrCreateIdentity() (*crypto.Identity, bool, error) {
	if k.HasIdentity() {
		id, err := k.Identity()
		return id, false, err
	}
	id, err := k.Generate()
	return id, err == nil, err
}

func (k *Keyring) unsealPrivate(doc identityDoc) (*[32]byte, error) {
	if doc.SealedPrivate == "" || doc.KDF == nil {
		return nil, errors.New("identity has no private key")
	}
	sealed, err := base64.StdEncoding.DecodeString(doc.SealedPrivate)
	if err != nil {
		return nil, fmt.Errorf("decode sealed key: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(doc.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(doc.KDF.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	pass, err := k.passphrase()
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	defer crypto.Wipe(pass)
	if len(pass) == 0 {
		return nil, errors.New("identity is passphrase protected: empty passphrase")
	}
	kek := argon2.IDKey(pass, salt, doc.KDF.Time, doc.KDF.Memory, doc.KDF.Threads, 32)
	defer crypto.Wipe(kek)
	raw, err := crypto.Decrypt(sealed, nonce, kek, []byte(doc.KeyID))
	if err != nil {
		return nil, errors.New("wrong passphrase or corrupt identity")
	}
	defer crypto.Wipe(raw)
	if len(raw) != 32 {
		return nil, errors.New("invalid private key length")
	}
	var priv [32]byte
	copy(priv[:], raw)
	return &priv, nil
}

// PublicKey возвращает публичный ключ получателя по идентификатору.
func (k *Keyring) PublicKey(keyID string) (*[32]byte, error) {
	keyID = strings.ToUpper(strings.TrimSpace(keyID))
	b, err := os.ReadFile(filepath.Join(k.dir, pubDir, keyID+pubExt))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no public key %s in keyring", keyID)
		}
		return nil, err
	}
	pub, err := decodeKey(string(bytes.TrimSpace(b)))
	if err != nil {
		return nil, fmt.Errorf("decode public key %s: %w", keyID, err)
	}
	if crypto.KeyIDOf(pub) != keyID {
		return nil, fmt.Errorf("public key file %s does not match its key id", keyID)
	}
	return pub, nil
}

// ImportPublicKey сохраняет чужой публичный ключ (base64) и возвращает его идентификатор.
func (k *Keyring) ImportPublicKey(encoded string) (string, error) {
	pub, err := decodeKey(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("decode public key: %w", err)
	}
	keyID := crypto.KeyIDOf(pub)
	if err := k.savePublic(keyID, pub); err != nil {
		return "", err
	}
	return keyID, nil
}

// ExportPublicKey returns the local public key in its shareable text form.
func (k *Keyring) ExportPublicKey() (string, string, error) {
	id, err := k.PublicIdentity()
	if err != nil {
		return "", "", err
	}
	return id.KeyID, encodeKey(id.Public), nil
}

// List возвращает идентификаторы всех известных публичных ключей.
func (k *Keyring) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(k.dir, pubDir))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), pubExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), pubExt))
	}
	sort.Strings(ids)
	return ids, nil
}

func (k *Keyring) savePublic(keyID string, pub *[32]byte) error {
	p := filepath.Join(k.dir, pubDir, keyID+pubExt)
	if err := writeFile(p, []byte(encodeKey(pub)+"\n")); err != nil {
		return fmt.Errorf("write public key %s: %w", keyID, err)
	}
	return nil
}

func writeFile(path string, b []byte) error {
	if err := atomic.WriteFile(path, bytes.NewReader(b)); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

func encodeKey(k *[32]byte) string {
	return base64.StdEncoding.EncodeToString(k[:])
}

func decodeKey(s string) (*[32]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid key length %d", len(b))
	}
	var k [32]byte
	copy(k[:], b)
	return &k, nil
}
