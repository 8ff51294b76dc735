package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/box"
)

// Формат конверта:
//
//	magic "AKB1" | count uint8 | count × (key id 8 байт | wrapped key 80 байт) | nonce 12 байт | payload
//
// Заголовок (всё до nonce) передаётся в AES-GCM как additional data.
var envelopeMagic = []byte("AKB1")

const (
	wrappedKeyLen = keyLen + box.AnonymousOverhead
	slotLen       = keyIDLen + wrappedKeyLen
	nonceLen      = 12
	maxRecipients = 255
)

// Box seals payloads with a fresh AES-256-GCM data key and wraps that key
// for every recipient with an anonymous NaCl box.
type Box struct {
	keys     KeyResolver
	identity *Identity

	mu   sync.Mutex
	load IdentitySource
}

// IdentitySource loads the local identity, possibly asking for a passphrase.
type IdentitySource func() (*Identity, error)

var _ Sealer = (*Box)(nil)

// NewBox returns a Box that resolves recipients through keys and unseals with
// identity. identity may be nil when only sealing is needed.
func NewBox(keys KeyResolver, identity *Identity) *Box {
	return &Box{keys: keys, identity: identity}
}

// NewLazyBox returns a Box that loads the local identity on the first Unseal,
// so sealing never touches the private key.
func NewLazyBox(keys KeyResolver, load IdentitySource) *Box {
	return &Box{keys: keys, load: load}
}

// Seal шифрует plaintext так, что его может расшифровать любой из получателей.
func (b *Box) Seal(plaintext []byte, recipients []string) ([]byte, error) {
	ids := dedupe(recipients)
	if len(ids) == 0 {
		return nil, ErrNoRecipients
	}
	if len(ids) > maxRecipients {
		return nil, fmt.Errorf("too many recipients: %d", len(ids))
	}

	dataKey, err := NewKey()
	if err != nil {
		return nil, fmt.Errorf("generate data key: %w", err)
	}
	defer Wipe(dataKey)

	var header bytes.Buffer
	header.Write(envelopeMagic)
	header.WriteByte(byte(len(ids)))
	for _, id := range ids {
		raw, err := rawKeyID(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRecipient, id)
		}
		pub, err := b.keys.PublicKey(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnknownRecipient, id, err)
		}
		wrapped, err := box.SealAnonymous(nil, dataKey, pub, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("wrap data key for %s: %w", id, err)
		}
		header.Write(raw)
		header.Write(wrapped)
	}

	payload, nonce, err := Encrypt(plaintext, dataKey, header.Bytes())
	if err != nil {
		return nil, fmt.Errorf("seal payload: %w", err)
	}
	out := make([]byte, 0, header.Len()+len(nonce)+len(payload))
	out = append(out, header.Bytes()...)
	out = append(out, nonce...)
	out = append(out, payload...)
	return out, nil
}

// Unseal расшифровывает конверт ключом локальной идентичности.
func (b *Box) Unseal(ciphertext []byte) ([]byte, error) {
	id, err := b.localIdentity()
	if err != nil {
		return nil, err
	}
	env, err := parseEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	own, err := rawKeyID(id.KeyID)
	if err != nil {
		return nil, err
	}
	var wrapped []byte
	for _, s := range env.slots {
		if bytes.Equal(s.keyID, own) {
			wrapped = s.wrapped
			break
		}
	}
	if wrapped == nil {
		return nil, fmt.Errorf("%w (%s)", ErrNotRecipient, id.KeyID)
	}
	dataKey, ok := box.OpenAnonymous(nil, wrapped, id.Public, id.Private)
	if !ok {
		return nil, fmt.Errorf("%w: cannot unwrap data key", ErrMalformed)
	}
	defer Wipe(dataKey)
	plain, err := Decrypt(env.payload, env.nonce, dataKey, env.header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return plain, nil
}

// localIdentity возвращает локальную идентичность, загружая её один раз.
func (b *Box) localIdentity() (*Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.identity == nil && b.load != nil {
		id, err := b.load()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoIdentity, err)
		}
		b.identity = id
	}
	if b.identity == nil || b.identity.Private == nil {
		return nil, ErrNoIdentity
	}
	return b.identity, nil
}

// Recipients lists the key ids a ciphertext was sealed for.
func Recipients(ciphertext []byte) ([]string, error) {
	env, err := parseEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	res := make([]string, 0, len(env.slots))
	for _, s := range env.slots {
		res = append(res, strings.ToUpper(fmt.Sprintf("%x", s.keyID)))
	}
	return res, nil
}

type slot struct {
	keyID   []byte
	wrapped []byte
}

type envelope struct {
	header  []byte
	slots   []slot
	nonce   []byte
	payload []byte
}

func parseEnvelope(data []byte) (*envelope, error) {
	r := bytes.NewReader(data)
	magic := make([]byte, len(envelopeMagic))
	if _, err := r.Read(magic); err != nil || !bytes.Equal(magic, envelopeMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformed)
	}
	var count uint8
	if err := binary.Read(r, binary.BigEndian, &count); err != nil || count == 0 {
		return nil, fmt.Errorf("%w: bad recipient count", ErrMalformed)
	}
	headerLen := len(envelopeMagic) + 1 + int(count)*slotLen
	if len(data) < headerLen+nonceLen {
		return nil, fmt.Errorf("%w: truncated", ErrMalformed)
	}
	env := &envelope{
		header:  data[:headerLen],
		nonce:   data[headerLen : headerLen+nonceLen],
		payload: data[headerLen+nonceLen:],
	}
	off := len(envelopeMagic) + 1
	for i := 0; i < int(count); i++ {
		env.slots = append(env.slots, slot{
			keyID:   data[off : off+keyIDLen],
			wrapped: data[off+keyIDLen : off+slotLen],
		})
		off += slotLen
	}
	return env, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		res = append(res, id)
	}
	return res
}
