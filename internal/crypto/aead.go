package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

// keyLen — длина ключа для AES‑256 (в байтах).
const keyLen = 32

// NewKey возвращает новый случайный ключ AES‑256.
func NewKey() ([]byte, error) {
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt шифрует данные plain с помощью AES‑GCM и заданного ключа.
// aad аутентифицируется, но не шифруется. Возвращает шифртекст и nonce.
func Encrypt(plain, key, aad []byte) ([]byte, []byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}
	out := gcm.Seal(nil, nonce, plain, aad)
	return out, nonce, nil
}

// Decrypt расшифровывает шифртекст с использованием AES‑GCM, ключа и nonce.
func Decrypt(ciphertext, nonce, key, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, errors.New("invalid nonce size")
	}
	return gcm.Open(nil, nonce, ciphertext, aad)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keyLen {
		return nil, errors.New("invalid key length")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Wipe overwrites key material in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
