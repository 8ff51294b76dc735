package crypto

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	lowercase   = "abcdefghijklmnopqrstuvwxyz"
	uppercase   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits      = "0123456789"
	punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// RandomPlaintext генерирует случайную строку заданной длины из выбранных классов символов.
// Строчные буквы используются всегда.
func RandomPlaintext(length int, useUpper, useDigits, usePunct bool) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}
	chars := lowercase
	if useUpper {
		chars += uppercase
	}
	if useDigits {
		chars += digits
	}
	if usePunct {
		chars += punctuation
	}
	max := big.NewInt(int64(len(chars)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = chars[n.Int64()]
	}
	return string(out), nil
}
