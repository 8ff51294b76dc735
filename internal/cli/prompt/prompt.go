// Package prompt reads secrets and passphrases: from the environment first,
// then from the terminal without echo, or line by line when input is piped.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"ananke/internal/crypto"
)

// PassphraseEnvVar — переменная окружения с паролем ключа.
const PassphraseEnvVar = "ANANKE_PASSPHRASE"

var (
	// In — источник ввода; в тестах подменяется.
	In io.Reader = os.Stdin
	// Err — куда печатаются приглашения.
	Err io.Writer = os.Stderr
)

// Secret читает секрет без эха. Пустой ввод — ошибка.
func Secret(label string) ([]byte, error) {
	s, err := read(label)
	if err != nil {
		return nil, err
	}
	if len(s) == 0 {
		return nil, errors.New("empty secret")
	}
	return s, nil
}

// Passphrase returns the keyring passphrase from ANANKE_PASSPHRASE or asks for it.
func Passphrase(label string) ([]byte, error) {
	if env := os.Getenv(PassphraseEnvVar); env != "" {
		return []byte(env), nil
	}
	return read(label)
}

// PassphraseWithConfirm asks twice and fails when the answers differ.
func PassphraseWithConfirm(label, confirmLabel string) ([]byte, error) {
	if env := os.Getenv(PassphraseEnvVar); env != "" {
		return []byte(env), nil
	}
	first, err := read(label)
	if err != nil {
		return nil, err
	}
	second, err := read(confirmLabel)
	if err != nil {
		crypto.Wipe(first)
		return nil, err
	}
	defer crypto.Wipe(second)
	if !bytes.Equal(first, second) {
		crypto.Wipe(first)
		return nil, errors.New("passphrases do not match")
	}
	return first, nil
}

// PassphraseFunc adapts Passphrase to the keyring callback.
func PassphraseFunc(label string) func() ([]byte, error) {
	return func() ([]byte, error) { return Passphrase(label) }
}

// ConfirmedPassphraseFunc adapts PassphraseWithConfirm to the keyring callback.
func ConfirmedPassphraseFunc(label, confirmLabel string) func() ([]byte, error) {
	return func() ([]byte, error) { return PassphraseWithConfirm(label, confirmLabel) }
}

func read(label string) ([]byte, error) {
	fmt.Fprint(Err, label)
	if f, ok := In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(Err)
		if err != nil {
			return nil, fmt.Errorf("read from terminal: %w", err)
		}
		return s, nil
	}
	return readLine(In)
}

// readLine читает одну строку побайтно, чтобы не забирать из потока лишнее.
func readLine(r io.Reader) ([]byte, error) {
	var line []byte
	b := make([]byte, 1)
	for {
		n, err := r.Read(b)
		if n == 1 {
			if b[0] == '\n' {
				break
			}
			line = append(line, b[0])
		}
		if err == io.EOF {
			if len(line) == 0 {
				return nil, errors.New("no input")
			}
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return bytes.TrimSuffix(line, []byte("\r")), nil
}
