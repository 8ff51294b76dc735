// Package bootstrap wires configuration into a ready entry store.
package bootstrap

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ananke/internal/cli/prompt"
	"ananke/internal/config"
	"ananke/internal/crypto"
	"ananke/internal/keyring"
	"ananke/internal/repo"
	fsrepo "ananke/internal/repo/fs"
	"ananke/internal/repo/sqlite"
	"ananke/internal/service"
)

// ErrNoKey is returned when neither a key id is configured nor a local identity exists.
var ErrNoKey = errors.New("no key configured: run `ananke keys init` or set ANANKE_KEY_ID")

// OpenBackend открывает бэкенд, выбранный в конфигурации.
func OpenBackend(cfg *config.Config) (repo.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return sqlite.Open(cfg.DatabaseDSN)
	case config.BackendPostgres:
		return sqlite.OpenPostgres(cfg.DatabaseDSN)
	case config.BackendJSON:
		return fsrepo.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// OpenKeyring открывает каталог ключей; пароль спрашивается только при необходимости.
func OpenKeyring(cfg *config.Config) (*keyring.Keyring, error) {
	return keyring.Open(cfg.KeyringDir, prompt.PassphraseFunc("Passphrase: "))
}

// OpenEntryStore открывает бэкенд и ключи и собирает хранилище записей.
// Возвращает (store, cleanup, error); cleanup закрывает бэкенд.
func OpenEntryStore(cfg *config.Config, logger *zap.SugaredLogger) (*service.EntryStore, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	kr, err := OpenKeyring(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open keyring: %w", err)
	}

	var localKeyID string
	if id, err := kr.PublicIdentity(); err == nil {
		localKeyID = id.KeyID
	} else if !errors.Is(err, keyring.ErrNoIdentity) {
		return nil, nil, fmt.Errorf("load identity: %w", err)
	}
	policy := cfg.Policy(localKeyID)
	if len(policy.Recipients()) == 0 {
		return nil, nil, ErrNoKey
	}

	backend, err := OpenBackend(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	sealer := crypto.NewLazyBox(kr, kr.Identity)
	store, err := service.NewEntryStore(backend, sealer, policy, logger)
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	logger.Debugw("entry store opened",
		"backend", cfg.Backend,
		"keyId", policy.KeyID(),
		"allowMultipleKeys", policy.AllowMultipleKeys,
	)
	return store, backend.Close, nil
}
