package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"ananke/internal/model"
	"ananke/internal/service"
)

// Поддерживаемые бэкенды хранения.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendJSON     = "json"
)

const appName = "ananke"

type Config struct {
	// Каталоги
	ConfigDir  string `env:"ANANKE_CONFIG_DIR"`
	DataDir    string `env:"ANANKE_DATA_DIR"`
	KeyringDir string `env:"ANANKE_KEYRING_DIR"`

	// Хранилище
	Backend     string `env:"ANANKE_BACKEND"`
	DatabaseDSN string `env:"ANANKE_DATABASE_URI"` // путь к файлу для sqlite/json, DSN для postgres

	// Политика ключей
	KeyID             string `env:"ANANKE_KEY_ID"` // один или несколько id через запятую
	AllowMultipleKeys bool   `env:"ANANKE_ALLOW_MULTIPLE_KEYS"`

	LogLevel string `env:"ANANKE_LOG_LEVEL"`
	Version  bool   `env:"-"` // show version and exit (flag only)
}

func NewConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	_ = env.Parse(cfg)

	// значения из env служат умолчаниями для флагов
	flag.StringVar(&cfg.ConfigDir, "config-dir", cfg.ConfigDir, "configuration directory")
	flag.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	flag.StringVar(&cfg.KeyringDir, "keyring", cfg.KeyringDir, "keyring directory")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "storage backend: sqlite, postgres or json")
	flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database path (sqlite, json) or connection string (postgres)")
	flag.StringVar(&cfg.KeyID, "key-id", cfg.KeyID, "recipient key id(s), comma separated")
	flag.BoolVar(&cfg.AllowMultipleKeys, "allow-multiple-keys", cfg.AllowMultipleKeys, "seal new secrets for every listed key id")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	flag.BoolVar(&cfg.Version, "version", cfg.Version, "Show version and exit")

	flag.Parse()

	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults заполняет незаданные поля значениями по умолчанию.
func (c *Config) ApplyDefaults() {
	home, _ := os.UserHomeDir()
	if c.ConfigDir == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			c.ConfigDir = filepath.Join(dir, appName)
		} else {
			c.ConfigDir = filepath.Join(home, ".config", appName)
		}
	}
	if c.DataDir == "" {
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			c.DataDir = filepath.Join(xdg, appName)
		} else {
			c.DataDir = filepath.Join(home, ".local", "share", appName)
		}
	}
	if c.KeyringDir == "" {
		c.KeyringDir = filepath.Join(c.ConfigDir, "keys")
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.DatabaseDSN == "" {
		switch c.Backend {
		case BackendSQLite:
			c.DatabaseDSN = filepath.Join(c.DataDir, "db", appName+".db")
		case BackendJSON:
			c.DatabaseDSN = filepath.Join(c.DataDir, appName+".json")
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendJSON:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("%s backend needs a data file path", c.Backend)
		}
	case BackendPostgres:
		if c.DatabaseDSN == "" {
			return errors.New("postgres backend needs a connection string (-d or ANANKE_DATABASE_URI)")
		}
	default:
		return fmt.Errorf("unknown backend %q (want sqlite, postgres or json)", c.Backend)
	}
	if c.KeyringDir == "" {
		return errors.New("keyring directory is not set")
	}
	return nil
}

// Policy возвращает политику ключей. Без явно заданных id используется fallbackKeyID
// (обычно id локальной идентичности).
func (c *Config) Policy(fallbackKeyID string) service.KeyPolicy {
	ids := model.SplitKeyIDs(c.KeyID)
	if len(ids) == 0 && fallbackKeyID != "" {
		ids = []string{fallbackKeyID}
	}
	return service.NewKeyPolicy(ids, c.AllowMultipleKeys)
}
