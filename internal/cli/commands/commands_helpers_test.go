package commands

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"ananke/internal/cli/prompt"
	"ananke/internal/config"
	"ananke/internal/keyring"
)

// withTempConfig строит конфигурацию с каталогами во временной папке,
// чтобы ключи и данные создавались в temp.
func withTempConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(prompt.PassphraseEnvVar, "")
	cfg := &config.Config{
		ConfigDir: filepath.Join(dir, "config"),
		DataDir:   filepath.Join(dir, "data"),
		Backend:   backend,
		LogLevel:  "error",
	}
	cfg.ApplyDefaults()
	return cfg
}

// withIdentity создаёт в keyring локальную идентичность без пароля.
func withIdentity(t *testing.T, cfg *config.Config) string {
	t.Helper()
	kr, err := keyring.Open(cfg.KeyringDir, nil)
	if err != nil {
		t.Fatalf("open keyring: %v", err)
	}
	id, err := kr.Generate()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	return id.KeyID
}

// withInput подменяет ввод секретов на время теста.
func withInput(t *testing.T, lines ...string) {
	t.Helper()
	oldIn, oldErr := prompt.In, prompt.Err
	prompt.In = strings.NewReader(strings.Join(lines, "\n") + "\n")
	prompt.Err = io.Discard
	t.Cleanup(func() { prompt.In, prompt.Err = oldIn, oldErr })
}

// перехват stdout на время теста
func withStdoutCapture(t *testing.T, fn func()) string {
	t.Helper()
	old := Out
	var buf bytes.Buffer
	Out = &buf
	defer func() { Out = old }()
	fn()
	return buf.String()
}

// run выполняет команду и возвращает её вывод.
func run(t *testing.T, cmd Command, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	var err error
	out := withStdoutCapture(t, func() { err = cmd.Run(context.Background(), cfg, args) })
	return out, err
}

// mustRun — run, который валит тест при ошибке.
func mustRun(t *testing.T, cmd Command, cfg *config.Config, args ...string) string {
	t.Helper()
	out, err := run(t, cmd, cfg, args...)
	if err != nil {
		t.Fatalf("%s %v: %v", cmd.Name(), args, err)
	}
	return out
}

// fieldOf достаёт значение поля вида "  id:   value" из вывода команды.
func fieldOf(out, name string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, name+":") {
			return strings.TrimSpace(strings.TrimPrefix(line, name+":"))
		}
	}
	return ""
}
