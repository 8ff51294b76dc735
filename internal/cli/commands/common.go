package commands

import (
	"flag"
	"io"
	"strings"

	"ananke/internal/cli/bootstrap"
	"ananke/internal/cli/prompt"
	"ananke/internal/config"
	"ananke/internal/crypto"
	"ananke/internal/logger"
	"ananke/internal/model"
	"ananke/internal/service"
)

const plaintextPrompt = "Enter plaintext: "

// openStore собирает хранилище записей; cleanup закрывает бэкенд и сбрасывает логгер.
func openStore(cfg *config.Config) (*service.EntryStore, func(), error) {
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	store, closeFn, err := bootstrap.OpenEntryStore(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		_ = closeFn()
		_ = log.Sync()
	}, nil
}

// newFlagSet — набор флагов подкоманды; флаги допускаются только перед позиционными аргументами.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// optString — строковый флаг, который помнит, был ли он задан.
type optString struct {
	val string
	set bool
}

func (o *optString) String() string { return o.val }

func (o *optString) Set(s string) error {
	o.val = s
	o.set = true
	return nil
}

func (o *optString) ptr() *string {
	if !o.set {
		return nil
	}
	v := o.val
	return &v
}

// secretSource задаёт, откуда берётся секрет: из ввода или генератора.
type secretSource struct {
	length int
	upper  bool
	digits bool
	punct  bool
}

func (s *secretSource) bind(fs *flag.FlagSet) {
	fs.IntVar(&s.length, "g", 0, "generate a random secret of N characters")
	fs.BoolVar(&s.upper, "upper", true, "generated secret uses upper-case letters")
	fs.BoolVar(&s.digits, "digits", true, "generated secret uses digits")
	fs.BoolVar(&s.punct, "punct", false, "generated secret uses punctuation")
}

func (s *secretSource) generating() bool { return s.length > 0 }

// read возвращает секрет и признак того, что он сгенерирован.
func (s *secretSource) read() ([]byte, bool, error) {
	if s.length < 0 {
		return nil, false, ErrUsage
	}
	if s.generating() {
		p, err := crypto.RandomPlaintext(s.length, s.upper, s.digits, s.punct)
		if err != nil {
			return nil, false, err
		}
		return []byte(p), true, nil
	}
	p, err := prompt.Secret(plaintextPrompt)
	return p, false, err
}

// targetFlags — выбор пары по описанию или по id записи.
type targetFlags struct {
	description string
	entryID     string
	identity    optString
}

func (t *targetFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&t.description, "d", "", "URL or description")
	fs.StringVar(&t.entryID, "e", "", "entry id")
	fs.Var(&t.identity, "i", "username or email address")
}

// target требует ровно один из -d и -e.
func (t *targetFlags) target() (service.Target, error) {
	if (t.description == "") == (t.entryID == "") {
		return service.Target{}, ErrUsage
	}
	if t.entryID != "" && t.identity.set {
		return service.Target{}, ErrUsage
	}
	return service.Target{
		ID:          strings.TrimSpace(t.entryID),
		Description: t.description,
		Identity:    t.identity.ptr(),
	}, nil
}

func formatTimestamp(e model.Entry) string {
	return e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

// formatVerbose: timestamp id keyId description [identity] secret ["meta"]
func formatVerbose(e model.Entry, secret []byte) string {
	parts := []string{formatTimestamp(e), e.ID, e.KeyID, e.Description}
	if e.Identity != nil {
		parts = append(parts, *e.Identity)
	}
	parts = append(parts, string(secret))
	if e.Meta != nil {
		parts = append(parts, `"`+*e.Meta+`"`)
	}
	return strings.Join(parts, " ")
}

func describe(e model.Entry) string {
	if e.Identity == nil {
		return e.Description
	}
	return e.Description + " (" + *e.Identity + ")"
}
