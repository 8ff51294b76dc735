package commands

import (
	"context"
	"fmt"
	"sort"

	"ananke/internal/config"
)

type statusCmd struct{}

func (statusCmd) Name() string        { return "status" }
func (statusCmd) Description() string { return "Show configuration, key policy and storage summary" }
func (statusCmd) Usage() string       { return "status" }

func (statusCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	store, done, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer done()

	st, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	usage, err := store.KeyUsage(ctx)
	if err != nil {
		return err
	}

	location := cfg.DatabaseDSN
	if cfg.Backend == config.BackendPostgres {
		// DSN может содержать пароль
		location = "(postgres dsn)"
	}
	policy := store.Policy()
	fmt.Fprintf(Out, "backend:  %s\n", cfg.Backend)
	fmt.Fprintf(Out, "location: %s\n", location)
	fmt.Fprintf(Out, "keyring:  %s\n", cfg.KeyringDir)
	fmt.Fprintf(Out, "key id:   %s (multiple keys allowed: %t)\n", policy.KeyID(), policy.AllowMultipleKeys)
	fmt.Fprintf(Out, "entries:  %d\n", st.Entries)
	fmt.Fprintf(Out, "pairs:    %d (%d live)\n", st.Pairs, st.Live)

	ids := make([]string, 0, len(usage))
	for id := range usage {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(Out, "  %-36s %d\n", id, usage[id])
	}
	return nil
}

func init() { RegisterCmd(statusCmd{}) }
