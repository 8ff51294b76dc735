package commands

import (
	"context"
	"fmt"

	"ananke/internal/config"
)

type compactCmd struct{}

func (compactCmd) Name() string { return "compact" }
func (compactCmd) Description() string {
	return "Drop superseded versions of removed entries"
}
func (compactCmd) Usage() string { return "compact" }

func (compactCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	store, done, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer done()

	n, err := store.Compact(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "Compacted: %d entries dropped\n", n)
	return nil
}

type resealCmd struct{}

func (resealCmd) Name() string { return "reseal" }
func (resealCmd) Description() string {
	return "Re-seal current entries whose key id differs from the configured key(s)"
}
func (resealCmd) Usage() string { return "reseal" }

func (resealCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	store, done, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer done()

	n, err := store.Reseal(ctx)
	if err != nil {
		return fmt.Errorf("resealed %d before failure: %w", n, err)
	}
	fmt.Fprintf(Out, "Resealed: %d entries for %s\n", n, store.Policy().KeyID())
	return nil
}

func init() {
	RegisterCmd(compactCmd{})
	RegisterCmd(resealCmd{})
}
