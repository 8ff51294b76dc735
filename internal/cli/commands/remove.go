package commands

import (
	"context"
	"fmt"

	"ananke/internal/config"
)

type removeCmd struct{}

func (removeCmd) Name() string        { return "remove" }
func (removeCmd) Description() string { return "Remove an entry (history is kept)" }
func (removeCmd) Usage() string       { return "remove (-d description [-i identity] | -e id)" }

func (removeCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("remove")
	var tf targetFlags
	tf.bind(fs)
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if fs.NArg() != 0 {
		return ErrUsage
	}
	target, err := tf.target()
	if err != nil {
		return err
	}

	store, done, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer done()

	e, err := store.Remove(ctx, target)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "Removed: %s\n", describe(e))
	return nil
}

func init() { RegisterCmd(removeCmd{}) }
