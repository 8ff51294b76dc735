package commands

import (
	"context"
	"fmt"

	"ananke/internal/config"
)

type historyCmd struct{}

func (historyCmd) Name() string        { return "history" }
func (historyCmd) Description() string { return "List every stored version of an entry, oldest first" }
func (historyCmd) Usage() string       { return "history (-d description [-i identity] | -e id)" }

func (historyCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("history")
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

	list, err := store.History(ctx, target)
	if err != nil {
		return err
	}
	fmt.Fprintln(Out, describe(list[0]))
	for _, e := range list {
		line := fmt.Sprintf("  %s %s %s", formatTimestamp(e), e.ID, e.KeyID)
		switch {
		case e.IsTombstone():
			line += " (removed)"
		case e.Meta != nil:
			line += ` "` + *e.Meta + `"`
		}
		fmt.Fprintln(Out, line)
	}
	fmt.Fprintf(Out, "Total: %d\n", len(list))
	return nil
}

func init() { RegisterCmd(historyCmd{}) }
