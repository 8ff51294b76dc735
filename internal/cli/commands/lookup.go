package commands

import (
	"context"
	"fmt"

	"ananke/internal/config"
	"ananke/internal/crypto"
)

type lookupCmd struct{}

func (lookupCmd) Name() string { return "lookup" }
func (lookupCmd) Description() string {
	return "Show the current secret of every entry whose description contains the query"
}
func (lookupCmd) Usage() string { return "lookup [-i identity] [-v] <query>" }

func (lookupCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("lookup")
	var identity optString
	fs.Var(&identity, "i", "username or email address")
	verbose := fs.Bool("v", false, "verbose output")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if fs.NArg() != 1 {
		return ErrUsage
	}

	store, done, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer done()

	res, err := store.Lookup(ctx, fs.Arg(0), identity.ptr())
	if err != nil {
		return err
	}
	defer func() {
		for _, m := range res.Matches {
			crypto.Wipe(m.Secret)
		}
	}()

	// единственное совпадение печатается как голый секрет
	if m, ok := res.Single(); ok {
		if *verbose {
			fmt.Fprintln(Out, formatVerbose(m.Entry, m.Secret))
		} else {
			fmt.Fprintln(Out, string(m.Secret))
		}
		return nil
	}
	for _, m := range res.Matches {
		if *verbose {
			fmt.Fprintln(Out, formatVerbose(m.Entry, m.Secret))
			continue
		}
		who := "-"
		if m.Entry.Identity != nil {
			who = *m.Entry.Identity
		}
		fmt.Fprintf(Out, "%s %s %s\n", m.Entry.Description, who, m.Secret)
	}
	return nil
}

func init() { RegisterCmd(lookupCmd{}) }
