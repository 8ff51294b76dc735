package commands

import (
	"context"
	"fmt"

	"ananke/internal/config"
	"ananke/internal/crypto"
)

type addCmd struct{}

func (addCmd) Name() string        { return "add" }
func (addCmd) Description() string { return "Add an entry; the secret is read from the terminal or generated" }
func (addCmd) Usage() string {
	return "add [-i identity] [-m meta] [-g N] <description>"
}

func (addCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("add")
	var identity, meta optString
	fs.Var(&identity, "i", "username or email address")
	fs.Var(&meta, "m", "additional metadata")
	var src secretSource
	src.bind(fs)
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if fs.NArg() != 1 || fs.Arg(0) == "" {
		return ErrUsage
	}
	description := fs.Arg(0)

	store, done, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer done()

	secret, generated, err := src.read()
	if err != nil {
		return err
	}
	defer crypto.Wipe(secret)

	e, err := store.Add(ctx, description, identity.ptr(), secret, meta.ptr())
	if err != nil {
		return err
	}
	fmt.Fprintln(Out, "Created:")
	fmt.Fprintf(Out, "  id:          %s\n", e.ID)
	fmt.Fprintf(Out, "  description: %s\n", e.Description)
	if e.Identity != nil {
		fmt.Fprintf(Out, "  identity:    %s\n", *e.Identity)
	}
	fmt.Fprintf(Out, "  key id:      %s\n", e.KeyID)
	if generated {
		fmt.Fprintf(Out, "  secret:      %s\n", secret)
	}
	return nil
}

func init() { RegisterCmd(addCmd{}) }
