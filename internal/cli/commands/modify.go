package commands

import (
	"context"
	"fmt"

	"ananke/internal/config"
	"ananke/internal/crypto"
)

type modifyCmd struct{}

func (modifyCmd) Name() string { return "modify" }
func (modifyCmd) Description() string {
	return "Supersede an entry: new secret (-p or -g) and/or new metadata (-m)"
}
func (modifyCmd) Usage() string {
	return "modify (-d description [-i identity] | -e id) [-p | -g N] [-m meta]"
}

func (modifyCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("modify")
	var tf targetFlags
	tf.bind(fs)
	var meta optString
	fs.Var(&meta, "m", "additional metadata")
	askSecret := fs.Bool("p", false, "read a new secret")
	var src secretSource
	src.bind(fs)
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if fs.NArg() != 0 || (*askSecret && src.generating()) {
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

	var secret []byte
	var generated bool
	if *askSecret || src.generating() {
		secret, generated, err = src.read()
		if err != nil {
			return err
		}
		defer crypto.Wipe(secret)
	}

	e, err := store.Modify(ctx, target, secret, meta.ptr())
	if err != nil {
		return err
	}
	fmt.Fprintln(Out, "Updated:")
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

func init() { RegisterCmd(modifyCmd{}) }
