package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"ananke/internal/cli/bootstrap"
	"ananke/internal/cli/prompt"
	"ananke/internal/config"
	"ananke/internal/keyring"
)

type keysCmd struct{}

func (keysCmd) Name() string { return "keys" }
func (keysCmd) Description() string {
	return "Manage keys: create the local identity, show or list keys, import a recipient key"
}
func (keysCmd) Usage() string { return "keys init | show | list | import <public-key|file>" }

func (keysCmd) Run(_ context.Context, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}
	switch args[0] {
	case "init":
		if len(args) != 1 {
			return ErrUsage
		}
		return keysInit(cfg)
	case "show":
		if len(args) != 1 {
			return ErrUsage
		}
		return keysShow(cfg)
	case "list":
		if len(args) != 1 {
			return ErrUsage
		}
		return keysList(cfg)
	case "import":
		if len(args) != 2 {
			return ErrUsage
		}
		return keysImport(cfg, args[1])
	default:
		return ErrUsage
	}
}

func keysInit(cfg *config.Config) error {
	kr, err := keyring.Open(cfg.KeyringDir,
		prompt.ConfirmedPassphraseFunc("New passphrase (empty for none): ", "Repeat passphrase: "))
	if err != nil {
		return err
	}
	id, err := kr.Generate()
	if err != nil {
		return err
	}
	fmt.Fprintln(Out, "Identity created:")
	fmt.Fprintf(Out, "  key id:  %s\n", id.KeyID)
	fmt.Fprintf(Out, "  keyring: %s\n", kr.Dir())
	return nil
}

func keysShow(cfg *config.Config) error {
	kr, err := bootstrap.OpenKeyring(cfg)
	if err != nil {
		return err
	}
	keyID, encoded, err := kr.ExportPublicKey()
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "key id: %s\n", keyID)
	fmt.Fprintf(Out, "public: %s\n", encoded)
	return nil
}

func keysList(cfg *config.Config) error {
	kr, err := bootstrap.OpenKeyring(cfg)
	if err != nil {
		return err
	}
	ids, err := kr.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(Out, "No keys")
		return nil
	}
	var local string
	if id, err := kr.PublicIdentity(); err == nil {
		local = id.KeyID
	}
	for _, id := range ids {
		mark := " "
		if id == local {
			mark = "*"
		}
		fmt.Fprintf(Out, "%s %s\n", mark, id)
	}
	return nil
}

// keysImport принимает ключ в base64 либо путь к файлу с ним.
func keysImport(cfg *config.Config, arg string) error {
	kr, err := bootstrap.OpenKeyring(cfg)
	if err != nil {
		return err
	}
	encoded := arg
	if b, err := os.ReadFile(arg); err == nil {
		encoded = string(b)
	}
	keyID, err := kr.ImportPublicKey(strings.TrimSpace(encoded))
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "Imported key %s\n", keyID)
	return nil
}

func init() { RegisterCmd(keysCmd{}) }
