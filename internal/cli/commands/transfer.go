package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"ananke/internal/config"
	"ananke/internal/document"
)

// documentFormat: явный -format важнее расширения файла.
func documentFormat(flagValue, path string) (document.Format, error) {
	if flagValue != "" {
		return document.ParseFormat(flagValue)
	}
	if path == "" || path == "-" {
		return document.JSON, nil
	}
	return document.FormatFromPath(path), nil
}

type exportCmd struct{}

func (exportCmd) Name() string { return "export" }
func (exportCmd) Description() string {
	return "Write the whole history (still sealed) to a file or stdout"
}
func (exportCmd) Usage() string { return "export [-format json|yaml] [<file>]" }

func (exportCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("export")
	formatFlag := fs.String("format", "", "json or yaml (default: by file extension)")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if fs.NArg() > 1 {
		return ErrUsage
	}
	path := fs.Arg(0)
	format, err := documentFormat(*formatFlag, path)
	if err != nil {
		return ErrUsage
	}

	store, done, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer done()

	entries, err := store.Export(ctx)
	if err != nil {
		return err
	}
	if path == "" || path == "-" {
		return document.Encode(Out, entries, format)
	}
	b, err := document.Marshal(entries, format)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(Out, "Exported %d entries to %s\n", len(entries), path)
	return nil
}

type importCmd struct{}

func (importCmd) Name() string { return "import" }
func (importCmd) Description() string {
	return "Merge entries from an exported file; any id collision aborts the import"
}
func (importCmd) Usage() string { return "import [-format json|yaml] <file>" }

func (importCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("import")
	formatFlag := fs.String("format", "", "json or yaml (default: by file extension)")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if fs.NArg() != 1 || fs.Arg(0) == "" {
		return ErrUsage
	}
	path := fs.Arg(0)
	format, err := documentFormat(*formatFlag, path)
	if err != nil {
		return ErrUsage
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	incoming, err := document.Decode(f, format)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	store, done, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer done()

	report, err := store.Import(ctx, incoming)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "Import: %s\n", report)
	return nil
}

func init() {
	RegisterCmd(exportCmd{})
	RegisterCmd(importCmd{})
}
