package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/conversiontools/conversiontools-go/internal/progress"
	"github.com/conversiontools/conversiontools-go/pkg/conversion"
)

func runInfo(args []string) int {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	cf := registerCommonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ctools info [options] <file-id>

Show name and size of an uploaded or converted file.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one file-id argument is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(cf)
	if err != nil {
		return fail(err)
	}
	client, _, err := newClient(cfg, cf)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	info, err := client.FileInfo(ctx, conversion.FileHandle{ID: fs.Arg(0)})
	if err != nil {
		return fail(err)
	}

	fmt.Printf("Name: %s\n", info.Name)
	fmt.Printf("Size: %s (%d bytes)\n", progress.FormatBytes(info.Size), info.Size)
	return ExitSuccess
}
