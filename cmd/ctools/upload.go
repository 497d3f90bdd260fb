package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conversiontools/conversiontools-go/pkg/conversion"
)

func runUpload(args []string) int {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	cf := registerCommonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ctools upload [options] <file>

Upload a file and print its id. The id can be reused across several
conversions with 'ctools convert -file-id'.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one file argument is required")
		fs.Usage()
		return ExitInvalidArgs
	}
	path := fs.Arg(0)

	cfg, err := loadConfig(cf)
	if err != nil {
		return fail(err)
	}
	client, reporter, err := newClient(cfg, cf)
	if err != nil {
		return fail(err)
	}
	if reporter != nil {
		reporter.SetLabel(filepath.Base(path))
	}

	ctx, cancel := signalContext()
	defer cancel()

	handle, err := client.Upload(ctx, conversion.FileInput(path))
	if reporter != nil {
		reporter.Finish()
	}
	if err != nil {
		return fail(err)
	}

	fmt.Println(handle.ID)
	return ExitSuccess
}
