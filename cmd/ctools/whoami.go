package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/conversiontools/conversiontools-go/internal/progress"
)

func runWhoami(args []string) int {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	cf := registerCommonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ctools whoami [options]

Show the account the token belongs to and the current rate limits.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
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

	email, err := client.User(ctx)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Account: %s\n", email)

	if limits := client.RateLimits(); limits != nil {
		if limits.Daily != nil {
			fmt.Printf("Daily tasks:   %d of %d remaining\n", limits.Daily.Remaining, limits.Daily.Limit)
		}
		if limits.Monthly != nil {
			fmt.Printf("Monthly tasks: %d of %d remaining\n", limits.Monthly.Remaining, limits.Monthly.Limit)
		}
		if limits.MaxFileSize > 0 {
			fmt.Printf("Max file size: %s\n", progress.FormatBytes(limits.MaxFileSize))
		}
	}
	return ExitSuccess
}
