package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/conversiontools/conversiontools-go/pkg/conversion"
)

func runConvert(args []string) int {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	cf := registerCommonFlags(fs)

	typ := fs.String("type", "", "Conversion type, e.g. convert.xml_to_csv (required)")
	input := fs.String("in", "", "Input file path, or - for stdin")
	inputURL := fs.String("url", "", "Input URL fetched by the server instead of an upload")
	fileID := fs.String("file-id", "", "Id of an already uploaded file to convert")
	output := fs.String("out", "", "Output path (default: server-provided filename)")
	optionsJSON := fs.String("options", "", "Conversion options as a JSON object")
	webhook := fs.String("webhook", "", "Callback URL notified when the task finishes")
	noWait := fs.Bool("no-wait", false, "Create the task and print its id without waiting")
	timeout := fs.Duration("wait-timeout", 0, "Abort waiting after this duration (default: no limit)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ctools convert [options]

Run a conversion end to end: upload the input, create the task, wait
for completion, and download the result. Exactly one of -in, -url, or
-file-id selects the input.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if *typ == "" {
		fmt.Fprintln(os.Stderr, "Error: -type is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	sources := 0
	for _, s := range []string{*input, *inputURL, *fileID} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one of -in, -url, or -file-id is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	var options map[string]any
	if *optionsJSON != "" {
		if err := json.Unmarshal([]byte(*optionsJSON), &options); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -options JSON: %v\n", err)
			return ExitInvalidArgs
		}
	}

	cfg, err := loadConfig(cf)
	if err != nil {
		return fail(err)
	}
	client, reporter, err := newClient(cfg, cf)
	if err != nil {
		return fail(err)
	}

	var in conversion.Input
	switch {
	case *inputURL != "":
		in = conversion.URLInput(*inputURL)
	case *fileID != "":
		in = conversion.HandleInput(conversion.FileHandle{ID: *fileID})
	case *input == "-":
		in = conversion.ReaderInput("stdin", os.Stdin, -1)
	default:
		in = conversion.FileInput(*input)
		if reporter != nil {
			reporter.SetLabel(filepath.Base(*input))
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	res, err := client.Convert(ctx, conversion.ConvertRequest{
		Type:        *typ,
		Input:       in,
		OutputPath:  *output,
		Options:     options,
		CallbackURL: *webhook,
		NoWait:      *noWait,
		Wait:        conversion.WaitOptions{Timeout: *timeout},
	})
	if reporter != nil {
		reporter.Finish()
	}
	if err != nil {
		code := fail(err)
		var se *conversion.StageError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "[ctools] Failed during %s\n", se.Stage)
		}
		return code
	}

	if *noWait {
		fmt.Println(res.Task.ID)
		fmt.Fprintf(os.Stderr, "[ctools] Task created; poll with 'ctools tasks' or wait for the webhook\n")
		return ExitSuccess
	}

	fmt.Fprintf(os.Stderr, "[ctools] Converted in %s: %s\n",
		time.Since(start).Round(time.Millisecond), res.OutputPath)
	fmt.Println(res.OutputPath)
	return ExitSuccess
}
