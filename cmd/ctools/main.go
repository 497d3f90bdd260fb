package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitAuthError        = 3
	ExitRateLimited      = 4
	ExitConversionFailed = 5
	ExitTimeout          = 6
	ExitNotFound         = 7
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "convert":
		return runConvert(cmdArgs)
	case "upload":
		return runUpload(cmdArgs)
	case "download":
		return runDownload(cmdArgs)
	case "info":
		return runInfo(cmdArgs)
	case "tasks":
		return runTasks(cmdArgs)
	case "whoami":
		return runWhoami(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: ctools <command> [options]

Commands:
  convert   Upload a file, run a conversion, and download the result
  upload    Upload a file and print its id
  download  Download a file by id to a local path or object storage
  info      Show metadata for an uploaded file
  tasks     List conversion tasks
  whoami    Show the authenticated account and rate limits

Run 'ctools <command> -h' for command-specific help.

The API token comes from -token, CONVERSIONTOOLS_TOKEN, or a config file.`)
}
