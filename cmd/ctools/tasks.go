package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/conversiontools/conversiontools-go/pkg/conversion"
)

func runTasks(args []string) int {
	fs := flag.NewFlagSet("tasks", flag.ExitOnError)
	cf := registerCommonFlags(fs)

	status := fs.String("status", "", "Filter by status: PENDING, RUNNING, SUCCESS, or ERROR")
	id := fs.String("id", "", "Show a single task by id instead of listing")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ctools tasks [options]

List conversion tasks, or show one task with -id.

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

	if *id != "" {
		task, err := client.GetTask(ctx, *id)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("Id:       %s\n", task.ID)
		fmt.Printf("Status:   %s\n", task.Status())
		fmt.Printf("Progress: %d%%\n", task.Progress())
		if msg := task.ErrorMessage(); msg != "" {
			fmt.Printf("Error:    %s\n", msg)
		}
		if h, ok := task.ResultFile(); ok {
			fmt.Printf("Result:   %s\n", h.ID)
		}
		return ExitSuccess
	}

	tasks, err := client.ListTasks(ctx, conversion.Status(*status))
	if err != nil {
		return fail(err)
	}

	if len(tasks) == 0 {
		fmt.Fprintln(os.Stderr, "[ctools] No tasks")
		return ExitSuccess
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROGRESS\tCREATED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n",
			t.ID, t.Type, t.Status, t.Progress, t.DateCreated)
	}
	w.Flush()
	return ExitSuccess
}
