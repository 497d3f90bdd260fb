package conversion_test

import (
	"context"
	"fmt"
	"os"

	"github.com/conversiontools/conversiontools-go/pkg/conversion"
)

func Example_convert() {
	ctx := context.Background()

	client, _ := conversion.NewClient(conversion.Options{
		APIToken: os.Getenv("CONVERSIONTOOLS_TOKEN"),
	})

	// Upload, convert and download in one call.
	res, _ := client.Convert(ctx, conversion.ConvertRequest{
		Type:       "convert.xml_to_csv",
		Input:      conversion.FileInput("data.xml"),
		OutputPath: "data.csv",
		Options:    map[string]any{"delimiter": "comma"},
	})

	fmt.Println("result written to", res.OutputPath)
}

func Example_stepByStep() {
	ctx := context.Background()

	client, _ := conversion.NewClient(conversion.Options{
		APIToken: os.Getenv("CONVERSIONTOOLS_TOKEN"),
	})

	// Upload the source file.
	handle, _ := client.Upload(ctx, conversion.FileInput("report.xml"))

	// Create the task and wait for it, watching progress.
	task, _ := client.CreateTask(ctx, "convert.xml_to_excel",
		map[string]any{"file_id": handle.ID}, "")

	task.Wait(ctx, conversion.WaitOptions{
		Observer: conversion.TaskObserverFunc(func(p conversion.TaskProgress) {
			fmt.Printf("%s %d%%\n", p.Status, p.Percent)
		}),
	})

	// Download the result next to the source.
	path, _ := task.DownloadTo(ctx, "")
	fmt.Println("saved", path)
}

func Example_urlInput() {
	ctx := context.Background()

	client, _ := conversion.NewClient(conversion.Options{
		APIToken: os.Getenv("CONVERSIONTOOLS_TOKEN"),
	})

	// URL inputs are fetched by the server; nothing is uploaded.
	res, _ := client.Convert(ctx, conversion.ConvertRequest{
		Type:       "convert.website_to_pdf",
		Input:      conversion.URLInput("https://example.com"),
		OutputPath: "example.pdf",
	})

	fmt.Println("result written to", res.OutputPath)
}

func Example_watch() {
	ctx := context.Background()

	client, _ := conversion.NewClient(conversion.Options{
		APIToken: os.Getenv("CONVERSIONTOOLS_TOKEN"),
	})

	task, _ := client.CreateTask(ctx, "convert.xml_to_csv",
		map[string]any{"url": "https://example.com/data.xml"}, "")

	// Channel-based alternative to Wait for select loops.
	for update := range task.Watch(ctx, conversion.WaitOptions{}) {
		if update.Err != nil {
			fmt.Println("conversion failed:", update.Err)
			return
		}
		fmt.Printf("%s %d%%\n", update.Status, update.Percent)
	}
}
