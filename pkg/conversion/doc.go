// Package conversion is a client for the Conversion Tools file-conversion
// API. It uploads a source file, creates a conversion task, waits for the
// task to finish, and downloads the result.
//
// # Quick start
//
//	client, err := conversion.NewClient(conversion.Options{
//	    APIToken: os.Getenv("CONVERSIONTOOLS_API_TOKEN"),
//	})
//
//	result, err := client.Convert(ctx, conversion.ConvertRequest{
//	    Type:       "convert.xml_to_csv",
//	    Input:      conversion.FileInput("data.xml"),
//	    OutputPath: "data.csv",
//	    Options:    map[string]any{"delimiter": "comma"},
//	})
//
// # Lower-level API
//
// The stages compose individually for callers that need more control:
//
//	handle, err := client.Upload(ctx, conversion.FileInput("data.xml"))
//	task, err := client.CreateTask(ctx, "convert.xml_to_csv",
//	    map[string]any{"file_id": handle.ID}, "")
//	err = task.Wait(ctx, conversion.WaitOptions{})
//	path, err := task.DownloadTo(ctx, "data.csv")
//
// Task.Watch is the channel-based mirror of Wait for concurrent callers.
// Every blocking operation takes a context and aborts promptly when it is
// cancelled.
//
// # Retries and polling
//
// Transient failures (network errors, retryable HTTP statuses, rate limits
// that are not a hard quota ceiling) are retried with exponential backoff up
// to Options.RetryAttempts; everything else surfaces immediately as a typed
// error. Task polling starts at Options.PollingInterval and grows by
// Options.PollingBackoff after every non-terminal poll, capped at
// Options.MaxPollingInterval.
//
// # Progress
//
// Upload, download, and conversion progress are delivered through observer
// interfaces set on Options (or per-wait via WaitOptions.Observer). Upload
// progress for unsized streams reports only the byte count, with Percent
// set to -1.
package conversion
