// Package progress provides progress reporting for the ctools CLI.
//
// This package outputs human-readable progress information to stderr:
// byte-level upload and download progress, and conversion task status
// while waiting for completion.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{})
//	reporter.SetLabel("data.xml")
//
//	// Wire into the client
//	opts.UploadObserver = reporter
//	opts.DownloadObserver = reporter
//	opts.ConversionObserver = reporter
//
// # Output Format
//
//	[ctools] data.xml:  45% | 1.13 MB / 2.50 MB
//	[ctools] Task abc123: RUNNING  60%
//	[ctools] Task abc123: SUCCESS 100%
package progress
