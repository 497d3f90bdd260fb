package main

import (
	"flag"
	"fmt"
	"os"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/conversiontools/conversiontools-go/pkg/conversion"
)

func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	cf := registerCommonFlags(fs)

	output := fs.String("out", "", "Output path (default: server-provided filename)")
	bucketURL := fs.String("bucket", "", "Object storage bucket URL (e.g. s3://results); writes there instead of the local filesystem")
	object := fs.String("object", "", "Object key inside -bucket (default: server-provided filename)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: ctools download [options] <file-id>

Download a stored file by id. With -bucket the result is streamed into
object storage (S3 and GCS URLs are supported) instead of a local file.

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
	fileID := fs.Arg(0)

	cfg, err := loadConfig(cf)
	if err != nil {
		return fail(err)
	}
	client, reporter, err := newClient(cfg, cf)
	if err != nil {
		return fail(err)
	}
	if reporter != nil {
		reporter.SetLabel(fileID)
	}

	ctx, cancel := signalContext()
	defer cancel()

	handle := conversion.FileHandle{ID: fileID}

	if *bucketURL != "" {
		bucket, err := blob.OpenBucket(ctx, *bucketURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening bucket: %v\n", err)
			return ExitGeneralError
		}
		defer bucket.Close()

		key := *object
		if key == "" {
			info, err := client.FileInfo(ctx, handle)
			if err != nil {
				return fail(err)
			}
			key = info.Name
		}

		if err := client.DownloadToBucket(ctx, handle, bucket, key); err != nil {
			if reporter != nil {
				reporter.Finish()
			}
			return fail(err)
		}
		if reporter != nil {
			reporter.Finish()
		}
		fmt.Fprintf(os.Stderr, "[ctools] Downloaded to %s/%s\n", *bucketURL, key)
		fmt.Println(key)
		return ExitSuccess
	}

	path, err := client.DownloadTo(ctx, handle, *output)
	if reporter != nil {
		reporter.Finish()
	}
	if err != nil {
		return fail(err)
	}

	fmt.Println(path)
	return ExitSuccess
}
