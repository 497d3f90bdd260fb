package conversion_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	"github.com/conversiontools/conversiontools-go/internal/testutils"
	"github.com/conversiontools/conversiontools-go/pkg/conversion"
)

func newTestClient(t *testing.T, server *testutils.Server, opts conversion.Options) *conversion.Client {
	t.Helper()
	opts.APIToken = server.Token
	opts.BaseURL = server.URL
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 3
	}
	opts.RetryDelay = time.Millisecond
	opts.MaxRetryDelay = 5 * time.Millisecond
	opts.PollingInterval = time.Millisecond
	opts.MaxPollingInterval = 5 * time.Millisecond

	c, err := conversion.NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestUploadRoundTrip(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	c := newTestClient(t, server, conversion.Options{})
	ctx := context.Background()

	content := []byte("<root><row>1</row></root>")
	tmp := filepath.Join(t.TempDir(), "data.xml")
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	handle, err := c.Upload(ctx, conversion.FileInput(tmp))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if handle.ID == "" {
		t.Fatal("expected a file id")
	}

	got, err := c.DownloadBytes(ctx, handle)
	if err != nil {
		t.Fatalf("DownloadBytes: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("round trip mismatch: got %q, want %q", got, content)
	}
}

func TestUploadEmptyFile(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	c := newTestClient(t, server, conversion.Options{})
	ctx := context.Background()

	handle, err := c.Upload(ctx, conversion.BytesInput("empty.bin", nil))
	if err != nil {
		t.Fatalf("Upload of 0-byte input: %v", err)
	}

	got, err := c.DownloadBytes(ctx, handle)
	if err != nil {
		t.Fatalf("DownloadBytes: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty content, got %d bytes", len(got))
	}
}

func TestUploadStream(t *testing.T) {
	server := testutils.NewServer(t, "tok")

	var events []conversion.ProgressEvent
	c := newTestClient(t, server, conversion.Options{
		UploadObserver: conversion.TransferObserverFunc(func(e conversion.ProgressEvent) {
			events = append(events, e)
		}),
	})

	content := strings.Repeat("stream data ", 1024)
	handle, err := c.Upload(context.Background(),
		conversion.ReaderInput("stream.txt", strings.NewReader(content), int64(len(content))))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	got, _ := server.FileData(handle.ID)
	if string(got) != content {
		t.Error("streamed content mismatch")
	}

	if len(events) == 0 {
		t.Fatal("expected upload progress events")
	}
	last := events[len(events)-1]
	if last.Percent != 100 {
		t.Errorf("expected final percent 100, got %d", last.Percent)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Loaded < events[i-1].Loaded {
			t.Fatal("upload progress went backwards")
		}
	}
}

func TestUploadUnsizedStreamProgress(t *testing.T) {
	server := testutils.NewServer(t, "tok")

	var events []conversion.ProgressEvent
	c := newTestClient(t, server, conversion.Options{
		UploadObserver: conversion.TransferObserverFunc(func(e conversion.ProgressEvent) {
			events = append(events, e)
		}),
	})

	_, err := c.Upload(context.Background(),
		conversion.ReaderInput("unsized.txt", strings.NewReader("some data"), 0))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
	for _, e := range events {
		if e.Percent != -1 {
			t.Errorf("expected percent -1 for unsized stream, got %d", e.Percent)
		}
	}
}

func TestUploadRetriesTransientFailure(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	server.FailNext("/files", 2)

	c := newTestClient(t, server, conversion.Options{})
	handle, err := c.Upload(context.Background(), conversion.BytesInput("a.txt", []byte("abc")))
	if err != nil {
		t.Fatalf("Upload after transient failures: %v", err)
	}

	got, _ := server.FileData(handle.ID)
	if string(got) != "abc" {
		t.Error("content mismatch after retried upload")
	}
	if n := server.Requests("/files"); n != 3 {
		t.Errorf("expected 3 upload attempts, got %d", n)
	}
}

func TestUploadValidationNoNetworkCall(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	c := newTestClient(t, server, conversion.Options{})

	_, err := c.Upload(context.Background(), conversion.FileInput(filepath.Join(t.TempDir(), "missing.xml")))
	var ve *conversion.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if n := server.Requests("/"); n != 0 {
		t.Errorf("expected zero network attempts for validation error, got %d", n)
	}
}

func TestFileInfo(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	c := newTestClient(t, server, conversion.Options{})
	ctx := context.Background()

	id := server.AddFile("report.pdf", []byte("pdf bytes"))
	info, err := c.FileInfo(ctx, conversion.FileHandle{ID: id})
	if err != nil {
		t.Fatalf("FileInfo: %v", err)
	}
	if info.Name != "report.pdf" {
		t.Errorf("expected name report.pdf, got %q", info.Name)
	}
	if info.Size != 9 {
		t.Errorf("expected size 9, got %d", info.Size)
	}

	_, err = c.FileInfo(ctx, conversion.FileHandle{ID: testutils.NewID()})
	var ne *conversion.NotFoundError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NotFoundError for unknown id, got %v", err)
	}
}

func TestDownloadTo(t *testing.T) {
	server := testutils.NewServer(t, "tok")

	var events []conversion.ProgressEvent
	c := newTestClient(t, server, conversion.Options{
		DownloadObserver: conversion.TransferObserverFunc(func(e conversion.ProgressEvent) {
			events = append(events, e)
		}),
	})
	ctx := context.Background()

	content := []byte("converted output")
	id := server.AddFile("result.csv", content)

	dest := filepath.Join(t.TempDir(), "out", "result.csv")
	path, err := c.DownloadTo(ctx, conversion.FileHandle{ID: id}, dest)
	if err != nil {
		t.Fatalf("DownloadTo: %v", err)
	}
	if path != dest {
		t.Errorf("expected path %q, got %q", dest, path)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("downloaded content mismatch")
	}

	if len(events) == 0 {
		t.Fatal("expected download progress events")
	}
	if last := events[len(events)-1]; last.Percent != 100 {
		t.Errorf("expected final percent 100, got %d", last.Percent)
	}
}

func TestDownloadToInfersFilename(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	c := newTestClient(t, server, conversion.Options{})

	id := server.AddFile("inferred-name.csv", []byte("data"))

	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)

	path, err := c.DownloadTo(context.Background(), conversion.FileHandle{ID: id}, "")
	if err != nil {
		t.Fatalf("DownloadTo: %v", err)
	}
	if filepath.Base(path) != "inferred-name.csv" {
		t.Errorf("expected filename from Content-Disposition, got %q", path)
	}
}

func TestDownloadLeavesNoPartialFile(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	c := newTestClient(t, server, conversion.Options{RetryAttempts: 1})

	dir := t.TempDir()
	dest := filepath.Join(dir, "result.csv")

	_, err := c.DownloadTo(context.Background(), conversion.FileHandle{ID: testutils.NewID()}, dest)
	if err == nil {
		t.Fatal("expected download of unknown file to fail")
	}

	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("expected no file at destination after failed download")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no leftover temp files, found %d entries", len(entries))
	}
}

func TestDownloadToBucket(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	c := newTestClient(t, server, conversion.Options{})
	ctx := context.Background()

	content := []byte("bucket-bound output")
	id := server.AddFile("result.csv", content)

	bucket, err := blob.OpenBucket(ctx, "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bucket.Close()

	if err := c.DownloadToBucket(ctx, conversion.FileHandle{ID: id}, bucket, "results/result.csv"); err != nil {
		t.Fatalf("DownloadToBucket: %v", err)
	}

	got, err := bucket.ReadAll(ctx, "results/result.csv")
	if err != nil {
		t.Fatalf("read object: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("bucket object content mismatch")
	}
}

func TestInvalidFileID(t *testing.T) {
	server := testutils.NewServer(t, "tok")
	c := newTestClient(t, server, conversion.Options{})

	_, err := c.DownloadBytes(context.Background(), conversion.FileHandle{ID: "not-a-valid-id"})
	var ve *conversion.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if n := server.Requests("/"); n != 0 {
		t.Errorf("expected zero network attempts, got %d", n)
	}
}
