package conversion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
	"gocloud.dev/blob"
)

// Server-issued ids are 32-character hex strings.
var idPattern = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)

func validateID(kind, id string) error {
	if id == "" {
		return &ValidationError{Message: kind + " id is required"}
	}
	if !idPattern.MatchString(id) {
		return &ValidationError{Message: fmt.Sprintf("invalid %s id %q: expected 32-character hexadecimal string", kind, id)}
	}
	return nil
}

// FileHandle is an opaque reference to a file stored by the remote service,
// either an uploaded input or a conversion result. The service owns the
// bytes until they are downloaded.
type FileHandle struct {
	ID string
}

// FileInfo is server-side metadata for a stored file.
type FileInfo struct {
	Name        string   `json:"name"`
	Size        int64    `json:"size"`
	Preview     bool     `json:"preview"`
	PreviewData []string `json:"previewData,omitempty"`
}

type fileUploadResponse struct {
	Error  string `json:"error"`
	FileID string `json:"file_id"`
}

// Input is a conversion source: a local path, an in-memory buffer, a stream,
// a remote URL (which bypasses upload entirely), or an already-uploaded file
// handle. Construct one with FileInput, BytesInput, ReaderInput, URLInput,
// or HandleInput.
type Input struct {
	path   string
	data   []byte
	reader io.Reader
	size   int64
	name   string
	url    string
	fileID string
}

// FileInput converts a local file.
func FileInput(path string) Input {
	return Input{path: path, name: filepath.Base(path)}
}

// BytesInput converts an in-memory buffer. The name is used as the uploaded
// filename.
func BytesInput(name string, data []byte) Input {
	return Input{data: data, name: name, size: int64(len(data))}
}

// ReaderInput converts a stream. Pass the total size when known so upload
// progress can report a percentage; with a non-positive size progress events
// carry only the byte count (Percent is -1). The upload is attempted once,
// since the stream cannot be replayed for a retry.
func ReaderInput(name string, r io.Reader, size int64) Input {
	return Input{reader: r, name: name, size: size}
}

// URLInput converts a remote resource. No upload happens; the URL is passed
// through as a conversion option.
func URLInput(rawURL string) Input {
	return Input{url: rawURL}
}

// HandleInput converts a file that was already uploaded.
func HandleInput(h FileHandle) Input {
	return Input{fileID: h.ID}
}

func (in Input) validate() error {
	switch {
	case in.path != "":
		fi, err := os.Stat(in.path)
		if err != nil {
			return &ValidationError{Message: "file not found: " + in.path}
		}
		if fi.IsDir() {
			return &ValidationError{Message: "not a file: " + in.path}
		}
		return nil
	case in.data != nil, in.reader != nil:
		return nil
	case in.url != "":
		u, err := url.Parse(in.url)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ValidationError{Message: "invalid URL: " + in.url}
		}
		return nil
	case in.fileID != "":
		return validateID("file", in.fileID)
	default:
		return &ValidationError{Message: "input is required"}
	}
}

// open returns a fresh reader over the input for one upload attempt, with
// the total size when known.
func (in Input) open() (io.Reader, int64, error) {
	switch {
	case in.path != "":
		f, err := os.Open(in.path)
		if err != nil {
			return nil, 0, &ValidationError{Message: "open file: " + err.Error()}
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, &ValidationError{Message: "stat file: " + err.Error()}
		}
		return f, fi.Size(), nil
	case in.data != nil:
		return bytes.NewReader(in.data), int64(len(in.data)), nil
	default:
		return nil, 0, &ValidationError{Message: "input has no bytes to upload"}
	}
}

// Upload sends the input to the file store and returns its handle. Upload
// progress is reported through the client's upload observer; for unsized
// streams events carry only the byte count.
func (c *Client) Upload(ctx context.Context, in Input) (FileHandle, error) {
	if err := in.validate(); err != nil {
		return FileHandle{}, err
	}
	if in.url != "" || in.fileID != "" {
		return FileHandle{}, &ValidationError{Message: "input has no bytes to upload"}
	}

	name := in.name
	if name == "" {
		name = "file"
	}

	// A bare stream can only be sent once, so a transient failure cannot be
	// retried. Buffered and path inputs are reopened per attempt.
	open := in.open
	if in.reader != nil {
		consumed := false
		open = func() (io.Reader, int64, error) {
			if consumed {
				return nil, 0, &ValidationError{Message: "streamed input cannot be replayed for a retry"}
			}
			consumed = true
			return in.reader, in.size, nil
		}
	}

	id, err := c.t.upload(ctx, "/files", name, open, c.opts.UploadObserver)
	if err != nil {
		return FileHandle{}, err
	}
	return FileHandle{ID: id}, nil
}

// FileInfo fetches metadata for a stored file.
func (c *Client) FileInfo(ctx context.Context, h FileHandle) (*FileInfo, error) {
	if err := validateID("file", h.ID); err != nil {
		return nil, err
	}
	var info FileInfo
	if err := c.t.getJSON(ctx, "/files/"+url.PathEscape(h.ID)+"/info", &info, false); err != nil {
		return nil, err
	}
	return &info, nil
}

// DownloadBytes fetches the file content into memory.
func (c *Client) DownloadBytes(ctx context.Context, h FileHandle) ([]byte, error) {
	if err := validateID("file", h.ID); err != nil {
		return nil, err
	}

	resp, err := c.t.getRaw(ctx, "/files/"+url.PathEscape(h.ID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	var dst io.Writer = &buf
	if c.opts.DownloadObserver != nil {
		dst = &progressWriter{w: dst, total: resp.ContentLength, obs: c.opts.DownloadObserver}
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return nil, &TransportError{Op: "download " + h.ID, Err: err}
	}
	return buf.Bytes(), nil
}

// DownloadTo fetches the file content to destPath and returns the final
// path. When destPath is empty the filename comes from the response's
// Content-Disposition header, falling back to "result". The write is atomic:
// content lands in a temp file first and is renamed into place, so a failed
// download leaves no partial file.
func (c *Client) DownloadTo(ctx context.Context, h FileHandle, destPath string) (string, error) {
	if err := validateID("file", h.ID); err != nil {
		return "", err
	}

	resp, err := c.t.getRaw(ctx, "/files/"+url.PathEscape(h.ID))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if destPath == "" {
		destPath = filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	}

	dir := filepath.Dir(destPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".ctools-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	var dst io.Writer = tmp
	if c.opts.DownloadObserver != nil {
		dst = &progressWriter{w: dst, total: resp.ContentLength, obs: c.opts.DownloadObserver}
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return "", &TransportError{Op: "download " + h.ID, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return "", fmt.Errorf("rename to %s: %w", destPath, err)
	}

	c.log.Debug("file downloaded", zap.String("file_id", h.ID), zap.String("path", destPath))
	return destPath, nil
}

// DownloadToBucket streams the file content into an object storage bucket
// under the given key. Storage backends are selected through gocloud.dev
// driver imports (s3blob, gcsblob, memblob).
func (c *Client) DownloadToBucket(ctx context.Context, h FileHandle, bucket *blob.Bucket, key string) error {
	if err := validateID("file", h.ID); err != nil {
		return err
	}
	if key == "" {
		return &ValidationError{Message: "object key is required"}
	}

	resp, err := c.t.getRaw(ctx, "/files/"+url.PathEscape(h.ID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("open bucket writer: %w", err)
	}

	var dst io.Writer = w
	if c.opts.DownloadObserver != nil {
		dst = &progressWriter{w: dst, total: resp.ContentLength, obs: c.opts.DownloadObserver}
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		w.Close()
		return &TransportError{Op: "download " + h.ID, Err: err}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}

	c.log.Debug("file downloaded to bucket", zap.String("file_id", h.ID), zap.String("key", key))
	return nil
}

// filenameFromDisposition extracts the filename from a Content-Disposition
// header, falling back to "result".
func filenameFromDisposition(header string) string {
	if header != "" {
		if _, params, err := mime.ParseMediaType(header); err == nil {
			if name := filepath.Base(params["filename"]); name != "" && name != "." && name != string(filepath.Separator) {
				return name
			}
		}
	}
	return "result"
}
