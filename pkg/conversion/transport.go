package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// Rate limit response headers.
const (
	headerDailyLimit       = "x-ratelimit-limit-tasks"
	headerDailyRemaining   = "x-ratelimit-limit-tasks-remaining"
	headerMonthlyLimit     = "x-ratelimit-limit-tasks-monthly"
	headerMonthlyRemaining = "x-ratelimit-limit-tasks-monthly-remaining"
	headerMaxFileSize      = "x-ratelimit-limit-filesize"
)

// RateLimitWindow is one quota window from the rate-limit headers.
type RateLimitWindow struct {
	Limit     int
	Remaining int
}

// RateLimits is the last-known quota snapshot, overwritten on every API call
// that returns rate-limit headers. It reflects only the most recent response.
type RateLimits struct {
	Daily       *RateLimitWindow
	Monthly     *RateLimitWindow
	MaxFileSize int64
}

// transport issues authenticated HTTP requests against the API, applying the
// retry policy and capturing rate-limit headers from every response.
type transport struct {
	baseURL   string
	token     string
	userAgent string
	hc        *http.Client
	retry     retryPolicy
	limits    atomic.Pointer[RateLimits]
	log       *zap.Logger
}

// RateLimits returns the last-known quota snapshot, or nil before the first
// response carrying rate-limit headers. Last write wins under concurrency.
func (t *transport) RateLimits() *RateLimits {
	return t.limits.Load()
}

func (t *transport) captureLimits(h http.Header) {
	var limits RateLimits
	seen := false

	if dl, dr := h.Get(headerDailyLimit), h.Get(headerDailyRemaining); dl != "" && dr != "" {
		limit, err1 := strconv.Atoi(dl)
		remaining, err2 := strconv.Atoi(dr)
		if err1 == nil && err2 == nil {
			limits.Daily = &RateLimitWindow{Limit: limit, Remaining: remaining}
			seen = true
		}
	}
	if ml, mr := h.Get(headerMonthlyLimit), h.Get(headerMonthlyRemaining); ml != "" && mr != "" {
		limit, err1 := strconv.Atoi(ml)
		remaining, err2 := strconv.Atoi(mr)
		if err1 == nil && err2 == nil {
			limits.Monthly = &RateLimitWindow{Limit: limit, Remaining: remaining}
			seen = true
		}
	}
	if fs := h.Get(headerMaxFileSize); fs != "" {
		if size, err := strconv.ParseInt(fs, 10, 64); err == nil {
			limits.MaxFileSize = size
			seen = true
		}
	}

	if seen {
		t.limits.Store(&limits)
	}
}

// doOnce performs a single request attempt. Failed responses are mapped onto
// the error taxonomy; the caller owns the response body on success.
func (t *transport) doOnce(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("User-Agent", t.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := t.hc.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}

	t.captureLimits(resp.Header)

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, t.apiError(resp)
	}

	return resp, nil
}

// apiError maps a failed response onto the error taxonomy. The body is
// consumed; anything outside the recognized codes surfaces as an APIError
// with the raw body attached.
func (t *transport) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	msg := resp.Status
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		msg = envelope.Error
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return &AuthError{Message: msg}
	case http.StatusBadRequest:
		return &ValidationError{Message: msg}
	case http.StatusNotFound:
		resource := ""
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "file"):
			resource = "file"
		case strings.Contains(lower, "task"):
			resource = "task"
		}
		return &NotFoundError{Resource: resource, Message: msg}
	case http.StatusTooManyRequests:
		return &RateLimitError{Message: msg, Limits: t.RateLimits()}
	default:
		return &APIError{StatusCode: resp.StatusCode, Message: msg, Body: body}
	}
}

// getJSON performs a retried GET and decodes the JSON response into out.
// When checkBodyError is set, a 2xx response whose body carries an "error"
// field is surfaced as an APIError (some endpoints report failures that way).
func (t *transport) getJSON(ctx context.Context, path string, out any, checkBodyError bool) error {
	op := "GET " + path
	return t.retry.run(ctx, op, func() error {
		resp, err := t.doOnce(ctx, http.MethodGet, path, "", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return t.decodeJSON(resp, out, checkBodyError)
	})
}

// postJSON performs a retried POST with a JSON body and decodes the response
// into out. The body is re-marshaled per attempt.
func (t *transport) postJSON(ctx context.Context, path string, in, out any, checkBodyError bool) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	op := "POST " + path
	return t.retry.run(ctx, op, func() error {
		resp, err := t.doOnce(ctx, http.MethodPost, path, "application/json", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return t.decodeJSON(resp, out, checkBodyError)
	})
}

func (t *transport) decodeJSON(resp *http.Response, out any, checkBodyError bool) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return &TransportError{Op: "read response", Err: err}
	}

	if checkBodyError {
		var envelope struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: envelope.Error, Body: body}
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "malformed response: " + err.Error(), Body: body}
	}
	return nil
}

// getRaw performs a retried GET and returns the open response for streaming.
// Only establishing the response is retried; the caller streams and closes
// the body.
func (t *transport) getRaw(ctx context.Context, path string) (*http.Response, error) {
	var resp *http.Response
	op := "GET " + path
	err := t.retry.run(ctx, op, func() error {
		r, err := t.doOnce(ctx, http.MethodGet, path, "", nil)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// upload performs a retried multipart POST of a file. The open callback
// supplies a fresh body per attempt, with the total size when known.
func (t *transport) upload(ctx context.Context, path, filename string, open func() (io.Reader, int64, error), obs TransferObserver) (string, error) {
	var result fileUploadResponse

	op := "POST " + path
	err := t.retry.run(ctx, op, func() error {
		src, size, err := open()
		if err != nil {
			return err
		}
		if closer, ok := src.(io.Closer); ok {
			defer closer.Close()
		}
		if obs != nil {
			src = &progressReader{r: src, total: size, obs: obs}
		}

		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			part, err := mw.CreateFormFile("file", filename)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := io.Copy(part, src); err != nil {
				pw.CloseWithError(err)
				return
			}
			pw.CloseWithError(mw.Close())
		}()

		resp, err := t.doOnce(ctx, http.MethodPost, path, mw.FormDataContentType(), pr)
		pr.Close()
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		result = fileUploadResponse{}
		return t.decodeJSON(resp, &result, true)
	})
	if err != nil {
		return "", err
	}

	if result.FileID == "" {
		return "", &APIError{StatusCode: http.StatusOK, Message: "upload response missing file_id"}
	}
	t.log.Debug("file uploaded", zap.String("file_id", result.FileID))
	return result.FileID, nil
}
