package conversion

import (
	"errors"
	"fmt"
	"time"
)

// Common errors.
var (
	ErrNoResultFile = errors.New("conversion: task has no result file")
	ErrNoAPIToken   = errors.New("conversion: API token is required")
)

// ValidationError indicates malformed or missing input, detected either
// locally before any network call or by the server (HTTP 400).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "conversion: validation failed: " + e.Message
}

// AuthError indicates an invalid or expired API token (HTTP 401).
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "conversion: authentication failed: " + e.Message
}

// NotFoundError indicates a task or file id unknown to the server (HTTP 404).
// Resource is "task" or "file" when the server response allows telling them
// apart, otherwise empty.
type NotFoundError struct {
	Resource string
	Message  string
}

func (e *NotFoundError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("conversion: %s not found: %s", e.Resource, e.Message)
	}
	return "conversion: not found: " + e.Message
}

// RateLimitError indicates the account quota was exceeded (HTTP 429).
// Limits carries the last-known quota snapshot, if any.
type RateLimitError struct {
	Message string
	Limits  *RateLimits
}

func (e *RateLimitError) Error() string {
	return "conversion: rate limit exceeded: " + e.Message
}

// Exhausted reports whether the snapshot shows a hard quota ceiling: every
// window the server reported has zero remaining. A hard ceiling is not
// retried, since it cannot clear within a backoff window.
func (e *RateLimitError) Exhausted() bool {
	if e.Limits == nil {
		return false
	}
	reported := false
	if e.Limits.Daily != nil {
		if e.Limits.Daily.Remaining > 0 {
			return false
		}
		reported = true
	}
	if e.Limits.Monthly != nil {
		if e.Limits.Monthly.Remaining > 0 {
			return false
		}
		reported = true
	}
	return reported
}

// ConversionError indicates the task reached ERROR status. Message is the
// error reported by the server for the task.
type ConversionError struct {
	TaskID  string
	Message string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion: task %s failed: %s", e.TaskID, e.Message)
}

// TimeoutError indicates a Wait exceeded its configured deadline before the
// task reached a terminal status. The task stays queryable in its last
// observed state.
type TimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("conversion: wait for task %s timed out after %s", e.TaskID, e.Timeout)
}

// TransportError indicates a network-level failure (connection refused, DNS,
// reset). Transport errors are retried by the retry policy.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("conversion: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is any server response outside the recognized taxonomy, surfaced
// as-is with the raw body attached. Responses with a retryable status code
// are retried per policy.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("conversion: API error (status %d): %s", e.StatusCode, e.Message)
}

// Stage identifies which part of a Convert call produced an error.
type Stage string

// Convert stages.
const (
	StageUpload     Stage = "upload"
	StageConversion Stage = "conversion"
	StageDownload   Stage = "download"
)

// StageError wraps an error from one stage of Convert so callers can tell
// upload, conversion, and download failures apart without losing the
// underlying typed error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
