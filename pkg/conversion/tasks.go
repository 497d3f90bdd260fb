package conversion

import (
	"context"
	"net/url"
	"strings"
)

// Status is the lifecycle state of a conversion task. Transitions are
// monotonic along PENDING -> RUNNING -> {SUCCESS | ERROR}; there is no
// transition out of a terminal state.
type Status string

// Task statuses.
const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

type taskCreateRequest struct {
	Type        string         `json:"type"`
	Options     map[string]any `json:"options"`
	CallbackURL string         `json:"callbackUrl,omitempty"`
	Sandbox     bool           `json:"sandbox,omitempty"`
}

type taskCreateResponse struct {
	Error   string `json:"error"`
	TaskID  string `json:"task_id"`
	Sandbox bool   `json:"sandbox"`
	Message string `json:"message"`
}

// taskStatusResponse is the GET /tasks/{id} body. The error field belongs to
// the task (set when status is ERROR), not to the request.
type taskStatusResponse struct {
	Error    string `json:"error"`
	Status   Status `json:"status"`
	FileID   string `json:"file_id"`
	Progress int    `json:"conversionProgress"`
}

// FileRef describes a source or result file attached to a task listing.
type FileRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Exists bool   `json:"exists"`
}

// TaskSummary is one entry of a task listing. Dates are passed through as
// the server formats them.
type TaskSummary struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Status       Status  `json:"status"`
	Error        string  `json:"error"`
	URL          string  `json:"url"`
	DateCreated  string  `json:"dateCreated"`
	DateFinished string  `json:"dateFinished"`
	Progress     int     `json:"conversionProgress"`
	FileSource   *FileRef `json:"fileSource,omitempty"`
	FileResult   *FileRef `json:"fileResult,omitempty"`
}

func validateConversionType(conversionType string) error {
	if conversionType == "" {
		return &ValidationError{Message: "conversion type is required"}
	}
	if !strings.HasPrefix(conversionType, "convert.") {
		return &ValidationError{Message: `invalid conversion type "` + conversionType + `": expected format "convert.source_to_target"`}
	}
	return nil
}

// CreateTask submits a conversion task. The conversion type vocabulary is
// owned by the server; the client only checks the convert.* shape. When
// callbackURL is non-empty (or the client has a default webhook URL) the
// server pushes a completion notification there; polling with Wait still
// works as a fallback. The client's sandbox flag is threaded through so the
// server executes without consuming quota.
func (c *Client) CreateTask(ctx context.Context, conversionType string, options map[string]any, callbackURL string) (*Task, error) {
	if err := validateConversionType(conversionType); err != nil {
		return nil, err
	}
	if options == nil {
		options = map[string]any{}
	}
	if callbackURL == "" {
		callbackURL = c.opts.WebhookURL
	}

	req := taskCreateRequest{
		Type:        conversionType,
		Options:     options,
		CallbackURL: callbackURL,
		Sandbox:     c.opts.Sandbox,
	}

	var resp taskCreateResponse
	if err := c.t.postJSON(ctx, "/tasks", req, &resp, true); err != nil {
		return nil, err
	}

	return &Task{
		ID:     resp.TaskID,
		Type:   conversionType,
		c:      c,
		status: StatusPending,
	}, nil
}

// GetTask fetches an existing task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	if err := validateID("task", taskID); err != nil {
		return nil, err
	}

	var resp taskStatusResponse
	if err := c.t.getJSON(ctx, "/tasks/"+url.PathEscape(taskID), &resp, false); err != nil {
		return nil, err
	}

	t := &Task{ID: taskID, c: c}
	t.apply(resp)
	return t, nil
}

// ListTasks returns task summaries, optionally filtered by status. Ordering
// is whatever the server returns.
func (c *Client) ListTasks(ctx context.Context, status Status) ([]TaskSummary, error) {
	path := "/tasks"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}

	var resp struct {
		Error string        `json:"error"`
		Data  []TaskSummary `json:"data"`
	}
	if err := c.t.getJSON(ctx, path, &resp, true); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
