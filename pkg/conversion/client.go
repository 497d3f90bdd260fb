package conversion

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Version is reported in the User-Agent header.
const Version = "1.0.0"

const defaultBaseURL = "https://api.conversiontools.io/v1"

// Options configures a Client. APIToken is the only required field; every
// other zero value falls back to the defaults below.
type Options struct {
	// APIToken authenticates every request (bearer token). Required.
	APIToken string

	// BaseURL is the API root.
	// Default: https://api.conversiontools.io/v1
	BaseURL string

	// Timeout applies to each HTTP request.
	// Default: 5m
	Timeout time.Duration

	// RetryAttempts is the maximum number of attempts per request,
	// the first one included.
	// Default: 3
	RetryAttempts int

	// RetryDelay is the backoff before the second attempt; it doubles on
	// every further attempt.
	// Default: 1s
	RetryDelay time.Duration

	// MaxRetryDelay caps the backoff.
	// Default: 30s
	MaxRetryDelay time.Duration

	// RetryableStatuses are the HTTP status codes retried per policy,
	// additionally to network failures and (subject to
	// DisableRateLimitRetry) 429 responses.
	// Default: 408, 500, 502, 503, 504
	RetryableStatuses []int

	// DisableRateLimitRetry makes 429 responses fail immediately instead of
	// being retried. A hard quota ceiling (all reported windows exhausted)
	// fails immediately either way.
	DisableRateLimitRetry bool

	// PollingInterval is the initial delay between task status polls.
	// Default: 5s
	PollingInterval time.Duration

	// MaxPollingInterval caps the adaptive polling interval.
	// Default: 30s
	MaxPollingInterval time.Duration

	// PollingBackoff is the polling interval growth factor.
	// Default: 1.5
	PollingBackoff float64

	// WebhookURL, when set, is sent as the default completion callback on
	// every task creation.
	WebhookURL string

	// Sandbox makes the server execute tasks without consuming quota. Pure
	// pass-through; rate-limit snapshots still reflect whatever the server
	// reports.
	Sandbox bool

	// UploadObserver receives byte-level upload progress.
	UploadObserver TransferObserver

	// DownloadObserver receives byte-level download progress.
	DownloadObserver TransferObserver

	// ConversionObserver receives task status snapshots during Wait.
	ConversionObserver TaskObserver

	// Logger receives debug-level request and polling logs.
	// Default: zap.NewNop()
	Logger *zap.Logger
}

// DefaultOptions returns options with sensible defaults. APIToken must still
// be set.
func DefaultOptions() Options {
	return Options{
		BaseURL:            defaultBaseURL,
		Timeout:            5 * time.Minute,
		RetryAttempts:      3,
		RetryDelay:         time.Second,
		MaxRetryDelay:      30 * time.Second,
		RetryableStatuses:  []int{408, 500, 502, 503, 504},
		PollingInterval:    5 * time.Second,
		MaxPollingInterval: 30 * time.Second,
		PollingBackoff:     1.5,
	}
}

// Client talks to the Conversion Tools API. It holds no local state beyond
// the in-memory rate-limit snapshot and is safe for concurrent use.
type Client struct {
	opts Options
	t    *transport
	log  *zap.Logger
}

// NewClient validates the options and creates a client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIToken) == "" {
		return nil, ErrNoAPIToken
	}

	defaults := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = defaults.BaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaults.RetryAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaults.RetryDelay
	}
	if opts.MaxRetryDelay <= 0 {
		opts.MaxRetryDelay = defaults.MaxRetryDelay
	}
	if len(opts.RetryableStatuses) == 0 {
		opts.RetryableStatuses = defaults.RetryableStatuses
	}
	if opts.PollingInterval <= 0 {
		opts.PollingInterval = defaults.PollingInterval
	}
	if opts.MaxPollingInterval <= 0 {
		opts.MaxPollingInterval = defaults.MaxPollingInterval
	}
	if opts.PollingBackoff < 1 {
		opts.PollingBackoff = defaults.PollingBackoff
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	statuses := make(map[int]bool, len(opts.RetryableStatuses))
	for _, s := range opts.RetryableStatuses {
		statuses[s] = true
	}

	c := &Client{opts: opts, log: opts.Logger}
	c.t = &transport{
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		token:     opts.APIToken,
		userAgent: "conversiontools-go/" + Version,
		hc:        &http.Client{Timeout: opts.Timeout},
		retry: retryPolicy{
			attempts:         opts.RetryAttempts,
			delay:            opts.RetryDelay,
			maxDelay:         opts.MaxRetryDelay,
			statuses:         statuses,
			retryRateLimited: !opts.DisableRateLimitRetry,
			log:              opts.Logger,
		},
		log: opts.Logger,
	}
	return c, nil
}

// RateLimits returns the last-known quota snapshot, or nil before the first
// response. Concurrent calls overwrite it; last write wins.
func (c *Client) RateLimits() *RateLimits {
	return c.t.RateLimits()
}

// User returns the email of the authenticated account.
func (c *Client) User(ctx context.Context) (string, error) {
	var resp struct {
		Error string `json:"error"`
		Email string `json:"email"`
	}
	if err := c.t.getJSON(ctx, "/auth", &resp, true); err != nil {
		return "", err
	}
	return resp.Email, nil
}

// APIConfig returns the server-published configuration, including the
// conversion type catalog. The shape is owned by the server.
func (c *Client) APIConfig(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	if err := c.t.getJSON(ctx, "/config", &resp, false); err != nil {
		return nil, err
	}
	return resp, nil
}

// ConvertRequest describes one Convert call.
type ConvertRequest struct {
	// Type is the conversion type identifier, e.g. "convert.xml_to_csv".
	Type string

	// Input is the conversion source.
	Input Input

	// OutputPath is where the result is written. Empty means a filename
	// inferred from the server response in the working directory. Ignored
	// when NoWait is set.
	OutputPath string

	// Options are conversion-specific options, passed through opaquely.
	Options map[string]any

	// CallbackURL overrides the client's webhook URL for this task.
	CallbackURL string

	// NoWait returns right after task creation instead of waiting and
	// downloading, for callers doing manual or webhook-driven completion.
	NoWait bool

	// Wait tunes the polling of the wait phase.
	Wait WaitOptions
}

// ConvertResult is the outcome of a Convert call.
type ConvertResult struct {
	// Task is the conversion task, terminal unless NoWait was set.
	Task *Task

	// OutputPath is the written result path. Empty when NoWait was set.
	OutputPath string
}

// Convert is the single-call path: upload the input (skipped for URL and
// pre-uploaded inputs), create the task, wait for completion, and download
// the result. The first failure from any stage is wrapped in a StageError
// tagging upload, conversion, or download, with the underlying typed error
// preserved.
func (c *Client) Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	task, err := c.startConversion(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.NoWait {
		return &ConvertResult{Task: task}, nil
	}

	if err := task.Wait(ctx, req.Wait); err != nil {
		return nil, &StageError{Stage: StageConversion, Err: err}
	}

	path, err := task.DownloadTo(ctx, req.OutputPath)
	if err != nil {
		return nil, &StageError{Stage: StageDownload, Err: err}
	}

	return &ConvertResult{Task: task, OutputPath: path}, nil
}

// ConvertBytes is Convert with the result returned in memory instead of
// written to disk.
func (c *Client) ConvertBytes(ctx context.Context, req ConvertRequest) (*Task, []byte, error) {
	task, err := c.startConversion(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if err := task.Wait(ctx, req.Wait); err != nil {
		return nil, nil, &StageError{Stage: StageConversion, Err: err}
	}

	data, err := task.DownloadBytes(ctx)
	if err != nil {
		return nil, nil, &StageError{Stage: StageDownload, Err: err}
	}
	return task, data, nil
}

// startConversion validates the request, uploads the input when it carries
// bytes, and creates the task with the file id or URL merged into the
// options.
func (c *Client) startConversion(ctx context.Context, req ConvertRequest) (*Task, error) {
	if err := validateConversionType(req.Type); err != nil {
		return nil, err
	}
	if err := req.Input.validate(); err != nil {
		return nil, err
	}

	options := make(map[string]any, len(req.Options)+1)
	for k, v := range req.Options {
		options[k] = v
	}

	switch {
	case req.Input.url != "":
		options["url"] = req.Input.url
	case req.Input.fileID != "":
		options["file_id"] = req.Input.fileID
	default:
		h, err := c.Upload(ctx, req.Input)
		if err != nil {
			return nil, &StageError{Stage: StageUpload, Err: err}
		}
		options["file_id"] = h.ID
	}

	task, err := c.CreateTask(ctx, req.Type, options, req.CallbackURL)
	if err != nil {
		return nil, &StageError{Stage: StageConversion, Err: err}
	}
	return task, nil
}
