package conversion

import (
	"context"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one server-tracked conversion job. Its state fields change only
// when a server response is applied; the client never invents transitions.
// A Task is exclusively owned by its creator, but its accessors are safe to
// call while a Wait or Watch on the same Task is in flight.
type Task struct {
	ID   string
	Type string

	c *Client

	mu       sync.Mutex
	status   Status
	fileID   string
	errMsg   string
	progress int
}

// Status returns the last observed status.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Progress returns the last observed conversion percentage (0-100).
func (t *Task) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// ErrorMessage returns the server-provided error message, set only when the
// task reached ERROR.
func (t *Task) ErrorMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errMsg
}

// Done reports whether the last observed status is terminal.
func (t *Task) Done() bool {
	return t.Status().Terminal()
}

// ResultFile returns the result file handle. The second return is false
// until the task has reached SUCCESS.
func (t *Task) ResultFile() (FileHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fileID == "" {
		return FileHandle{}, false
	}
	return FileHandle{ID: t.fileID}, true
}

func (t *Task) snapshot() TaskProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskProgress{TaskID: t.ID, Status: t.status, Percent: t.progress}
}

// apply folds a status response into the task. Once a terminal status was
// observed, a stale non-terminal response cannot roll it back.
func (t *Task) apply(resp taskStatusResponse) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() && !resp.Status.Terminal() {
		t.c.log.Warn("ignoring stale non-terminal status for finished task",
			zap.String("task_id", t.ID),
			zap.String("status", string(resp.Status)),
		)
		return
	}

	t.status = resp.Status
	t.fileID = resp.FileID
	t.errMsg = resp.Error
	if resp.Status == StatusSuccess {
		t.progress = 100
	} else if resp.Progress >= t.progress {
		t.progress = resp.Progress
	}
}

// Refresh re-fetches the task status from the server.
func (t *Task) Refresh(ctx context.Context) error {
	var resp taskStatusResponse
	if err := t.c.t.getJSON(ctx, "/tasks/"+url.PathEscape(t.ID), &resp, false); err != nil {
		return err
	}
	t.apply(resp)
	return nil
}

// WaitOptions configures a single Wait or Watch call. Zero values fall back
// to the client options.
type WaitOptions struct {
	// PollingInterval is the initial delay between status polls.
	PollingInterval time.Duration

	// MaxPollingInterval caps the adaptive interval.
	MaxPollingInterval time.Duration

	// PollingBackoff is the multiplicative interval growth factor applied
	// after each non-terminal poll. Must be >= 1 when set.
	PollingBackoff float64

	// Timeout bounds the whole wait. Zero means no deadline. On expiry Wait
	// fails with a TimeoutError and the task keeps its last observed state.
	Timeout time.Duration

	// Observer receives a snapshot on every poll, including the first and
	// the terminal one. Overrides the client's conversion observer.
	Observer TaskObserver
}

func (c *Client) waitDefaults(opts WaitOptions) WaitOptions {
	if opts.PollingInterval <= 0 {
		opts.PollingInterval = c.opts.PollingInterval
	}
	if opts.MaxPollingInterval <= 0 {
		opts.MaxPollingInterval = c.opts.MaxPollingInterval
	}
	if opts.PollingBackoff < 1 {
		opts.PollingBackoff = c.opts.PollingBackoff
	}
	if opts.Observer == nil {
		opts.Observer = c.opts.ConversionObserver
	}
	return opts
}

// Wait blocks until the task reaches a terminal status, polling with an
// adaptive interval that grows by the backoff factor after every
// non-terminal poll, capped at the maximum, and never shrinks within one
// call. Returns a ConversionError when the task reaches ERROR, a
// TimeoutError when opts.Timeout elapses first, and ctx.Err() when the
// context is cancelled. The only suspension points are the HTTP polls and
// the sleeps between them, and both abort promptly on cancellation.
func (t *Task) Wait(ctx context.Context, opts WaitOptions) error {
	opts = t.c.waitDefaults(opts)
	return t.poll(ctx, opts, func(p TaskProgress) {
		if opts.Observer != nil {
			opts.Observer.OnTaskProgress(p)
		}
	})
}

// TaskUpdate is one Watch emission: a status snapshot, or the terminal error
// of the watch.
type TaskUpdate struct {
	TaskProgress
	Err error
}

// Watch is the channel-based mirror of Wait for concurrent callers. It
// returns a channel that receives a snapshot per poll and closes once the
// task reaches a terminal status, the timeout elapses, or ctx is cancelled;
// the final update carries the same error Wait would have returned.
// Abandoning the context tears the poller down without leaving a goroutine
// or timer behind.
func (t *Task) Watch(ctx context.Context, opts WaitOptions) <-chan TaskUpdate {
	opts = t.c.waitDefaults(opts)
	updates := make(chan TaskUpdate, 1)

	go func() {
		defer close(updates)
		err := t.poll(ctx, opts, func(p TaskProgress) {
			if opts.Observer != nil {
				opts.Observer.OnTaskProgress(p)
			}
			select {
			case updates <- TaskUpdate{TaskProgress: p}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			select {
			case updates <- TaskUpdate{TaskProgress: t.snapshot(), Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return updates
}

// poll drives the status polling loop shared by Wait and Watch. emit is
// called once per poll, first and terminal polls included.
func (t *Task) poll(ctx context.Context, opts WaitOptions, emit func(TaskProgress)) error {
	start := time.Now()
	interval := opts.PollingInterval
	if interval > opts.MaxPollingInterval {
		interval = opts.MaxPollingInterval
	}

	for {
		if err := t.Refresh(ctx); err != nil {
			return err
		}

		snap := t.snapshot()
		emit(snap)
		t.c.log.Debug("task polled",
			zap.String("task_id", t.ID),
			zap.String("status", string(snap.Status)),
			zap.Int("progress", snap.Percent),
		)

		switch snap.Status {
		case StatusSuccess:
			return nil
		case StatusError:
			return &ConversionError{TaskID: t.ID, Message: t.ErrorMessage()}
		}

		sleep := interval
		if opts.Timeout > 0 {
			remaining := opts.Timeout - time.Since(start)
			if remaining <= 0 {
				return &TimeoutError{TaskID: t.ID, Timeout: opts.Timeout}
			}
			if sleep > remaining {
				sleep = remaining
			}
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		interval = nextPollingInterval(interval, opts)
	}
}

// nextPollingInterval grows the interval by the backoff factor, capped at
// the maximum. It never returns less than the current interval.
func nextPollingInterval(interval time.Duration, opts WaitOptions) time.Duration {
	next := time.Duration(float64(interval) * opts.PollingBackoff)
	if next > opts.MaxPollingInterval {
		next = opts.MaxPollingInterval
	}
	if next < interval {
		return interval
	}
	return next
}

// DownloadTo downloads the task's result file to destPath. See
// Client.DownloadTo for path and atomicity semantics.
func (t *Task) DownloadTo(ctx context.Context, destPath string) (string, error) {
	h, ok := t.ResultFile()
	if !ok {
		return "", ErrNoResultFile
	}
	return t.c.DownloadTo(ctx, h, destPath)
}

// DownloadBytes downloads the task's result file into memory.
func (t *Task) DownloadBytes(ctx context.Context) ([]byte, error) {
	h, ok := t.ResultFile()
	if !ok {
		return nil, ErrNoResultFile
	}
	return t.c.DownloadBytes(ctx, h)
}
