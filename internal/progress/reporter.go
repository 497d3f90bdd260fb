package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/conversiontools/conversiontools-go/pkg/conversion"
)

// Options configures the progress reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// MinInterval throttles transfer progress lines so fast transfers do
	// not flood the terminal. Task status lines are never throttled.
	// Default: 200ms
	MinInterval time.Duration
}

// Reporter prints human-readable conversion progress. It satisfies both
// observer interfaces of the client, so one Reporter can be wired into
// uploads, downloads, and task polling at once.
type Reporter struct {
	opts Options

	mu         sync.Mutex
	label      string
	lastLine   time.Time
	lastStatus conversion.Status
	open       bool
}

// NewReporter creates a progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.MinInterval == 0 {
		opts.MinInterval = 200 * time.Millisecond
	}
	return &Reporter{opts: opts}
}

// SetLabel names the transfer shown on byte-progress lines, typically the
// file being uploaded or downloaded.
func (r *Reporter) SetLabel(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.label = label
}

// OnTransferProgress prints a carriage-return updated byte progress line.
func (r *Reporter) OnTransferProgress(e conversion.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	done := e.Total > 0 && e.Loaded >= e.Total
	if !done && time.Since(r.lastLine) < r.opts.MinInterval {
		return
	}
	r.lastLine = time.Now()

	if e.Percent >= 0 {
		fmt.Fprintf(r.opts.Output, "\r[ctools] %s: %3d%% | %s / %s    ",
			r.label, e.Percent, FormatBytes(e.Loaded), FormatBytes(e.Total))
	} else {
		fmt.Fprintf(r.opts.Output, "\r[ctools] %s: %s    ",
			r.label, FormatBytes(e.Loaded))
	}
	r.open = true

	if done {
		fmt.Fprintln(r.opts.Output)
		r.open = false
	}
}

// OnTaskProgress prints one line per observed task status change, and
// updates the percentage in place while the status stays the same.
func (r *Reporter) OnTaskProgress(p conversion.TaskProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Status != r.lastStatus {
		if r.open {
			fmt.Fprintln(r.opts.Output)
		}
		r.lastStatus = p.Status
	}

	fmt.Fprintf(r.opts.Output, "\r[ctools] Task %s: %s %3d%%    ", p.TaskID, p.Status, p.Percent)
	r.open = true

	if p.Status.Terminal() {
		fmt.Fprintln(r.opts.Output)
		r.open = false
	}
}

// Finish closes a dangling progress line, if any.
func (r *Reporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open {
		fmt.Fprintln(r.opts.Output)
		r.open = false
	}
}

// FormatBytes formats bytes as a human-readable string.
func FormatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// FormatDuration formats a duration as a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) - m*60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) - h*60
	return fmt.Sprintf("%dh %dm", h, m)
}
