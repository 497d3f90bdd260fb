package conversion

import "io"

// ProgressEvent reports byte-level transfer progress for uploads and
// downloads. Percent is -1 when the total size is unknown (unsized
// streams); callers should then treat Loaded as best-effort.
type ProgressEvent struct {
	Loaded  int64
	Total   int64
	Percent int
}

// TaskProgress is a status snapshot delivered once per poll during Wait.
type TaskProgress struct {
	TaskID  string
	Status  Status
	Percent int
}

// TransferObserver receives byte-level progress updates during uploads and
// downloads.
type TransferObserver interface {
	OnTransferProgress(ProgressEvent)
}

// TaskObserver receives status snapshots while waiting on a task.
type TaskObserver interface {
	OnTaskProgress(TaskProgress)
}

// TransferObserverFunc adapts a function to a TransferObserver.
type TransferObserverFunc func(ProgressEvent)

func (f TransferObserverFunc) OnTransferProgress(e ProgressEvent) { f(e) }

// TaskObserverFunc adapts a function to a TaskObserver.
type TaskObserverFunc func(TaskProgress)

func (f TaskObserverFunc) OnTaskProgress(p TaskProgress) { f(p) }

func percent(loaded, total int64) int {
	if total <= 0 {
		return -1
	}
	p := int(loaded * 100 / total)
	if p > 100 {
		p = 100
	}
	return p
}

// progressReader counts bytes read from the wrapped reader and notifies the
// observer. Used to track upload progress while the request body streams.
type progressReader struct {
	r      io.Reader
	total  int64
	loaded int64
	obs    TransferObserver
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.loaded += int64(n)
		p.obs.OnTransferProgress(ProgressEvent{
			Loaded:  p.loaded,
			Total:   p.total,
			Percent: percent(p.loaded, p.total),
		})
	}
	return n, err
}

// progressWriter counts bytes written and notifies the observer. Used to
// track download progress while the response body drains.
type progressWriter struct {
	w      io.Writer
	total  int64
	loaded int64
	obs    TransferObserver
}

func (p *progressWriter) Write(buf []byte) (int, error) {
	n, err := p.w.Write(buf)
	if n > 0 {
		p.loaded += int64(n)
		p.obs.OnTransferProgress(ProgressEvent{
			Loaded:  p.loaded,
			Total:   p.total,
			Percent: percent(p.loaded, p.total),
		})
	}
	return n, err
}
