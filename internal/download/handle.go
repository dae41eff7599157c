package download

import (
	"context"
	"sync"
	"time"
)

// Handle tracks one running or finished download.
type Handle struct {
	ID        string
	Request   Request
	Path      string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	transferred int64
	total       int64
	throughput  float64
	percent     int
	err         error
}

// Status is a point-in-time view of a download.
type Status struct {
	ID               string    `json:"id"`
	SourceID         string    `json:"sourceId,omitempty"`
	Name             string    `json:"name"`
	Path             string    `json:"path"`
	BytesTransferred int64     `json:"bytesTransferred"`
	TotalBytes       int64     `json:"totalBytes"`
	Throughput       float64   `json:"throughput"`
	Percent          int       `json:"percent"`
	StartedAt        time.Time `json:"startedAt"`
}

// Cancel requests cooperative cancellation; it is checked between chunks.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the transfer has finished and cleanup is complete.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the transfer finishes and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.Err()
}

// Err returns the terminal error, or nil while running or after success.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Status returns the current progress.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{
		ID:               h.ID,
		SourceID:         h.Request.SourceID.String(),
		Name:             h.Request.Name,
		Path:             h.Path,
		BytesTransferred: h.transferred,
		TotalBytes:       h.total,
		Throughput:       h.throughput,
		Percent:          h.percent,
		StartedAt:        h.StartedAt,
	}
}

func (h *Handle) setProgress(transferred, total int64) {
	h.mu.Lock()
	h.transferred = transferred
	h.total = total
	h.mu.Unlock()
}

func (h *Handle) setRates(e Event) {
	h.mu.Lock()
	h.throughput = e.Throughput
	h.percent = e.Percent
	h.mu.Unlock()
}

func (h *Handle) snapshotEvent() Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Event{
		DownloadID:       h.ID,
		SourceID:         h.Request.SourceID,
		Name:             h.Request.Name,
		BytesTransferred: h.transferred,
		TotalBytes:       h.total,
		Throughput:       h.throughput,
		Percent:          h.percent,
	}
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}
