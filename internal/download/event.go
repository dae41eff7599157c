package download

import (
	"time"

	"github.com/modwatch/modwatch/internal/release"
)

// EventKind identifies a download event.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventComplete  EventKind = "complete"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
)

// Terminal reports whether no further events follow this kind.
func (k EventKind) Terminal() bool {
	return k == EventComplete || k == EventFailed || k == EventCancelled
}

// Event is emitted after every chunk and once at the end of a transfer.
// TotalBytes is zero when the server did not announce a length; Percent is
// then zero as well. ETA is only meaningful when HasETA is set.
type Event struct {
	DownloadID       string           `json:"downloadId"`
	SourceID         release.SourceID `json:"sourceId,omitempty"`
	Name             string           `json:"name"`
	Kind             EventKind        `json:"kind"`
	BytesTransferred int64            `json:"bytesTransferred"`
	TotalBytes       int64            `json:"totalBytes"`
	Throughput       float64          `json:"throughput"`
	ETA              time.Duration    `json:"eta,omitempty"`
	HasETA           bool             `json:"hasEta"`
	Percent          int              `json:"percent"`
	Path             string           `json:"path,omitempty"`
	Err              error            `json:"-"`
}

// Observer receives download events. Calls for one download arrive in order
// from the transfer goroutine.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

type multiObserver []Observer

func (m multiObserver) OnEvent(e Event) {
	for _, o := range m {
		o.OnEvent(e)
	}
}

// MultiObserver fans events out to every non-nil observer.
func MultiObserver(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}

// measure fills the rate fields of e from the bytes moved so far.
func measure(e *Event, elapsed time.Duration) {
	e.Throughput = 0
	e.HasETA = false
	e.ETA = 0
	e.Percent = 0

	if secs := elapsed.Seconds(); secs > 0 {
		e.Throughput = float64(e.BytesTransferred) / secs
	}
	if e.TotalBytes > 0 {
		e.Percent = int(e.BytesTransferred * 100 / e.TotalBytes)
		if e.Percent > 100 {
			e.Percent = 100
		}
		if e.Throughput > 0 {
			remaining := e.TotalBytes - e.BytesTransferred
			if remaining < 0 {
				remaining = 0
			}
			e.ETA = time.Duration(float64(remaining) / e.Throughput * float64(time.Second))
			e.HasETA = true
		}
	}
}
