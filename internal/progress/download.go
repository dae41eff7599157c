package progress

import (
	"fmt"
	"math"

	"github.com/modwatch/modwatch/internal/download"
)

// DownloadObserver turns download events into a download activity.
type DownloadObserver struct {
	manager *Manager
	title   string
	started bool
}

// NewDownloadObserver returns an observer for one download. The activity is
// created on the first event, keyed by the download id.
func (m *Manager) NewDownloadObserver(title string) *DownloadObserver {
	return &DownloadObserver{manager: m, title: title}
}

func (o *DownloadObserver) OnEvent(e download.Event) {
	id := "download-" + e.DownloadID
	if !o.started {
		o.started = true
		title := o.title
		if title == "" {
			title = e.Name
		}
		o.manager.StartActivity(id, ActivityTypeDownload, title)
		o.manager.UpdateActivityMetadata(id, "downloadId", e.DownloadID)
		o.manager.UpdateActivityMetadata(id, "sourceId", string(e.SourceID))
	}

	switch e.Kind {
	case download.EventProgress:
		progress := e.Percent
		if e.TotalBytes == 0 {
			progress = -1
		}
		o.manager.UpdateActivity(id, FormatDownload(e), progress)
	case download.EventComplete:
		o.manager.UpdateActivityMetadata(id, "path", e.Path)
		o.manager.CompleteActivity(id, "Download complete")
	case download.EventCancelled:
		o.manager.CancelActivity(id)
	case download.EventFailed:
		msg := "Download failed"
		if e.Err != nil {
			msg = fmt.Sprintf("Download failed: %v", e.Err)
		}
		o.manager.FailActivity(id, msg)
	}
}

// FormatDownload renders a progress line such as
// "512 KB / 2048 KB | 256.00 KB/s | 6 s left | 25%".
func FormatDownload(e download.Event) string {
	eta := "-"
	if e.HasETA {
		eta = fmt.Sprintf("%d s left", int64(math.Floor(e.ETA.Seconds())))
	}
	return fmt.Sprintf("%d KB / %d KB | %.2f KB/s | %s | %d%%",
		e.BytesTransferred/1024,
		e.TotalBytes/1024,
		e.Throughput/1024,
		eta,
		e.Percent,
	)
}
