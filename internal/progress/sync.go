package progress

import (
	"fmt"
	"time"

	"github.com/modwatch/modwatch/internal/release"
	"github.com/modwatch/modwatch/internal/syncer"
)

// SyncListener reports sync runs as activities.
type SyncListener struct {
	manager *Manager
	id      string
}

// NewSyncListener returns a listener that can be set on a sync engine.
func (m *Manager) NewSyncListener() *SyncListener {
	return &SyncListener{manager: m}
}

func (l *SyncListener) SyncStarted(total int) {
	l.id = fmt.Sprintf("sync-%d", time.Now().UnixNano())
	l.manager.StartActivity(l.id, ActivityTypeSync, "Checking for updates")
	l.manager.UpdateActivity(l.id, fmt.Sprintf("0 / %d sources", total), 0)
}

func (l *SyncListener) SourceChecked(done, total int, _ release.SourceID, _ error) {
	progress := 100
	if total > 0 {
		progress = done * 100 / total
	}
	l.manager.UpdateActivity(l.id, fmt.Sprintf("%d / %d sources", done, total), progress)
}

func (l *SyncListener) SyncFinished(report *syncer.Report, err error) {
	if err != nil {
		l.manager.FailActivity(l.id, err.Error())
		return
	}
	l.manager.CompleteActivity(l.id, fmt.Sprintf("%d updated, %d failed", len(report.Changed), len(report.Errors)))
}
