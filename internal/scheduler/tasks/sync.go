// Package tasks registers the application's scheduled jobs.
package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/modwatch/modwatch/internal/config"
	"github.com/modwatch/modwatch/internal/scheduler"
	"github.com/modwatch/modwatch/internal/syncer"
)

const SyncTaskID = "release-sync"

// Syncer runs one sync pass over every tracked source.
type Syncer interface {
	SyncAll(ctx context.Context) (*syncer.Report, error)
}

// RegisterSyncTask registers the periodic release sync. An empty cron
// expression disables the task.
func RegisterSyncTask(sched *scheduler.Scheduler, engine Syncer, cfg config.SyncConfig) error {
	if cfg.Cron == "" {
		return nil
	}

	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          SyncTaskID,
		Name:        "Release Sync",
		Description: "Check every tracked source for a new release",
		Cron:        cfg.Cron,
		RunOnStart:  cfg.RunOnStart,
		Func:        syncFunc(engine),
	})
}

// ErrInvalidSchedule is returned when a new sync schedule is rejected.
var ErrInvalidSchedule = errors.New("invalid sync schedule")

// UpdateSyncTask replaces the sync task with one built from cfg. If cfg is
// rejected the previous schedule stays registered.
func UpdateSyncTask(sched *scheduler.Scheduler, engine Syncer, cfg config.SyncConfig) error {
	prev, prevErr := sched.GetTask(SyncTaskID)
	if err := sched.UnregisterTask(SyncTaskID); err != nil {
		return fmt.Errorf("failed to unregister %s task: %w", SyncTaskID, err)
	}

	err := RegisterSyncTask(sched, engine, cfg)
	if err == nil {
		return nil
	}
	if prevErr == nil {
		restore := cfg
		restore.Cron = prev.Cron
		restore.RunOnStart = false
		if rerr := RegisterSyncTask(sched, engine, restore); rerr != nil {
			return errors.Join(fmt.Errorf("%w: %w", ErrInvalidSchedule, err), rerr)
		}
	}
	return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
}

func syncFunc(engine Syncer) scheduler.TaskFunc {
	return func(ctx context.Context) error {
		report, err := engine.SyncAll(ctx)
		if errors.Is(err, syncer.ErrSyncInProgress) {
			// A manual run got there first.
			return nil
		}
		if err != nil {
			return err
		}
		if n := len(report.Errors); n > 0 {
			return fmt.Errorf("%d of %d sources failed", n, report.Total)
		}
		return nil
	}
}
