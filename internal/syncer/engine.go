// Package syncer checks every tracked source for a new release and rotates
// the registry's current/previous snapshots.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/modwatch/modwatch/internal/provider"
	"github.com/modwatch/modwatch/internal/registry"
	"github.com/modwatch/modwatch/internal/release"
)

const (
	DefaultConcurrency  = 4
	DefaultFetchTimeout = 30 * time.Second
)

// WebSocket message types.
const (
	MessageSyncStarted   = "sync:started"
	MessageSyncCompleted = "sync:completed"
)

var ErrSyncInProgress = errors.New("sync already in progress")

// Resolver maps a source id to the provider that serves it.
type Resolver interface {
	Resolve(id release.SourceID) (provider.Provider, error)
}

// Broadcaster sends sync lifecycle messages to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Listener follows a sync run. Calls may come from several goroutines.
type Listener interface {
	SyncStarted(total int)
	SourceChecked(done, total int, id release.SourceID, err error)
	SyncFinished(report *Report, err error)
}

// Config controls fetch parallelism.
type Config struct {
	Concurrency  int
	FetchTimeout time.Duration
}

// SourceError pairs a source with the reason its check failed.
type SourceError struct {
	ID    release.SourceID `json:"id"`
	Error string           `json:"error"`
	Err   error            `json:"-"`
}

// Report summarizes one SyncAll run.
type Report struct {
	Total      int                `json:"total"`
	Changed    []release.SourceID `json:"changed"`
	Errors     []SourceError      `json:"errors"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Engine runs sync passes over the registry.
type Engine struct {
	registry *registry.Registry
	resolver Resolver
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time

	broadcaster Broadcaster
	listener    Listener

	running atomic.Bool

	mu   sync.RWMutex
	last *Report
}

// New creates a sync engine.
func New(reg *registry.Registry, resolver Resolver, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &Engine{
		registry: reg,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger.With().Str("component", "sync").Logger(),
		now:      time.Now,
	}
}

// SetBroadcaster sets the broadcaster for sync lifecycle messages.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.broadcaster = b
}

// SetListener sets the run listener.
func (e *Engine) SetListener(l Listener) {
	e.listener = l
}

// Running reports whether a sync is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// LastReport returns the most recent completed report, or nil.
func (e *Engine) LastReport() *Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

type fetchResult struct {
	info release.ReleaseInfo
	err  error
}

// SyncAll fetches the latest release of every source and applies the
// rotation policy in one registry update. Per-source failures are collected
// in the report and never abort the run. A persistence failure is returned
// together with the report.
func (e *Engine) SyncAll(ctx context.Context) (*Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer e.running.Store(false)

	ids := e.registry.IDs()
	report := &Report{
		Total:     len(ids),
		Changed:   []release.SourceID{},
		Errors:    []SourceError{},
		StartedAt: e.now(),
	}

	e.logger.Info().Int("sources", len(ids)).Msg("Starting sync")
	e.broadcast(MessageSyncStarted, map[string]interface{}{"total": len(ids)})
	if e.listener != nil {
		e.listener.SyncStarted(len(ids))
	}

	results := e.fetchAll(ctx, ids)

	var err error
	if len(ids) > 0 {
		err = e.apply(ctx, ids, results, report)
	}
	report.FinishedAt = e.now()

	e.mu.Lock()
	e.last = report
	e.mu.Unlock()

	logEvent := e.logger.Info()
	if err != nil {
		logEvent = e.logger.Error().Err(err)
	}
	logEvent.
		Int("total", report.Total).
		Int("changed", len(report.Changed)).
		Int("errors", len(report.Errors)).
		Dur("elapsed", report.Duration()).
		Msg("Sync finished")

	e.broadcast(MessageSyncCompleted, report)
	if e.listener != nil {
		e.listener.SyncFinished(report, err)
	}

	if err != nil {
		return report, fmt.Errorf("failed to persist sync results: %w", err)
	}
	return report, nil
}

// apply rotates every fetched release into the registry in one update.
// Rotation is applied even if ctx was cancelled so completed fetches are kept.
func (e *Engine) apply(ctx context.Context, ids []release.SourceID, results []fetchResult, report *Report) error {
	return e.registry.Update(context.WithoutCancel(ctx), func(sources map[release.SourceID]*release.TrackedSource) {
		for i, id := range ids {
			src, ok := sources[id]
			if !ok {
				continue
			}
			res := results[i]
			if res.err != nil {
				report.Errors = append(report.Errors, SourceError{ID: id, Error: res.err.Error(), Err: res.err})
				continue
			}
			if Rotate(src, res.info) {
				report.Changed = append(report.Changed, id)
			}
		}
	})
}

func (e *Engine) fetchAll(ctx context.Context, ids []release.SourceID) []fetchResult {
	results := make([]fetchResult, len(ids))

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)

	var done atomic.Int64
	for i, id := range ids {
		g.Go(func() error {
			results[i] = e.fetchOne(ctx, id)
			n := int(done.Add(1))
			if e.listener != nil {
				e.listener.SourceChecked(n, len(ids), id, results[i].err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Engine) fetchOne(ctx context.Context, id release.SourceID) fetchResult {
	logger := e.logger.With().Str("source", id.String()).Logger()

	p, err := e.resolver.Resolve(id)
	if err != nil {
		logger.Warn().Err(err).Msg("No provider for source")
		return fetchResult{err: err}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	info, err := p.Fetch(fetchCtx, id)
	if err != nil {
		logger.Warn().Err(err).Str("kind", string(p.Kind())).Msg("Failed to fetch latest release")
		return fetchResult{err: err}
	}

	logger.Debug().Str("version", info.Version).Str("asset", info.AssetName).Msg("Fetched latest release")
	return fetchResult{info: info}
}

func (e *Engine) broadcast(msgType string, payload interface{}) {
	if e.broadcaster == nil {
		return
	}
	if err := e.broadcaster.Broadcast(msgType, payload); err != nil {
		e.logger.Warn().Err(err).Str("type", msgType).Msg("Failed to broadcast sync message")
	}
}
