// Package registry holds the ordered set of tracked sources and persists it
// after every mutation.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/modwatch/modwatch/internal/release"
)

// Validator decides whether a source id is acceptable.
type Validator interface {
	Validate(id release.SourceID) error
}

// Registry is the process-wide record of tracked sources.
// All reads and writes go through one mutex; Store calls happen under it too.
type Registry struct {
	store     Store
	validator Validator
	logger    zerolog.Logger

	mu      sync.Mutex
	order   []release.SourceID
	sources map[release.SourceID]*release.TrackedSource
	layout  json.RawMessage
}

// New creates an empty registry. Call Load to populate it from the store.
func New(store Store, validator Validator, logger zerolog.Logger) *Registry {
	return &Registry{
		store:     store,
		validator: validator,
		logger:    logger.With().Str("component", "registry").Logger(),
		sources:   make(map[release.SourceID]*release.TrackedSource),
	}
}

// Load replaces the in-memory state with the stored registry. On failure the
// registry is left empty and the error wraps ErrStorageUnavailable.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reset()

	snap, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to load registry, starting empty")
		return fmt.Errorf("%w: %w", release.ErrStorageUnavailable, err)
	}
	if snap == nil {
		return nil
	}

	for _, src := range snap.Sources {
		if _, dup := r.sources[src.ID]; dup || src.ID == "" {
			r.logger.Warn().Str("source", src.ID.String()).Msg("Skipping duplicate or empty source in stored registry")
			continue
		}
		clone := src.Clone()
		r.order = append(r.order, clone.ID)
		r.sources[clone.ID] = &clone
	}
	r.layout = cloneRaw(snap.Layout)

	r.logger.Info().Int("sources", len(r.order)).Msg("Registry loaded")
	return nil
}

// Add registers a new source with no known releases.
func (r *Registry) Add(ctx context.Context, id release.SourceID) error {
	id = normalize(id)
	if err := r.validator.Validate(id); err != nil {
		if errors.Is(err, release.ErrInvalidSource) {
			return err
		}
		return fmt.Errorf("%w: %w", release.ErrInvalidSource, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[id]; exists {
		return fmt.Errorf("%w: %s", release.ErrAlreadyTracked, id)
	}

	r.order = append(r.order, id)
	r.sources[id] = &release.TrackedSource{ID: id}

	r.logger.Info().Str("source", id.String()).Msg("Source added")
	return r.saveLocked(ctx)
}

// ImportResult describes the outcome of a bulk import.
type ImportResult struct {
	Added   []release.SourceID `json:"added"`
	Skipped []release.SourceID `json:"skipped"`
	Invalid []ImportError      `json:"invalid"`
}

// ImportError pairs a rejected id with the reason.
type ImportError struct {
	ID    release.SourceID `json:"id"`
	Error string           `json:"error"`
}

// Import adds every valid, untracked id and persists once.
func (r *Registry) Import(ctx context.Context, ids []release.SourceID) (*ImportResult, error) {
	result := &ImportResult{}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		id = normalize(id)
		if err := r.validator.Validate(id); err != nil {
			result.Invalid = append(result.Invalid, ImportError{ID: id, Error: err.Error()})
			continue
		}
		if _, exists := r.sources[id]; exists {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		r.order = append(r.order, id)
		r.sources[id] = &release.TrackedSource{ID: id}
		result.Added = append(result.Added, id)
	}

	if len(result.Added) == 0 {
		return result, nil
	}

	r.logger.Info().Int("added", len(result.Added)).Int("skipped", len(result.Skipped)).Int("invalid", len(result.Invalid)).Msg("Sources imported")
	return result, r.saveLocked(ctx)
}

// Remove deletes the given sources. Unknown ids are ignored.
func (r *Registry) Remove(ctx context.Context, ids ...release.SourceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[release.SourceID]struct{}, len(ids))
	for _, id := range ids {
		drop[normalize(id)] = struct{}{}
	}

	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		if _, ok := drop[id]; ok {
			delete(r.sources, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept

	r.logger.Info().Int("requested", len(ids)).Int("removed", removed).Msg("Sources removed")
	return r.saveLocked(ctx)
}

// Rename overrides the display name of the current release.
func (r *Registry) Rename(ctx context.Context, id release.SourceID, name string) error {
	id = normalize(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return fmt.Errorf("%w: %s", release.ErrNotFound, id)
	}
	if src.Current == nil {
		return fmt.Errorf("%w: %s has no release to rename yet", release.ErrNotFound, id)
	}

	src.Current.DisplayName = strings.TrimSpace(name)

	r.logger.Info().Str("source", id.String()).Str("name", src.Current.DisplayName).Msg("Source renamed")
	return r.saveLocked(ctx)
}

// Get returns a copy of one tracked source.
func (r *Registry) Get(id release.SourceID) (release.TrackedSource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[normalize(id)]
	if !ok {
		return release.TrackedSource{}, false
	}
	return src.Clone(), true
}

// List returns copies of all tracked sources in insertion order.
func (r *Registry) List() []release.TrackedSource {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]release.TrackedSource, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sources[id].Clone())
	}
	return out
}

// IDs returns the tracked ids in insertion order.
func (r *Registry) IDs() []release.SourceID {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]release.SourceID, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of tracked sources.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// ErrInvalidLayout is returned by SetLayout for a layout that is not JSON.
var ErrInvalidLayout = errors.New("layout is not valid JSON")

// Layout returns the presentation layer's stored column layout.
func (r *Registry) Layout() json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneRaw(r.layout)
}

// SetLayout stores the presentation layer's column layout and persists.
func (r *Registry) SetLayout(ctx context.Context, layout json.RawMessage) error {
	if len(layout) > 0 && !json.Valid(layout) {
		return ErrInvalidLayout
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.layout = cloneRaw(layout)
	return r.saveLocked(ctx)
}

// Update runs fn with mutable access to every tracked source under the
// registry lock and persists once afterwards. fn must not retain the map.
func (r *Registry) Update(ctx context.Context, fn func(sources map[release.SourceID]*release.TrackedSource)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn(r.sources)
	return r.saveLocked(ctx)
}

func (r *Registry) saveLocked(ctx context.Context) error {
	snap := &Snapshot{
		Sources: make([]release.TrackedSource, 0, len(r.order)),
		Layout:  cloneRaw(r.layout),
	}
	for _, id := range r.order {
		snap.Sources = append(snap.Sources, r.sources[id].Clone())
	}

	if err := r.store.Save(ctx, snap); err != nil {
		r.logger.Error().Err(err).Msg("Failed to persist registry")
		return fmt.Errorf("%w: %w", release.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *Registry) reset() {
	r.order = nil
	r.sources = make(map[release.SourceID]*release.TrackedSource)
	r.layout = nil
}

func normalize(id release.SourceID) release.SourceID {
	return release.SourceID(strings.TrimSpace(string(id)))
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
