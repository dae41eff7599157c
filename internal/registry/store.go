package registry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/modwatch/modwatch/internal/release"
)

// LayoutKey is the reserved key holding the presentation layer's column layout.
const LayoutKey = "_column_widths"

// Snapshot is a full copy of the registry as handed to a Store.
type Snapshot struct {
	Sources []release.TrackedSource
	Layout  json.RawMessage
}

// Store persists registry snapshots. Save is always a full replace.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// MemoryStore keeps the last saved snapshot in memory.
type MemoryStore struct {
	mu    sync.Mutex
	snap  *Snapshot
	saves int
}

// NewMemoryStore returns a store seeded with snap, which may be nil.
func NewMemoryStore(snap *Snapshot) *MemoryStore {
	return &MemoryStore{snap: snap}
}

func (m *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return &Snapshot{}, nil
	}
	return copySnapshot(m.snap), nil
}

func (m *MemoryStore) Save(_ context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = copySnapshot(snap)
	m.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func copySnapshot(snap *Snapshot) *Snapshot {
	out := &Snapshot{
		Sources: make([]release.TrackedSource, 0, len(snap.Sources)),
		Layout:  cloneRaw(snap.Layout),
	}
	for _, src := range snap.Sources {
		out.Sources = append(out.Sources, src.Clone())
	}
	return out
}
