package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/modwatch/modwatch/internal/release"
)

const (
	lockTimeout    = 5 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

// FileStore persists the registry as a single JSON object. Keys are source ids
// in insertion order, plus LayoutKey for the column layout.
type FileStore struct {
	path   string
	logger zerolog.Logger
}

type storedSource struct {
	Current  *release.ReleaseInfo `json:"current"`
	Previous *release.ReleaseInfo `json:"previous"`
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.With().Str("component", "filestore").Str("path", path).Logger(),
	}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the registry file. A missing file or malformed content yields an
// empty snapshot; only read failures are returned as errors.
func (s *FileStore) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug().Msg("Registry file not found, starting empty")
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &Snapshot{}, nil
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Registry file is malformed, starting empty")
		return &Snapshot{}, nil
	}
	return snap, nil
}

// Save replaces the registry file atomically: write a temp file in the same
// directory, fsync it, then rename it over the target. Writers in other
// processes are serialized with an advisory lock on "<path>.lock".
func (s *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace registry file: %w", err)
	}

	s.logger.Debug().Int("sources", len(snap.Sources)).Msg("Registry saved")
	return nil
}

func (s *FileStore) lock(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	fl := flock.New(s.path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock registry file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("registry file %s is locked by another writer", s.path)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to release registry lock")
		}
	}, nil
}

func encodeSnapshot(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	writeEntry := func(key string, value []byte) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(value)
		return nil
	}

	for _, src := range snap.Sources {
		value, err := json.Marshal(storedSource{Current: src.Current, Previous: src.Previous})
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", src.ID, err)
		}
		if err := writeEntry(string(src.ID), value); err != nil {
			return nil, err
		}
	}
	if len(snap.Layout) > 0 {
		if err := writeEntry(LayoutKey, snap.Layout); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("failed to format registry: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// decodeSnapshot walks the top-level object token by token so that key order
// is kept.
func decodeSnapshot(data []byte) (*Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	snap := &Snapshot{}
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected key, got %v", tok)
		}

		if key == LayoutKey {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, fmt.Errorf("layout: %w", err)
			}
			if !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
				snap.Layout = raw
			}
			continue
		}

		var value storedSource
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		snap.Sources = append(snap.Sources, release.TrackedSource{
			ID:       release.SourceID(key),
			Current:  value.Current,
			Previous: value.Previous,
		})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after registry object")
	}
	return snap, nil
}
