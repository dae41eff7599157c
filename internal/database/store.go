package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/modwatch/modwatch/internal/registry"
	"github.com/modwatch/modwatch/internal/release"
)

// Store keeps the registry in SQLite. It implements registry.Store.
type Store struct {
	db     *DB
	logger zerolog.Logger
}

var _ registry.Store = (*Store)(nil)

// NewStore returns a registry store over an already migrated database.
func NewStore(db *DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "sqlite-store").Logger(),
	}
}

// Load reads every source in position order plus the stored layout.
func (s *Store) Load(ctx context.Context) (*registry.Snapshot, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT id, current, previous FROM sources ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	snap := &registry.Snapshot{}
	for rows.Next() {
		var (
			id                string
			current, previous sql.NullString
		)
		if err := rows.Scan(&id, &current, &previous); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}

		src := release.TrackedSource{ID: release.SourceID(id)}
		if src.Current, err = decodeRelease(current); err != nil {
			s.logger.Warn().Err(err).Str("source", id).Msg("Dropping unreadable current release")
		}
		if src.Previous, err = decodeRelease(previous); err != nil {
			s.logger.Warn().Err(err).Str("source", id).Msg("Dropping unreadable previous release")
		}
		snap.Sources = append(snap.Sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}

	var layout string
	err = s.db.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, registry.LayoutKey).Scan(&layout)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to read layout: %w", err)
	default:
		snap.Layout = json.RawMessage(layout)
	}

	return snap, nil
}

// Save replaces all stored sources and the layout in one transaction.
func (s *Store) Save(ctx context.Context, snap *registry.Snapshot) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM sources`); err != nil {
		return fmt.Errorf("failed to clear sources: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sources (id, position, current, previous, updated_at) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, src := range snap.Sources {
		current, err := encodeRelease(src.Current)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", src.ID, err)
		}
		previous, err := encodeRelease(src.Previous)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", src.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, string(src.ID), i, current, previous); err != nil {
			return fmt.Errorf("failed to insert %s: %w", src.ID, err)
		}
	}

	if len(snap.Layout) > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			registry.LayoutKey, string(snap.Layout))
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, registry.LayoutKey)
	}
	if err != nil {
		return fmt.Errorf("failed to store layout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registry: %w", err)
	}
	return nil
}

func encodeRelease(info *release.ReleaseInfo) (sql.NullString, error) {
	if info == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(info)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeRelease(value sql.NullString) (*release.ReleaseInfo, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	var info release.ReleaseInfo
	if err := json.Unmarshal([]byte(value.String), &info); err != nil {
		return nil, err
	}
	return &info, nil
}
