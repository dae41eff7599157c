package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modwatch/modwatch/internal/release"
	"github.com/modwatch/modwatch/internal/testutil"
)

func TestFileStore_MissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "mods.json"), testutil.NewTestLogger(t))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Sources)
	assert.Nil(t, snap.Layout)
}

func TestFileStore_Malformed(t *testing.T) {
	for name, content := range map[string]string{
		"truncated":   `{"https://github.com/foo/bar": {"current": `,
		"not object":  `["https://github.com/foo/bar"]`,
		"bad value":   `{"https://github.com/foo/bar": 7}`,
		"trailing":    `{} {}`,
		"plain text":  `hello`,
		"whitespace ": "  \n",
	} {
		t.Run(name, func(t *testing.T) {
			path := testutil.WriteFile(t, t.TempDir(), "mods.json", []byte(content))
			store := NewFileStore(path, testutil.NewTestLogger(t))

			snap, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Empty(t, snap.Sources)
		})
	}
}

func TestFileStore_RoundTripPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mods.json")
	store := NewFileStore(path, testutil.NewTestLogger(t))
	ctx := context.Background()

	current := &release.ReleaseInfo{
		DisplayName: "bar",
		Version:     "v2",
		PublishedAt: "2025-03-01T10:00:00Z",
		AssetURL:    "https://dl/bar.zip",
		AssetName:   "bar.zip",
		IsFresh:     true,
	}
	previous := &release.ReleaseInfo{DisplayName: "bar", Version: "v1"}

	// Keys deliberately out of lexical order.
	in := &Snapshot{
		Sources: []release.TrackedSource{
			{ID: "https://www.farming-simulator.com/mod.php?mod_id=9"},
			{ID: "https://github.com/zeta/one", Current: current, Previous: previous},
			{ID: "https://github.com/alpha/two"},
		},
		Layout: json.RawMessage(`{"name":200,"version":80}`),
	}
	require.NoError(t, store.Save(ctx, in))

	out, err := store.Load(ctx)
	require.NoError(t, err)

	require.Len(t, out.Sources, 3)
	for i := range in.Sources {
		assert.Equal(t, in.Sources[i].ID, out.Sources[i].ID)
	}
	assert.Equal(t, current, out.Sources[1].Current)
	assert.Equal(t, previous, out.Sources[1].Previous)
	assert.Nil(t, out.Sources[0].Current)
	assert.JSONEq(t, `{"name":200,"version":80}`, string(out.Layout))
}

func TestFileStore_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mods.json")
	store := NewFileStore(path, testutil.NopLogger())

	err := store.Save(context.Background(), &Snapshot{
		Sources: []release.TrackedSource{
			{ID: "https://github.com/foo/bar", Current: &release.ReleaseInfo{DisplayName: "bar", Version: "v1"}},
		},
		Layout: json.RawMessage(`[100,50]`),
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"https://github.com/foo/bar": {
			"current": {"displayName": "bar", "version": "v1", "isFresh": false},
			"previous": null
		},
		"_column_widths": [100, 50]
	}`, string(data))
	assert.NotContains(t, string(data), "N/A")
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "mods.json"), testutil.NopLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, &Snapshot{}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"mods.json", "mods.json.lock"}, names)
}

func TestFileStore_SaveWaitsForLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mods.json")
	store := NewFileStore(path, testutil.NopLogger())

	other := flock.New(path + ".lock")
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.Error(t, store.Save(ctx, &Snapshot{}))
	assert.False(t, testutil.FileExists(t, path))

	require.NoError(t, other.Unlock())
	require.NoError(t, store.Save(context.Background(), &Snapshot{}))
	assert.True(t, testutil.FileExists(t, path))
}

func TestFileStore_SaveFailureKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mods.json")
	store := NewFileStore(path, testutil.NopLogger())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Snapshot{Sources: []release.TrackedSource{{ID: "https://github.com/foo/bar"}}}))

	// Invalid raw layout makes encoding fail before anything is written.
	err := store.Save(ctx, &Snapshot{Layout: json.RawMessage(`{not json`)})
	require.Error(t, err)

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Sources, 1)
	assert.True(t, strings.HasPrefix(string(snap.Sources[0].ID), "https://github.com/"))
}

func TestRegistry_WithFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mods.json")
	ctx := context.Background()

	reg := newTestRegistry(t, NewFileStore(path, testutil.NopLogger()))
	require.NoError(t, reg.Add(ctx, repoB))
	require.NoError(t, reg.Add(ctx, repoA))
	require.NoError(t, reg.Add(ctx, modHubC))
	require.NoError(t, reg.Remove(ctx, repoA))

	reloaded := newTestRegistry(t, NewFileStore(path, testutil.NopLogger()))
	assert.Equal(t, []release.SourceID{repoB, modHubC}, reloaded.IDs())
}
