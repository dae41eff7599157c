package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modwatch/modwatch/internal/provider"
	"github.com/modwatch/modwatch/internal/provider/github"
	"github.com/modwatch/modwatch/internal/registry"
	"github.com/modwatch/modwatch/internal/syncer"
	"github.com/modwatch/modwatch/internal/testutil"
)

func TestLoadRegistry_UnreadableStoreStartsEmpty(t *testing.T) {
	ctx := context.Background()
	providers := provider.NewSet(github.New(github.Config{}, testutil.NopLogger()))

	// A directory cannot be read as a registry file.
	store := registry.NewFileStore(t.TempDir(), testutil.NopLogger())
	reg := registry.New(store, providers, testutil.NopLogger())

	loadRegistry(ctx, reg, testutil.NewTestLogger(t))
	assert.Equal(t, 0, reg.Len())

	engine := syncer.New(reg, providers, syncer.Config{}, testutil.NopLogger())
	assert.Equal(t, 0, runOnce(ctx, engine, testutil.NopLogger()))
}

func TestLoadRegistry_KeepsStoredSources(t *testing.T) {
	ctx := context.Background()
	providers := provider.NewSet(github.New(github.Config{}, testutil.NopLogger()))
	store := registry.NewMemoryStore(nil)

	seed := registry.New(store, providers, testutil.NopLogger())
	require.NoError(t, seed.Load(ctx))
	require.NoError(t, seed.Add(ctx, "https://github.com/owner/repo"))

	reg := registry.New(store, providers, testutil.NopLogger())
	loadRegistry(ctx, reg, testutil.NopLogger())
	assert.Equal(t, 1, reg.Len())
}
