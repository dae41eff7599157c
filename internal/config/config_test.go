package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8484", cfg.Server.Address())
	assert.Equal(t, BackendJSON, cfg.Storage.Backend)
	assert.Equal(t, "./data/repositories.json", cfg.Storage.Path)
	assert.True(t, cfg.Sync.RunOnStart)
	assert.Equal(t, 4, cfg.Sync.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Sync.FetchTimeout)
	assert.Equal(t, 8192, cfg.Download.ChunkSize)
	assert.Equal(t, "https://api.github.com", cfg.Providers.GitHub.APIURL)
	assert.Equal(t, []string{"farming-simulator.com"}, cfg.Providers.Catalog.Domains)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9000
storage:
  backend: sqlite
  path: /tmp/modwatch.db
sync:
  cron: "*/30 * * * *"
  run_on_start: false
  fetch_timeout: 5s
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv("MODWATCH_SERVER_HOST", "0.0.0.0")
	t.Setenv("MODWATCH_SYNC_CONCURRENCY", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Address())
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/modwatch.db", cfg.Storage.Path)
	assert.Equal(t, "*/30 * * * *", cfg.Sync.Cron)
	assert.False(t, cfg.Sync.RunOnStart)
	assert.Equal(t, 5*time.Second, cfg.Sync.FetchTimeout)
	assert.Equal(t, 8, cfg.Sync.Concurrency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "redis" }, wantErr: true},
		{name: "empty path", mutate: func(c *Config) { c.Storage.Path = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:  ServerConfig{Host: "127.0.0.1", Port: 8484},
				Storage: StorageConfig{Backend: BackendJSON, Path: "repos.json"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestModsDir(t *testing.T) {
	home := func() (string, error) { return "/home/farmer", nil }
	noHome := func() (string, error) { return "", errors.New("no home") }

	env := func(vals map[string]string) func(string) string {
		return func(k string) string { return vals[k] }
	}

	assert.Equal(t,
		filepath.Join("/home/farmer", ".local", "share", "FarmingSimulator2025", "mods"),
		modsDir("linux", env(nil), home))
	assert.Equal(t,
		filepath.Join(`C:\Users\farmer`, "Documents", "My Games", "FarmingSimulator2025", "mods"),
		modsDir("windows", env(map[string]string{"USERPROFILE": `C:\Users\farmer`}), noHome))
	assert.Equal(t, "mods", modsDir("linux", env(nil), noHome))
	assert.Equal(t, "mods", modsDir("windows", env(nil), noHome))
}
