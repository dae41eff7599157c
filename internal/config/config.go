package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is injected at build time via ldflags:
//
//	go build -ldflags "-X 'github.com/modwatch/modwatch/internal/config.Version=1.2.3'"
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Download  DownloadConfig  `mapstructure:"download"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Sources   SourcesConfig   `mapstructure:"sources"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// StorageConfig selects where the registry is persisted.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SyncConfig controls scheduled and manual sync runs.
type SyncConfig struct {
	Cron         string        `mapstructure:"cron"`
	RunOnStart   bool          `mapstructure:"run_on_start"`
	Concurrency  int           `mapstructure:"concurrency"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// DownloadConfig controls artifact downloads.
type DownloadConfig struct {
	Dir       string        `mapstructure:"dir"`
	ChunkSize int           `mapstructure:"chunk_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ProvidersConfig holds per-provider settings.
type ProvidersConfig struct {
	GitHub  GitHubConfig  `mapstructure:"github"`
	Catalog CatalogConfig `mapstructure:"catalog"`
}

// GitHubConfig configures the repository provider.
type GitHubConfig struct {
	APIURL    string `mapstructure:"api_url"`
	UserAgent string `mapstructure:"user_agent"`
}

// CatalogConfig configures the catalog mod provider.
type CatalogConfig struct {
	Domains   []string `mapstructure:"domains"`
	UserAgent string   `mapstructure:"user_agent"`
}

// SourcesConfig configures the optional seed import.
type SourcesConfig struct {
	ImportFile string `mapstructure:"import_file"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults.
// A .env file in the working directory is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.modwatch")
	}

	v.SetEnvPrefix("MODWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8484)

	v.SetDefault("storage.backend", BackendJSON)
	v.SetDefault("storage.path", "./data/repositories.json")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("sync.cron", "0 */6 * * *")
	v.SetDefault("sync.run_on_start", true)
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("sync.fetch_timeout", 30*time.Second)

	v.SetDefault("download.dir", DefaultModsDir())
	v.SetDefault("download.chunk_size", 8192)
	v.SetDefault("download.timeout", 60*time.Second)

	v.SetDefault("providers.github.api_url", "https://api.github.com")
	v.SetDefault("providers.github.user_agent", "modwatch/"+Version)
	v.SetDefault("providers.catalog.domains", []string{"farming-simulator.com"})
	v.SetDefault("providers.catalog.user_agent", "")

	v.SetDefault("sources.import_file", "")
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
