package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/modwatch/modwatch/internal/api"
	"github.com/modwatch/modwatch/internal/config"
	"github.com/modwatch/modwatch/internal/database"
	"github.com/modwatch/modwatch/internal/download"
	"github.com/modwatch/modwatch/internal/logger"
	"github.com/modwatch/modwatch/internal/progress"
	"github.com/modwatch/modwatch/internal/provider"
	"github.com/modwatch/modwatch/internal/provider/catalog"
	"github.com/modwatch/modwatch/internal/provider/github"
	"github.com/modwatch/modwatch/internal/registry"
	"github.com/modwatch/modwatch/internal/retry"
	"github.com/modwatch/modwatch/internal/scheduler"
	"github.com/modwatch/modwatch/internal/scheduler/tasks"
	"github.com/modwatch/modwatch/internal/syncer"
	"github.com/modwatch/modwatch/internal/websocket"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Run a single sync pass and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(config.Version)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	log := logger.New(logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Path:            cfg.Logging.Path,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		MaxBackups:      cfg.Logging.MaxBackups,
		MaxAgeDays:      cfg.Logging.MaxAgeDays,
		Compress:        cfg.Logging.Compress,
		EnableStreaming: !*once,
		BufferSize:      1000,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("storage", cfg.Storage.Backend).
		Str("path", cfg.Storage.Path).
		Msg("starting modwatch")

	store, closeStore, err := openStore(cfg.Storage, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("failed to open storage")
		return 1
	}
	defer closeStore()

	providers := provider.NewSet(
		github.New(github.Config{
			APIURL:    cfg.Providers.GitHub.APIURL,
			UserAgent: cfg.Providers.GitHub.UserAgent,
			Timeout:   cfg.Sync.FetchTimeout,
		}, log.WithComponent("provider")),
		catalog.New(catalog.Config{
			Domains:   cfg.Providers.Catalog.Domains,
			UserAgent: cfg.Providers.Catalog.UserAgent,
			Timeout:   cfg.Sync.FetchTimeout,
		}, log.WithComponent("provider")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.New(store, providers, log.Logger)
	loadRegistry(ctx, reg, log.Logger)

	if cfg.Sources.ImportFile != "" {
		importSeed(ctx, reg, cfg.Sources.ImportFile, log.Logger)
	}

	engine := syncer.New(reg, providers, syncer.Config{
		Concurrency:  cfg.Sync.Concurrency,
		FetchTimeout: cfg.Sync.FetchTimeout,
	}, log.Logger)

	if *once {
		return runOnce(ctx, engine, log.Logger)
	}

	hub := websocket.NewHub(log.Logger, nil)
	go hub.Run(ctx)

	// Enable log streaming via WebSocket now that hub is available
	log.SetBroadcastHub(hub)

	progressManager := progress.NewManager(hub, log.Logger)
	engine.SetBroadcaster(hub)
	engine.SetListener(progressManager.NewSyncListener())

	downloads := download.NewManager(download.Config{
		ChunkSize: cfg.Download.ChunkSize,
		Timeout:   cfg.Download.Timeout,
		Retry:     retry.DefaultConfig(),
		UserAgent: cfg.Providers.GitHub.UserAgent,
	}, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("failed to create scheduler")
		return 1
	}
	if err := tasks.RegisterSyncTask(sched, engine, cfg.Sync); err != nil {
		log.Error().Err(err).Msg("failed to register sync task")
		return 1
	}
	if err := sched.Start(); err != nil {
		log.Error().Err(err).Msg("failed to start scheduler")
		return 1
	}

	server := api.NewServer(api.Services{
		Registry:  reg,
		Sync:      engine,
		Downloads: downloads,
		Progress:  progressManager,
		Scheduler: sched,
		Hub:       hub,
		Logs:      log,
	}, cfg, log.Logger)

	serverErr := make(chan error, 1)
	go func() {
		addr := cfg.Server.Address()
		log.Info().Str("address", addr).Msg("HTTP server listening")
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}
	if err := downloads.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("download shutdown error")
	}

	log.Info().Msg("server stopped")
	return 0
}

// openStore returns the configured registry store and a function that
// releases it.
func openStore(cfg config.StorageConfig, log zerolog.Logger) (registry.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := database.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, nil, err
		}
		return database.NewStore(db, log), func() { db.Close() }, nil
	default:
		return registry.NewFileStore(cfg.Path, log), func() {}, nil
	}
}

// loadRegistry reads the stored sources. An unreadable store leaves the
// registry empty and the process keeps running.
func loadRegistry(ctx context.Context, reg *registry.Registry, log zerolog.Logger) {
	if err := reg.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("tracked sources unavailable, continuing with an empty registry")
	}
}

func importSeed(ctx context.Context, reg *registry.Registry, path string, log zerolog.Logger) {
	ids, err := registry.LoadSeedFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to read source import file")
		return
	}
	result, err := reg.Import(ctx, ids)
	if err != nil {
		log.Error().Err(err).Msg("failed to persist imported sources")
		return
	}
	for _, invalid := range result.Invalid {
		log.Warn().Str("id", invalid.ID.String()).Str("error", invalid.Error).Msg("skipped invalid source")
	}
}

func runOnce(ctx context.Context, engine *syncer.Engine, log zerolog.Logger) int {
	report, err := engine.SyncAll(ctx)
	if report == nil {
		log.Error().Err(err).Msg("sync failed")
		return 1
	}
	for _, id := range report.Changed {
		log.Info().Str("id", id.String()).Msg("new release")
	}
	for _, e := range report.Errors {
		log.Warn().Str("id", e.ID.String()).Str("error", e.Error).Msg("source check failed")
	}
	if err != nil {
		log.Error().Err(err).Msg("sync results were not saved")
		return 1
	}
	if len(report.Errors) > 0 {
		return 2
	}
	return 0
}
