// Package app assembles the long-lived components shared by the server and
// the command line tool.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"torrentify/internal/broadcast"
	"torrentify/internal/config"
	"torrentify/internal/domain"
	"torrentify/internal/inventory"
	"torrentify/internal/jobstore"
	"torrentify/internal/pipeline"
	"torrentify/internal/renderer"
	"torrentify/internal/repository/sqlite"
	"torrentify/internal/service"
	"torrentify/internal/storage"
	"torrentify/internal/tmdb"
)

// App holds every wired component. Exporter is nil when no bucket is set.
type App struct {
	Config    *config.Provider
	Logger    *logrus.Logger
	DB        *sql.DB
	Store     *jobstore.Store
	Hub       *broadcast.Hub
	Scanner   *inventory.Scanner
	Releases  *sqlite.ReleaseRepository
	Jobs      service.JobService
	Auth      service.AuthService
	TMDB      *tmdb.Client
	Exporter  *storage.Exporter
	Processor pipeline.Processor
}

// Build opens storage and constructs the component graph. Events produced by
// jobs go to the hub and to every extra sink.
func Build(ctx context.Context, provider *config.Provider, logger *logrus.Logger, sinks ...pipeline.EventSink) (*App, error) {
	cfg := provider.Get()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	jobRepo := sqlite.NewJobRepository(db)
	releaseRepo := sqlite.NewReleaseRepository(db)
	userRepo := sqlite.NewUserRepository(db)
	if err := sqlite.InitAll(ctx, jobRepo, releaseRepo, userRepo); err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		Config:   provider,
		Logger:   logger,
		DB:       db,
		Store:    jobstore.New(),
		Releases: releaseRepo,
	}
	a.Jobs = service.NewJobService(a.Store, jobRepo)
	a.Auth = service.NewAuthService(service.AuthConfig{
		Enabled:  cfg.Auth.Enabled,
		Secret:   cfg.Auth.JWTSecret,
		TokenTTL: time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
	}, userRepo)
	if cfg.Auth.Enabled {
		if _, err := a.Auth.EnsureAdmin(ctx, cfg.Auth.Username, cfg.Auth.Password); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed administrator: %w", err)
		}
	}

	a.Hub = broadcast.NewHub(broadcast.Config{
		HeartbeatInterval:   cfg.Events.HeartbeatInterval,
		QueueSize:           cfg.Events.QueueSize,
		StrictSubscriptions: cfg.Events.StrictSubscriptions,
		Logger:              logger,
	})

	a.Scanner = inventory.New(inventory.Config{
		CacheTTL: cfg.Inventory.CacheTTL,
		Sources:  func() []domain.MediaSource { return provider.Get().MediaSources() },
		Index:    releaseRepo,
		Logger:   logger,
	})

	a.TMDB = tmdb.NewClient(tmdb.Config{
		APIKey:  cfg.TMDB.APIKey,
		BaseURL: cfg.TMDB.BaseURL,
		Timeout: cfg.TMDB.Timeout,
	})
	provider.OnChange(func(next config.Config) {
		a.TMDB.SetAPIKey(next.TMDB.APIKey)
	})
	lookup := tmdb.NewLookup(tmdb.LookupConfig{CacheDir: cfg.TMDB.CacheDir, Logger: logger}, a.TMDB)

	builder, err := renderer.NewArchiveBuilder(cfg.Archive.Builder, cfg.Archive.MktorrentPath, cfg.Tools.Timeout)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("archive builder: %w", err)
	}

	if cfg.Storage.Bucket != "" {
		client, err := storage.NewS3Client(ctx, storage.ClientConfig{
			Region:   cfg.Storage.Region,
			Endpoint: cfg.Storage.Endpoint,
			Profile:  cfg.AWS.Profile,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("setup storage: %w", err)
		}
		logger.Infof("exporting artifacts to s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
		a.Exporter = storage.NewExporter(storage.ExportConfig{
			Bucket:    cfg.Storage.Bucket,
			KeyPrefix: cfg.Storage.KeyPrefix,
			Logger:    logger,
		}, storage.NewS3Service(client))
	}

	deps := pipeline.Deps{
		Store:     a.Store,
		Events:    fanout(append([]pipeline.EventSink{a.Hub}, sinks...)),
		Catalog:   a.Scanner,
		Extractor: renderer.NewGuessit(cfg.Tools.PythonPath, cfg.Tools.Timeout),
		Inspector: renderer.NewMediaInfo(cfg.Tools.MediainfoPath, cfg.Tools.Timeout),
		Builder:   builder,
		Lookup:    lookup,
		Index:     releaseRepo,
		History:   a.Jobs,
	}
	if a.Exporter != nil {
		deps.Exporter = a.Exporter
	}
	a.Processor = pipeline.NewProcessor(pipeline.Config{
		MaxConcurrentJobs: cfg.Processing.MaxConcurrentJobs,
		Settings:          func() pipeline.Settings { return Settings(provider.Get()) },
		Logger:            logger,
	}, deps)

	return a, nil
}

// Settings converts a configuration snapshot into processing settings.
func Settings(cfg config.Config) pipeline.Settings {
	mappings := cfg.SeedMappings()
	links := make([]pipeline.SeedLink, len(mappings))
	for i, m := range mappings {
		links[i] = pipeline.SeedLink{Source: m.Source, Dest: m.Dest}
	}
	return pipeline.Settings{
		Sources:   cfg.MediaSources(),
		Trackers:  cfg.TrackerList(),
		SeedLinks: links,
		Parallel:  cfg.Processing.ParallelJobs,
		Private:   cfg.Archive.Private,
	}
}

// RunJanitor prunes finished jobs from memory and old jobs from the history
// until ctx ends.
func (a *App) RunJanitor(ctx context.Context) {
	cfg := a.Config.Get()
	go a.Store.RunJanitor(ctx, cfg.Processing.PruneInterval, cfg.Processing.JobRetention, a.Logger)

	if cfg.Processing.HistoryRetention <= 0 {
		return
	}
	interval := cfg.Processing.PruneInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Jobs.PruneHistory(ctx, a.Config.Get().Processing.HistoryRetention)
			if err != nil {
				a.Logger.Warnf("prune job history: %v", err)
			} else if n > 0 {
				a.Logger.Infof("pruned %d jobs from history", n)
			}
		}
	}
}

// Close releases the database. Call after the processor has shut down.
func (a *App) Close() error {
	a.Hub.Close()
	return a.DB.Close()
}

type fanout []pipeline.EventSink

func (f fanout) Broadcast(ev domain.Event) {
	for _, sink := range f {
		sink.Broadcast(ev)
	}
}
