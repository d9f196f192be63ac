// Command terracast-server runs the terrain chunk service: an HTTP API that
// fabricates heightmap chunks from public SRTM elevation data and streams
// them to clients, backed by an S3 object store and Postgres metadata.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/terracast/server/internal/api"
	"github.com/terracast/server/internal/auth"
	"github.com/terracast/server/internal/config"
	"github.com/terracast/server/internal/database"
	"github.com/terracast/server/internal/dem"
	"github.com/terracast/server/internal/geodesy"
	"github.com/terracast/server/internal/monitor"
	"github.com/terracast/server/internal/objectstore"
	"github.com/terracast/server/internal/performance"
	"github.com/terracast/server/internal/srtm"
	"github.com/terracast/server/internal/terrain"
	"github.com/terracast/server/internal/world"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	if err := run(cfg); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("failed to close database", "error", err)
		}
	}()

	if err := database.EnsureSchema(ctx, db); err != nil {
		return err
	}

	versionStorage := database.NewWorldVersionStorage(db)
	if err := versionStorage.EnsureVersions(ctx, cfg.Terrain.WorldVersions); err != nil {
		return err
	}

	versions := world.NewVersionCache(versionStorage)
	if err := versions.Refresh(ctx); err != nil {
		return err
	}
	if cfg.Terrain.VersionRefresh > 0 {
		go versions.Run(ctx, cfg.Terrain.VersionRefresh)
	}

	store, err := objectstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		return err
	}

	mapper, err := geodesy.NewMapper(
		cfg.Terrain.OriginLat,
		cfg.Terrain.OriginLon,
		cfg.Terrain.ChunkSizeMeters,
		cfg.Terrain.MetersPerDegreeLat,
	)
	if err != nil {
		return err
	}

	index := dem.NewIndex()
	tileStore := dem.NewTileStore(store)
	fetcher := srtm.NewFetcher(cfg.DEM.DatasetBaseURL, cfg.DEM.FetchTimeout)
	resolver := dem.NewResolver(index, fetcher, tileStore)
	tileCache, err := dem.NewTileCache(tileStore, cfg.Terrain.TileCacheSize)
	if err != nil {
		return err
	}

	added, err := dem.InitializeIndex(ctx, tileStore, index)
	if err != nil {
		return err
	}
	slog.Info("dem index initialized", "tiles", added)

	hub := monitor.NewHub()
	go hub.Run(ctx)

	profiler := performance.NewProfiler(true)

	chunkStorage := database.NewChunkStorage(db)
	demStorage := database.NewDEMTileStorage(db)

	writer := terrain.NewObjectWriter(store)
	sampler := terrain.NewSampler(mapper, resolver, tileCache)
	coordinator := terrain.NewCoordinator(
		versions,
		chunkStorage,
		demStorage,
		sampler,
		writer,
		mapper,
		hub,
		profiler,
		int64(cfg.Terrain.DBWriteLimit),
	)

	seeder := terrain.NewAnchorSeeder(versions, chunkStorage, writer)
	if err := seeder.Seed(ctx); err != nil {
		return err
	}

	worker := dem.NewWorker(versions, demStorage, fetcher, tileStore, index, hub, cfg.DEM.PollInterval)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	tokens := auth.NewTokenHandlers(auth.NewTokenService(cfg))
	mux := http.NewServeMux()
	handler := api.SetupRoutes(mux, api.Dependencies{
		Config:      cfg,
		Coordinator: coordinator,
		Objects:     store,
		DEMTiles:    demStorage,
		Chunks:      chunkStorage,
		Versions:    versions,
		Hub:         hub,
		Profiler:    profiler,
		Tokens:      tokens,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("terracast server listening",
			"addr", server.Addr,
			"versions", strings.Join(cfg.Terrain.WorldVersions, ","),
			"origin_lat", cfg.Terrain.OriginLat,
			"origin_lon", cfg.Terrain.OriginLon,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}

	// The worker exits at its next tick; in-flight fabrications finish so no
	// chunk is left with an object but no metadata.
	<-workerDone
	coordinator.Wait()
	profiler.LogSummary()

	return nil
}

func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
