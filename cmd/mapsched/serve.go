package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"meshboard-maps/mapsurface"
	"meshboard-maps/mapsurface/application"
	"meshboard-maps/mapsurface/domain"
	"meshboard-maps/mapsurface/infra"
	"meshboard-maps/mapsurface/infra/tilesurface"
)

func newServeCmd(cfg *config, logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the instance scheduler and snapshot API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			return serve(cmd.Context(), *cfg, logger())
		},
	}

	cmd.Flags().StringVar(&cfg.listenAddr, "listen", cfg.listenAddr, "Listen address (or LISTEN_ADDR env)")
	cmd.Flags().IntVar(&cfg.maxInstances, "max-instances", cfg.maxInstances, "Live surfaces allowed at once (or MAX_INSTANCES env)")
	cmd.Flags().BoolVar(&cfg.resourceConstrained, "constrained", cfg.resourceConstrained, "Enforce the live surface ceiling (or RESOURCE_CONSTRAINED env)")
	return cmd
}

func serve(ctx context.Context, cfg config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	events := infra.NewMemoryStatsStore(infra.WithTrackOwners(cfg.statsTrackOwners))
	stats := statsFanout{events}
	if cfg.statsEnabled {
		rdb, err := dialRedis(ctx, cfg.statsRedisAddr, cfg.statsRedisPassword, cfg.statsRedisDB)
		if err != nil {
			return fmt.Errorf("redis stats: %w", err)
		}
		defer func() { _ = rdb.Close() }()

		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackOwners(cfg.statsTrackOwners),
		))
	}

	scheduler := application.NewScheduler(application.SchedulerOptions{
		MaxInstances:        cfg.maxInstances,
		ResourceConstrained: cfg.resourceConstrained,
		Stats:               stats,
		Logger:              logger,
	})

	cache, closeCache, err := newImageCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	renderer, err := newRenderer(cfg, cache, logger)
	if err != nil {
		return err
	}
	defer renderer.Destroy()

	// aquece a superfície oculta; falha aqui só desliga os snapshots
	go renderer.Initialize(ctx)

	throttle := mapsurface.ThrottleOptions{
		KeyHeader:          cfg.rateKeyHeader,
		TrustXForwardedFor: cfg.trustXFF,
		RetryAfter:         cfg.retryAfter,
		AddHeaders:         cfg.addHeaders,
		MaxInFlight:        cfg.concurrencyMax,
		AcquireTimeout:     cfg.concurrencyTimeout,
	}
	if cfg.rateEnabled {
		store := infra.NewLimiterStore(cfg.rateRPS, cfg.rateBurst)
		store.StartJanitor(ctx)
		throttle.Store = store
	}

	api := mapsurface.New(mapsurface.Options{
		Scheduler: scheduler,
		Renderer:  renderer,
		Events:    events,
		Throttle:  throttle,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// POST /instances com wait segura a resposta por até 2 minutos
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("mapsched listening",
		"addr", cfg.listenAddr,
		"tiles", cfg.tilesBaseURL,
		"max_instances", cfg.maxInstances,
		"constrained", cfg.resourceConstrained,
	)
	logger.Info("snapshot throttle",
		"rate_enabled", cfg.rateEnabled,
		"rps", cfg.rateRPS,
		"burst", cfg.rateBurst,
		"key_header", cfg.rateKeyHeader,
		"trust_xff", cfg.trustXFF,
		"concurrency_max", cfg.concurrencyMax,
		"concurrency_timeout", cfg.concurrencyTimeout,
	)
	logger.Info("stores",
		"cache_redis", cfg.cacheRedisAddr != "",
		"stats_redis", cfg.statsEnabled,
		"stats_bucket", cfg.statsBucket,
		"track_owners", cfg.statsTrackOwners,
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newRenderer(cfg config, cache domain.ImageCache, logger *slog.Logger) (*application.Renderer, error) {
	var pace *rate.Limiter
	if cfg.renderRPS > 0 {
		pace = rate.NewLimiter(rate.Limit(cfg.renderRPS), 1)
	}

	return application.NewRenderer(application.RendererOptions{
		Config: infra.NewHTTPConfigSource(cfg.tilesBaseURL, 10*time.Second),
		NewSurface: tilesurface.NewFactory(tilesurface.Options{
			PixelRatio: cfg.pixelRatio,
			CacheSize:  cfg.tileCacheSize,
			Logger:     logger,
		}),
		Cache:  cache,
		Width:  cfg.snapshotWidth,
		Height: cfg.snapshotHeight,
		Pace:   pace,
		Logger: logger,

		// o Redis é compartilhado com outras instâncias
		KeepCacheOnDestroy: cfg.cacheRedisAddr != "",
	})
}

// newImageCache usa Redis quando CACHE_REDIS_ADDR está definido; senão, memória
// do processo.
func newImageCache(ctx context.Context, cfg config) (domain.ImageCache, func(), error) {
	if cfg.cacheRedisAddr == "" {
		return infra.NewMemoryImageCache(), func() {}, nil
	}

	rdb, err := dialRedis(ctx, cfg.cacheRedisAddr, cfg.cacheRedisPassword, cfg.cacheRedisDB)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	cache := infra.NewRedisImageCache(rdb,
		infra.WithCachePrefix(cfg.cacheRedisPrefix),
		infra.WithCacheTTL(cfg.cacheTTL),
	)
	return cache, func() { _ = rdb.Close() }, nil
}

func dialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping %s: %w", addr, err)
	}
	return rdb, nil
}

// statsFanout grava cada evento em todos os stores.
type statsFanout []domain.StatsStore

func (f statsFanout) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
