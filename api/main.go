package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smks17/feed_distribution/lib/cache"
	"github.com/smks17/feed_distribution/lib/db"
	"github.com/smks17/feed_distribution/lib/distribution"
	"github.com/smks17/feed_distribution/lib/feed"
	"github.com/smks17/feed_distribution/lib/logger"
	"github.com/smks17/feed_distribution/lib/metrics"
)

type postStore interface {
	feed.Store
	feed.PostReader
}

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(".env"); err != nil {
		log.WithError(err).Warn("No .env file loaded, using the environment")
	}
	config := setConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, config.db)
	if err != nil {
		log.WithError(err).Fatal("Database connection was refused")
	}
	defer closeStore()

	backend, err := openCache(ctx, config.cache)
	if err != nil {
		log.WithError(err).Fatal("Cache connection was refused")
	}
	defer backend.Close()

	feedCache := cache.NewFeedCache(backend, store, config.feed, cache.WithLogger(log))
	engine := distribution.New(feedCache, store, config.engine,
		distribution.WithLogger(log),
		distribution.WithMetrics(metrics.NewPrometheus(prometheus.DefaultRegisterer)),
	)

	app := newApp(config, engine, store, backend, promhttp.Handler(), log)
	router := app.mount()
	if err := app.run(ctx, router); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}

func openStore(ctx context.Context, config DBConfig) (postStore, func(), error) {
	switch config.driver {
	case db.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, config.addr)
		if err != nil {
			return nil, nil, err
		}
		return feed.NewSQLiteStore(conn), func() { conn.Close() }, nil
	case db.DriverPostgres:
		pool, err := db.ConnectPostgres(ctx, config.addr)
		if err != nil {
			return nil, nil, err
		}
		return feed.NewPostStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER %q", config.driver)
	}
}

func openCache(ctx context.Context, config CacheConfig) (cache.Backend, error) {
	switch config.backend {
	case cacheBackendMemory:
		logger.GetLogger().Warn("Using the in-process cache, feeds are not shared between instances")
		return cache.NewMemoryBackend(), nil
	case cacheBackendRedis:
		rdb := cache.NewRedisClient(config.addr, config.password, config.db)
		status, err := rdb.Ping(ctx).Result()
		if err != nil {
			rdb.Close()
			return nil, err
		}
		logger.GetLogger().WithField("status", status).Info("Stats of redis")
		return cache.NewRedisBackend(rdb), nil
	default:
		return nil, fmt.Errorf("unknown CACHE_BACKEND %q", config.backend)
	}
}
