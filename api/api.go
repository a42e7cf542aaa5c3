package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/smks17/feed_distribution/lib/cache"
	"github.com/smks17/feed_distribution/lib/db"
	"github.com/smks17/feed_distribution/lib/distribution"
	"github.com/smks17/feed_distribution/lib/env"
	"github.com/smks17/feed_distribution/lib/feed"
)

type APPConfig struct {
	addr           string
	requestTimeout time.Duration
	db             DBConfig
	cache          CacheConfig
	feed           cache.Config
	engine         distribution.Config
}

type DBConfig struct {
	driver string
	addr   string
}

type CacheConfig struct {
	backend  string
	addr     string
	password string
	db       int
}

const (
	cacheBackendRedis  = "redis"
	cacheBackendMemory = "memory"
)

func setConfig() APPConfig {
	feedDefaults := cache.DefaultConfig()
	engineDefaults := distribution.DefaultConfig()

	config := APPConfig{
		addr:           env.GetEnv("ADDR", "127.0.0.1:8080"),
		requestTimeout: env.GetDuration("REQUEST_TIMEOUT", 5*time.Second),
		db: DBConfig{
			driver: env.GetEnv("DB_DRIVER", db.DriverSQLite),
			addr:   env.GetEnv("DB_PATH", "/db.sqlite3"),
		},
		cache: CacheConfig{
			backend:  env.GetEnv("CACHE_BACKEND", cacheBackendRedis),
			addr:     env.GetEnv("REDIS_ADDR", "localhost:6379"),
			password: env.GetEnv("REDIS_PASSWORD", ""),
			db:       env.GetInt("REDIS_DB", 0),
		},
		feed: cache.Config{
			MaxGlobal:   int64(env.GetInt("MAX_GLOBAL_FEED", int(feedDefaults.MaxGlobal))),
			MaxUserFeed: int64(env.GetInt("MAX_USER_FEED", int(feedDefaults.MaxUserFeed))),
			FeedTTL:     env.GetDuration("FEED_TTL", feedDefaults.FeedTTL),
			FollowTTL:   env.GetDuration("FOLLOW_SET_TTL", feedDefaults.FollowTTL),
		},
		engine: distribution.Config{
			GlobalRepopulateLimit: env.GetInt("GLOBAL_REPOPULATE_LIMIT", engineDefaults.GlobalRepopulateLimit),
			RepairPostsPerAuthor:  env.GetInt("REPAIR_POSTS_PER_AUTHOR", engineDefaults.RepairPostsPerAuthor),
			FanOutWorkers:         env.GetInt("FANOUT_WORKERS", engineDefaults.FanOutWorkers),
			EmptyRepairTTL:        env.GetDuration("EMPTY_REPAIR_TTL", engineDefaults.EmptyRepairTTL),
			RepairTimeout:         env.GetDuration("REPAIR_TIMEOUT", engineDefaults.RepairTimeout),
			ReconcileOnFollow:     env.GetBool("RECONCILE_ON_FOLLOW", engineDefaults.ReconcileOnFollow),
		},
	}
	if config.db.driver == db.DriverPostgres {
		config.db.addr = env.GetEnv("DB_DSN", "postgres://localhost:5432/switter")
	}
	return config
}

type APP struct {
	config   APPConfig
	engine   *distribution.Engine
	posts    feed.PostReader
	cache    cache.Backend
	metrics  http.Handler
	validate *validator.Validate
	log      logrus.FieldLogger
}

func newApp(
	config APPConfig,
	engine *distribution.Engine,
	posts feed.PostReader,
	backend cache.Backend,
	metrics http.Handler,
	log logrus.FieldLogger,
) *APP {
	return &APP{
		config:   config,
		engine:   engine,
		posts:    posts,
		cache:    backend,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

func (app *APP) mount() *chi.Mux {
	route := chi.NewRouter()
	route.Use(middleware.RequestID)
	route.Use(middleware.RealIP)
	route.Use(requestLogger(app.log))
	route.Use(middleware.Recoverer)

	route.Get("/healthz", app.healthHandler)
	route.Handle("/metrics", app.metrics)

	route.Route("/feed", func(r chi.Router) {
		r.Use(requestDeadline(app.config.requestTimeout))

		r.Route("/home", func(r chi.Router) {
			r.Get("/{userID}", app.getHomeFeedHandler)
		})
		r.Get("/global", app.getGlobalFeedHandler)

		r.Post("/posts", app.publishPostHandler)
		r.Delete("/posts", app.retractPostHandler)
		r.Post("/follows", app.followHandler)
		r.Delete("/follows", app.unfollowHandler)
	})

	return route
}

// run serves until ctx is cancelled, then drains in-flight requests.
func (app *APP) run(ctx context.Context, r http.Handler) error {
	server := &http.Server{
		Addr:         app.config.addr,
		Handler:      r,
		WriteTimeout: app.config.requestTimeout + time.Second*30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	errs := make(chan error, 1)
	go func() {
		app.log.WithField("addr", app.config.addr).Info("Listening")
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := server.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
