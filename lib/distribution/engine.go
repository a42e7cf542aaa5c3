// Package distribution decides which posts appear in whose feed. It pushes
// new posts into followers' feeds at write time, rebuilds empty feeds from the
// store at read time, and falls back to a bounded global feed.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/smks17/feed_distribution/lib/cache"
	"github.com/smks17/feed_distribution/lib/feed"
	"github.com/smks17/feed_distribution/lib/flight"
	"github.com/smks17/feed_distribution/lib/logger"
)

const (
	MaxPageSize = 100
	// MaxPage keeps page offsets far from overflowing a rank.
	MaxPage = math.MaxInt32

	DefaultGlobalRepopulateLimit = 100
	DefaultRepairPostsPerAuthor  = 50
	DefaultFanOutWorkers         = 16

	emptyRepairEntries = 10_000
)

type Config struct {
	// GlobalRepopulateLimit is how many posts refill an empty global feed.
	GlobalRepopulateLimit int
	// RepairPostsPerAuthor bounds what each followee contributes to a
	// rebuilt home feed.
	RepairPostsPerAuthor int
	// FanOutWorkers bounds concurrent feed writes of one publish and
	// concurrent store queries of one repair.
	FanOutWorkers int
	// EmptyRepairTTL remembers repairs that found nothing, so that users who
	// follow nobody go straight to the global feed. Zero repairs every time.
	EmptyRepairTTL time.Duration
	// RepairTimeout bounds one shared repair or repopulation. The run does
	// not stop when the reader that started it goes away.
	RepairTimeout time.Duration
	// ReconcileOnFollow backfills a followee's recent posts into a warm feed
	// on follow and prunes them on unfollow.
	ReconcileOnFollow bool
}

func DefaultConfig() Config {
	return Config{
		GlobalRepopulateLimit: DefaultGlobalRepopulateLimit,
		RepairPostsPerAuthor:  DefaultRepairPostsPerAuthor,
		FanOutWorkers:         DefaultFanOutWorkers,
		EmptyRepairTTL:        30 * time.Second,
		RepairTimeout:         flight.DefaultTimeout,
		ReconcileOnFollow:     true,
	}
}

type Engine struct {
	cache   cache.FeedCache
	store   feed.Store
	cfg     Config
	log     logrus.FieldLogger
	metrics Metrics

	repairs      flight.Group
	emptyRepairs *expirable.LRU[uint32, struct{}]
}

type Option func(*Engine)

func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(fc cache.FeedCache, store feed.Store, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.GlobalRepopulateLimit <= 0 {
		cfg.GlobalRepopulateLimit = def.GlobalRepopulateLimit
	}
	if cfg.RepairPostsPerAuthor <= 0 {
		cfg.RepairPostsPerAuthor = def.RepairPostsPerAuthor
	}
	if cfg.FanOutWorkers <= 0 {
		cfg.FanOutWorkers = def.FanOutWorkers
	}
	if cfg.RepairTimeout <= 0 {
		cfg.RepairTimeout = def.RepairTimeout
	}

	e := &Engine{
		cache:   fc,
		store:   store,
		cfg:     cfg,
		log:     logger.GetLogger(),
		metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("component", "distribution")
	e.repairs.Timeout = cfg.RepairTimeout
	if cfg.EmptyRepairTTL > 0 {
		e.emptyRepairs = expirable.NewLRU[uint32, struct{}](emptyRepairEntries, nil, cfg.EmptyRepairTTL)
	}
	return e
}

// Follows exposes the follow-set cache, e.g. for explicit invalidation.
func (e *Engine) Follows() *cache.FollowSetCache {
	return e.cache.Follows
}

func (e *Engine) knownEmpty(userId uint32) bool {
	return e.emptyRepairs != nil && e.emptyRepairs.Contains(userId)
}

func (e *Engine) markEmpty(userId uint32) {
	if e.emptyRepairs != nil {
		e.emptyRepairs.Add(userId, struct{}{})
	}
}

func (e *Engine) forgetEmpty(userId uint32) {
	if e.emptyRepairs != nil {
		e.emptyRepairs.Remove(userId)
	}
}

func isMismatch(err error) bool {
	return errors.Is(err, cache.ErrWrongType) || errors.Is(err, cache.ErrCorrupt)
}

// discard drops a cache entry that cannot be read. Cache state is always
// derivable, so this is a miss and never an error for the caller.
func (e *Engine) discard(ctx context.Context, kind string, cause error, drop func(context.Context) error) {
	e.metrics.CacheMismatch(kind)
	e.log.WithError(cause).WithField("feed", kind).Warn("discarding unreadable feed index")
	if err := drop(ctx); err != nil {
		e.log.WithError(err).WithField("feed", kind).Error("drop feed index")
	}
}

// sharedErr reports a shared run that took too long as the store being
// unavailable; the caller's own cancellation is passed through unchanged.
func sharedErr(err error) error {
	if errors.Is(err, flight.ErrTimeout) {
		return feed.Unavailable(err)
	}
	return err
}

func cacheErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
