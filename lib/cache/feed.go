package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smks17/feed_distribution/lib/feed"
	"github.com/smks17/feed_distribution/lib/logger"
)

type Config struct {
	// MaxGlobal caps the global feed.
	MaxGlobal int64
	// MaxUserFeed caps every home feed; zero leaves them unbounded.
	MaxUserFeed int64
	FeedTTL     time.Duration
	FollowTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxGlobal:   MaxGlobalFeed,
		MaxUserFeed: 1000,
		FeedTTL:     72 * time.Hour,
		FollowTTL:   24 * time.Hour,
	}
}

// HomeIndex is the per-user feed index as the engine sees it.
type HomeIndex interface {
	Add(ctx context.Context, userId uint32, posts ...feed.PostRef) error
	Page(ctx context.Context, userId uint32, page, limit int) ([]uint32, error)
	Len(ctx context.Context, userId uint32) (int64, error)
	Remove(ctx context.Context, userId uint32, postIds ...uint32) error
	Delete(ctx context.Context, userId uint32) error
}

// GlobalIndex is the global feed index as the engine sees it.
type GlobalIndex interface {
	Add(ctx context.Context, posts ...feed.PostRef) error
	Page(ctx context.Context, page, limit int) ([]uint32, error)
	Len(ctx context.Context) (int64, error)
	Remove(ctx context.Context, postIds ...uint32) error
	Delete(ctx context.Context) error
}

type FeedCache struct {
	HomeFeed   HomeIndex
	GlobalFeed GlobalIndex
	Follows    *FollowSetCache
}

type Option func(*options)

type options struct {
	log logrus.FieldLogger
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

func NewFeedCache(backend Backend, store feed.Store, cfg Config, opts ...Option) FeedCache {
	o := options{log: logger.GetLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.MaxGlobal <= 0 {
		cfg.MaxGlobal = MaxGlobalFeed
	}

	return FeedCache{
		HomeFeed: &HomeFeedCache{
			index: NewFeedIndex(backend, IndexOptions{Cap: cfg.MaxUserFeed, TTL: cfg.FeedTTL}),
		},
		GlobalFeed: &GlobalFeedCache{
			index: NewFeedIndex(backend, IndexOptions{Cap: cfg.MaxGlobal}),
		},
		Follows: &FollowSetCache{
			backend: backend,
			store:   store,
			ttl:     cfg.FollowTTL,
			log:     o.log.WithField("component", "follow-set-cache"),
		},
	}
}
