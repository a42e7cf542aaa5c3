package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWrongType is returned when a key holds a different kind of value than
	// the operation expects, e.g. a set where a feed index should be.
	ErrWrongType = errors.New("cache: key holds the wrong kind of value")
	// ErrCorrupt is returned when a cached member cannot be decoded.
	ErrCorrupt = errors.New("cache: entry cannot be decoded")
)

// IndexEntry is a member of an ordered index and its score.
type IndexEntry struct {
	Member string
	Score  float64
}

// IndexOptions are applied atomically together with an insert.
type IndexOptions struct {
	// Cap keeps only the Cap highest-scored members. Zero keeps everything.
	Cap int64
	// TTL is reset on every insert. Zero leaves the key without expiry.
	TTL time.Duration
}

// Backend is the key-addressable store caches live in. Every method is a
// single atomic operation; nothing spans more than one key.
type Backend interface {
	// SetAdd adds members to the set at key and (re)sets its TTL.
	SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error
	// SetAddIfExists adds member only when key already exists and reports
	// whether it did.
	SetAddIfExists(ctx context.Context, key, member string) (bool, error)
	SetRemove(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	IndexAdd(ctx context.Context, key string, opts IndexOptions, entries ...IndexEntry) error
	// IndexRevRange returns members by rank, highest score first. start and
	// stop are inclusive and may be negative, counting from the end.
	IndexRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	IndexRemove(ctx context.Context, key string, members ...string) error
	IndexLen(ctx context.Context, key string) (int64, error)

	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}
