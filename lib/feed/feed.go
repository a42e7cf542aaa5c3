package feed

import (
	"context"
	"errors"
	"fmt"
)

// ErrStoreUnavailable marks failures of the system of record. The cache layer
// never hides it behind stale data it does not already hold.
var ErrStoreUnavailable = errors.New("feed: store unavailable")

// Store is the read-only view of posts and the follow graph that caches are
// derived from.
type Store interface {
	FindFolloweeIDs(ctx context.Context, userID uint32) ([]uint32, error)
	FindFollowerIDs(ctx context.Context, userID uint32) ([]uint32, error)
	FindRecentPostIDs(ctx context.Context, authorID uint32, limit int) ([]PostRef, error)
	FindGlobalRecentPosts(ctx context.Context, limit int) ([]PostRef, error)
}

// PostReader resolves identifiers returned by a feed into post bodies.
type PostReader interface {
	FindPostsByIDs(ctx context.Context, ids []uint32) ([]Post, error)
}

// Unavailable wraps err as ErrStoreUnavailable unless it already is one or is a
// context error, which callers should see unchanged.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
