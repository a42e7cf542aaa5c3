package cache

import (
	"context"

	"github.com/smks17/feed_distribution/lib/feed"
)

const (
	MaxGlobalFeed         = 500
	CACHE_KEY_GLOBAL_FEED = "feed:global"
)

// GlobalFeedCache is the single bounded index of the most recent posts, shown
// to anonymous viewers and to users with nothing of their own.
type GlobalFeedCache struct {
	index FeedIndex
}

func (gfc *GlobalFeedCache) Add(ctx context.Context, posts ...feed.PostRef) error {
	return gfc.index.Insert(ctx, CACHE_KEY_GLOBAL_FEED, posts...)
}

func (gfc *GlobalFeedCache) Page(ctx context.Context, page, limit int) ([]uint32, error) {
	return gfc.index.Page(ctx, CACHE_KEY_GLOBAL_FEED, page, limit)
}

func (gfc *GlobalFeedCache) Len(ctx context.Context) (int64, error) {
	return gfc.index.Len(ctx, CACHE_KEY_GLOBAL_FEED)
}

func (gfc *GlobalFeedCache) Remove(ctx context.Context, postIds ...uint32) error {
	return gfc.index.Remove(ctx, CACHE_KEY_GLOBAL_FEED, postIds...)
}

func (gfc *GlobalFeedCache) Delete(ctx context.Context) error {
	return gfc.index.Delete(ctx, CACHE_KEY_GLOBAL_FEED)
}
