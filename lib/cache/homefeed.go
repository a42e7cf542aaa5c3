package cache

import (
	"context"
	"fmt"

	"github.com/smks17/feed_distribution/lib/feed"
)

// HomeFeedCache is the per-user feed index, key feed:<user>.
type HomeFeedCache struct {
	index FeedIndex
}

func homeFeedKey(userId uint32) string {
	return fmt.Sprint("feed:", userId)
}

func (hfc *HomeFeedCache) Add(ctx context.Context, userId uint32, posts ...feed.PostRef) error {
	return hfc.index.Insert(ctx, homeFeedKey(userId), posts...)
}

func (hfc *HomeFeedCache) Page(ctx context.Context, userId uint32, page, limit int) ([]uint32, error) {
	return hfc.index.Page(ctx, homeFeedKey(userId), page, limit)
}

func (hfc *HomeFeedCache) Len(ctx context.Context, userId uint32) (int64, error) {
	return hfc.index.Len(ctx, homeFeedKey(userId))
}

func (hfc *HomeFeedCache) Remove(ctx context.Context, userId uint32, postIds ...uint32) error {
	return hfc.index.Remove(ctx, homeFeedKey(userId), postIds...)
}

func (hfc *HomeFeedCache) Delete(ctx context.Context, userId uint32) error {
	return hfc.index.Delete(ctx, homeFeedKey(userId))
}
