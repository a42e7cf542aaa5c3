package cache

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/smks17/feed_distribution/lib/feed"
)

// Score orders feed entries: creation time in unix milliseconds, exact in a
// float64 for any realistic date.
func Score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// FeedIndex maps post identifiers to their creation time inside one backend
// key, newest first.
type FeedIndex struct {
	backend Backend
	opts    IndexOptions
}

func NewFeedIndex(backend Backend, opts IndexOptions) FeedIndex {
	return FeedIndex{backend: backend, opts: opts}
}

// Insert is idempotent for identical posts; a cap, if any, is enforced in the
// same operation.
func (fi FeedIndex) Insert(ctx context.Context, key string, posts ...feed.PostRef) error {
	if len(posts) == 0 {
		return nil
	}
	entries := make([]IndexEntry, len(posts))
	for i, p := range posts {
		entries[i] = IndexEntry{Member: formatID(p.ID), Score: Score(p.CreatedAt)}
	}
	return fi.backend.IndexAdd(ctx, key, fi.opts, entries...)
}

// Page returns the page-th (1-based) slice of limit identifiers. Pages whose
// offset does not fit a rank are past the end of any index.
func (fi FeedIndex) Page(ctx context.Context, key string, page, limit int) ([]uint32, error) {
	if page < 1 || limit < 1 || int64(page-1) > (math.MaxInt64-int64(limit))/int64(limit) {
		return []uint32{}, nil
	}
	start := int64(page-1) * int64(limit)
	stop := start + int64(limit) - 1

	members, err := fi.backend.IndexRevRange(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, 0, len(members))
	for _, m := range members {
		id, err := parseID(m)
		if err != nil {
			return nil, fmt.Errorf("%w: %s holds %q", ErrCorrupt, key, m)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (fi FeedIndex) Len(ctx context.Context, key string) (int64, error) {
	return fi.backend.IndexLen(ctx, key)
}

func (fi FeedIndex) Remove(ctx context.Context, key string, postIds ...uint32) error {
	members := make([]string, len(postIds))
	for i, id := range postIds {
		members[i] = formatID(id)
	}
	return fi.backend.IndexRemove(ctx, key, members...)
}

func (fi FeedIndex) Delete(ctx context.Context, key string) error {
	return fi.backend.Delete(ctx, key)
}

func formatID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseID(member string) (uint32, error) {
	id, err := strconv.ParseUint(member, 10, 32)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("zero identifier")
	}
	return uint32(id), nil
}
