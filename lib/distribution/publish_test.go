package distribution_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smks17/feed_distribution/lib/cache"
	"github.com/smks17/feed_distribution/lib/distribution"
	"github.com/smks17/feed_distribution/lib/feed"
)

func TestPublishReachesEveryFollower(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for follower := uint32(10); follower < 40; follower++ {
		h.store.Follow(follower, 1)
		h.publish(t, h.post(follower*1000, 99, 50)) // unrelated traffic
	}
	old := h.post(1, 1, 100)
	h.publish(t, old)

	d := h.publish(t, h.post(2, 1, 200))
	assert.Equal(t, 30, d.Recipients)
	assert.Empty(t, d.Failed)
	assert.NoError(t, d.Err)

	for follower := uint32(10); follower < 40; follower++ {
		ids, err := h.engine.UserFeed(ctx, follower, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, []uint32{2, 1}, ids, "follower %d", follower)
	}
	assert.Equal(t, 32, h.metrics.fanOuts["publish"])
}

func TestPublishDoesNotReachTheAuthor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.publish(t, h.post(1, 1, 100))

	n, err := h.feeds.HomeFeed.Len(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepairLeavesOutTheUsersOwnPosts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.store.Follow(1, 2)
	h.post(1, 1, 300)
	h.post(2, 2, 200)

	ids, err := h.engine.UserFeed(ctx, 1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2}, ids)
}

func TestPublishIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.Follow(2, 1)
	h.store.Follow(3, 1)
	p := h.post(7, 1, 100)

	first := h.publish(t, p)
	feed2, err := h.engine.UserFeed(ctx, 2, 1, 10)
	require.NoError(t, err)
	global, err := h.engine.GlobalFeed(ctx, 1, 10)
	require.NoError(t, err)

	second := h.publish(t, p)
	assert.Equal(t, first, second)

	again, err := h.engine.UserFeed(ctx, 2, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, feed2, again)
	globalAgain, err := h.engine.GlobalFeed(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, global, globalAgain)

	for _, user := range []uint32{2, 3} {
		n, err := h.feeds.HomeFeed.Len(ctx, user)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	}
	n, err := h.feeds.GlobalFeed.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestGlobalFeedNeverExceedsCap(t *testing.T) {
	h := newHarness(t, func(s *setup) { s.cache.MaxGlobal = 10 })
	ctx := context.Background()

	// out of order on purpose
	for _, at := range []int64{5, 40, 1, 33, 12, 50, 7, 21, 44, 3, 39, 28, 17, 9, 48, 2} {
		h.publish(t, h.post(uint32(at), 1, at))

		n, err := h.feeds.GlobalFeed.Len(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, int64(10))
	}

	ids, err := h.engine.GlobalFeed(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint32{50, 48, 44, 40, 39, 33, 28, 21, 17, 12}, ids)
}

func TestPublishPartialFanOut(t *testing.T) {
	flaky := &flakyHome{fail: map[uint32]bool{3: true, 5: true}}
	h := newHarness(t, func(s *setup) {
		s.wrap = func(fc *cache.FeedCache) {
			flaky.HomeIndex = fc.HomeFeed
			fc.HomeFeed = flaky
		}
	})
	ctx := context.Background()
	for follower := uint32(2); follower <= 6; follower++ {
		h.store.Follow(follower, 1)
	}

	d, err := h.engine.Publish(ctx, h.post(9, 1, 100))
	require.NoError(t, err, "a partial fan-out is not a failed publish")
	assert.Equal(t, 5, d.Recipients)
	assert.Equal(t, []uint32{3, 5}, d.Failed)

	var partial *distribution.PartialFanOutError
	require.ErrorAs(t, d.Err, &partial)
	assert.Equal(t, uint32(9), partial.PostID)
	assert.Equal(t, []uint32{3, 5}, partial.Failed)
	assert.Contains(t, partial.Error(), "connection reset by peer")
	assert.Equal(t, 2, h.metrics.failed)

	ids, err := h.engine.UserFeed(ctx, 4, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint32{9}, ids)

	// the missed follower catches up through its own cold-start repair
	flaky.heal()
	ids, err = h.engine.UserFeed(ctx, 3, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint32{9}, ids)
}

func TestPublishGlobalFailureIsPartial(t *testing.T) {
	h := newHarness(t, func(s *setup) {
		s.wrap = func(fc *cache.FeedCache) {
			fc.GlobalFeed = brokenGlobal{GlobalIndex: fc.GlobalFeed}
		}
	})
	h.store.Follow(2, 1)

	d, err := h.engine.Publish(context.Background(), h.post(9, 1, 100))
	require.NoError(t, err)
	assert.Empty(t, d.Failed)

	var partial *distribution.PartialFanOutError
	require.ErrorAs(t, d.Err, &partial)
	assert.Contains(t, partial.Error(), "global feed")
}

func TestPublishWithStoreDown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.Follow(2, 1)
	p := h.post(9, 1, 100)
	h.store.Fail(errors.New("connection refused"))

	_, err := h.engine.Publish(ctx, p)
	assert.ErrorIs(t, err, distribution.ErrStoreUnavailable)

	// the global feed already has it; retrying once the store is back is safe
	ids, err := h.engine.GlobalFeed(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint32{9}, ids)

	h.store.Fail(nil)
	d := h.publish(t, p)
	assert.Equal(t, 1, d.Recipients)
}

func TestPublishHonoursCancellation(t *testing.T) {
	h := newHarness(t)
	h.store.Follow(2, 1)
	_, err := h.engine.Follows().Followers(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.engine.Publish(ctx, h.post(9, 1, 100))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetract(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.Follow(2, 1)
	h.store.Follow(3, 1)

	keep := h.post(8, 1, 100)
	gone := h.post(9, 1, 200)
	h.publish(t, keep)
	h.publish(t, gone)

	d, err := h.engine.Retract(ctx, gone)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Recipients)
	assert.NoError(t, d.Err)

	for _, user := range []uint32{2, 3} {
		ids, err := h.engine.UserFeed(ctx, user, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, []uint32{8}, ids)
	}
	ids, err := h.engine.GlobalFeed(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint32{8}, ids)
	assert.Equal(t, 1, h.metrics.fanOuts["retract"])
}

func TestInvalidPublishArguments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := time.Unix(100, 0)

	for name, p := range map[string]feed.PostRef{
		"zero post":   {ID: 0, Author: 1, CreatedAt: at},
		"zero author": {ID: 1, Author: 0, CreatedAt: at},
		"no time":     {ID: 1, Author: 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.engine.Publish(ctx, p)
			assert.ErrorIs(t, err, distribution.ErrInvalidArgument)
		})
	}

	_, err := h.engine.Retract(ctx, feed.PostRef{ID: 1})
	assert.ErrorIs(t, err, distribution.ErrInvalidArgument)
	assert.Zero(t, h.store.Calls("FindFollowerIDs"))
}
