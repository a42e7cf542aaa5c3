package distribution

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/smks17/feed_distribution/lib/feed"
)

// OnFollow patches the cached follow sets of both users after the web layer
// recorded followerId following followeeId.
func (e *Engine) OnFollow(ctx context.Context, followerId, followeeId uint32) error {
	if err := validateEdge(followerId, followeeId); err != nil {
		return err
	}
	if err := e.cache.Follows.AddFollowee(ctx, followerId, followeeId); err != nil {
		return cacheErr(fmt.Sprintf("followees of %d", followerId), err)
	}
	if err := e.cache.Follows.AddFollower(ctx, followeeId, followerId); err != nil {
		return cacheErr(fmt.Sprintf("followers of %d", followeeId), err)
	}
	e.forgetEmpty(followerId)

	if e.cfg.ReconcileOnFollow {
		e.reconcile(ctx, "backfill", followerId, followeeId, func(refs []feed.PostRef) error {
			return e.cache.HomeFeed.Add(ctx, followerId, refs...)
		})
	}
	return nil
}

// OnUnfollow is OnFollow's counterpart.
func (e *Engine) OnUnfollow(ctx context.Context, followerId, followeeId uint32) error {
	if err := validateEdge(followerId, followeeId); err != nil {
		return err
	}
	if err := e.cache.Follows.RemoveFollowee(ctx, followerId, followeeId); err != nil {
		return cacheErr(fmt.Sprintf("followees of %d", followerId), err)
	}
	if err := e.cache.Follows.RemoveFollower(ctx, followeeId, followerId); err != nil {
		return cacheErr(fmt.Sprintf("followers of %d", followeeId), err)
	}

	if e.cfg.ReconcileOnFollow {
		e.reconcile(ctx, "prune", followerId, followeeId, func(refs []feed.PostRef) error {
			ids := make([]uint32, len(refs))
			for i, r := range refs {
				ids[i] = r.ID
			}
			return e.cache.HomeFeed.Remove(ctx, followerId, ids...)
		})
	}
	return nil
}

// reconcile applies the followee's recent posts to a warm home feed. A cold
// feed is left alone, its next read rebuilds it from the store. Failures are
// only logged: the follow itself already happened.
func (e *Engine) reconcile(ctx context.Context, op string, followerId, followeeId uint32, apply func([]feed.PostRef) error) {
	log := e.log.WithFields(logrus.Fields{"op": op, "follower": followerId, "followee": followeeId})

	n, err := e.cache.HomeFeed.Len(ctx, followerId)
	if err != nil {
		log.WithError(err).Warn("home feed unreadable, skipping")
		return
	}
	if n == 0 {
		return
	}

	refs, err := e.store.FindRecentPostIDs(ctx, followeeId, e.cfg.RepairPostsPerAuthor)
	if err != nil {
		log.WithError(feed.Unavailable(err)).Warn("recent posts unavailable, skipping")
		return
	}
	if len(refs) == 0 {
		return
	}
	if err := apply(refs); err != nil {
		log.WithError(err).Warn("home feed not updated")
	}
}

func validateEdge(followerId, followeeId uint32) error {
	if err := validateUser("follower", followerId); err != nil {
		return err
	}
	if err := validateUser("followee", followeeId); err != nil {
		return err
	}
	if followerId == followeeId {
		return invalid("user %d cannot follow themselves", followerId)
	}
	return nil
}
