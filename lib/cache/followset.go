package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smks17/feed_distribution/lib/feed"
	"github.com/smks17/feed_distribution/lib/flight"
)

// followSetSentinel is stored in every materialized follow set so that a user
// with nobody in it still has a key: absent means unknown, not empty.
const followSetSentinel = "~"

// FollowSetCache holds, per user, who they follow (following:<user>) and who
// follows them (followers:<user>). A set is either absent or complete: it is
// built from the store on the first read and then only patched.
type FollowSetCache struct {
	backend Backend
	store   feed.Store
	ttl     time.Duration
	log     logrus.FieldLogger
	loads   flight.Group
}

func followeesKey(userId uint32) string {
	return fmt.Sprint("following:", userId)
}

func followersKey(userId uint32) string {
	return fmt.Sprint("followers:", userId)
}

func (c *FollowSetCache) Followees(ctx context.Context, userId uint32) ([]uint32, error) {
	return c.get(ctx, followeesKey(userId), func(ctx context.Context) ([]uint32, error) {
		return c.store.FindFolloweeIDs(ctx, userId)
	})
}

func (c *FollowSetCache) Followers(ctx context.Context, userId uint32) ([]uint32, error) {
	return c.get(ctx, followersKey(userId), func(ctx context.Context) ([]uint32, error) {
		return c.store.FindFollowerIDs(ctx, userId)
	})
}

func (c *FollowSetCache) InvalidateFollowees(ctx context.Context, userId uint32) error {
	return c.backend.Delete(ctx, followeesKey(userId))
}

func (c *FollowSetCache) InvalidateFollowers(ctx context.Context, userId uint32) error {
	return c.backend.Delete(ctx, followersKey(userId))
}

func (c *FollowSetCache) AddFollowee(ctx context.Context, userId, targetId uint32) error {
	return c.patchAdd(ctx, followeesKey(userId), targetId)
}

func (c *FollowSetCache) RemoveFollowee(ctx context.Context, userId, targetId uint32) error {
	return c.patchRemove(ctx, followeesKey(userId), targetId)
}

func (c *FollowSetCache) AddFollower(ctx context.Context, userId, followerId uint32) error {
	return c.patchAdd(ctx, followersKey(userId), followerId)
}

func (c *FollowSetCache) RemoveFollower(ctx context.Context, userId, followerId uint32) error {
	return c.patchRemove(ctx, followersKey(userId), followerId)
}

func (c *FollowSetCache) get(ctx context.Context, key string, load func(context.Context) ([]uint32, error)) ([]uint32, error) {
	members, err := c.backend.SetMembers(ctx, key)
	switch {
	case errors.Is(err, ErrWrongType):
		c.discard(ctx, key, err)
	case err != nil:
		return nil, err
	case len(members) > 0:
		ids, err := decodeFollowSet(key, members)
		if err == nil {
			return ids, nil
		}
		c.discard(ctx, key, err)
	}

	v, err := c.loads.Do(ctx, key, func(ctx context.Context) (any, error) {
		ids, err := load(ctx)
		if err != nil {
			return nil, feed.Unavailable(err)
		}

		members := make([]string, 0, len(ids)+1)
		members = append(members, followSetSentinel)
		for _, id := range ids {
			members = append(members, formatID(id))
		}
		// the store answered; failing to remember the answer only costs a reload
		if err := c.backend.SetAdd(ctx, key, c.ttl, members...); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("follow set not cached")
		}
		return ids, nil
	})
	if err != nil {
		return nil, feed.Unavailable(err)
	}
	return slices.Clone(v.([]uint32)), nil
}

func (c *FollowSetCache) patchAdd(ctx context.Context, key string, id uint32) error {
	_, err := c.backend.SetAddIfExists(ctx, key, formatID(id))
	if errors.Is(err, ErrWrongType) {
		c.discard(ctx, key, err)
		return nil
	}
	return err
}

func (c *FollowSetCache) patchRemove(ctx context.Context, key string, id uint32) error {
	err := c.backend.SetRemove(ctx, key, formatID(id))
	if errors.Is(err, ErrWrongType) {
		c.discard(ctx, key, err)
		return nil
	}
	return err
}

// discard drops a key whose content cannot be trusted; the next read rebuilds it.
func (c *FollowSetCache) discard(ctx context.Context, key string, cause error) {
	c.log.WithError(cause).WithField("key", key).Warn("dropping unreadable follow set")
	if err := c.backend.Delete(ctx, key); err != nil {
		c.log.WithError(err).WithField("key", key).Error("drop follow set")
	}
}

func decodeFollowSet(key string, members []string) ([]uint32, error) {
	ids := make([]uint32, 0, len(members))
	sentinel := false
	for _, m := range members {
		if m == followSetSentinel {
			sentinel = true
			continue
		}
		id, err := parseID(m)
		if err != nil {
			return nil, fmt.Errorf("%w: %s holds %q", ErrCorrupt, key, m)
		}
		ids = append(ids, id)
	}
	if !sentinel {
		return nil, fmt.Errorf("%w: %s was not built from the store", ErrCorrupt, key)
	}
	return ids, nil
}
