package distribution

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/smks17/feed_distribution/lib/feed"
)

// Delivery describes one fan-out.
type Delivery struct {
	// Recipients is the number of followers the post was sent to.
	Recipients int
	// Failed lists the followers whose feed was not updated.
	Failed []uint32
	// Err is a *PartialFanOutError when anything, the global feed included,
	// was not updated.
	Err error
}

// Publish pushes post into the global feed and into the home feed of every
// follower of its author. The author's own home feed is not written: a home
// feed holds followees' posts only, and repair rebuilds it the same way.
// Publishing the same post twice is a no-op. Failed feed writes do not fail
// the call, they are reported in Delivery.Err.
func (e *Engine) Publish(ctx context.Context, post feed.PostRef) (Delivery, error) {
	if err := validatePost(post); err != nil {
		return Delivery{}, err
	}
	return e.fanOut(ctx, "publish", post,
		func(ctx context.Context) error {
			return e.cache.GlobalFeed.Add(ctx, post)
		},
		func(ctx context.Context, follower uint32) error {
			return e.cache.HomeFeed.Add(ctx, follower, post)
		},
	)
}

// Retract removes a deleted post from the global feed and from the feeds of
// the author's current followers.
func (e *Engine) Retract(ctx context.Context, post feed.PostRef) (Delivery, error) {
	if post.ID == 0 {
		return Delivery{}, invalid("post id must be set")
	}
	if err := validateUser("author", post.Author); err != nil {
		return Delivery{}, err
	}
	return e.fanOut(ctx, "retract", post,
		func(ctx context.Context) error {
			return e.cache.GlobalFeed.Remove(ctx, post.ID)
		},
		func(ctx context.Context, follower uint32) error {
			return e.cache.HomeFeed.Remove(ctx, follower, post.ID)
		},
	)
}

// fanOut applies global once and deliver to every follower of the post's
// author, at most FanOutWorkers at a time. No lock spans the loop: each write
// is its own atomic cache operation.
func (e *Engine) fanOut(
	ctx context.Context,
	op string,
	post feed.PostRef,
	global func(context.Context) error,
	deliver func(context.Context, uint32) error,
) (Delivery, error) {
	log := e.log.WithFields(logrus.Fields{"op": op, "post": post.ID, "author": post.Author})

	var (
		mu       sync.Mutex
		errs     *multierror.Error
		delivery Delivery
	)
	if err := global(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("global feed: %w", err))
	}

	followers, err := e.cache.Follows.Followers(ctx, post.Author)
	if err != nil {
		log.WithError(err).Error("follower lookup failed")
		return delivery, fmt.Errorf("followers of %d: %w", post.Author, err)
	}
	delivery.Recipients = len(followers)

	var g errgroup.Group
	g.SetLimit(e.cfg.FanOutWorkers)
	for _, follower := range followers {
		follower := follower
		g.Go(func() error {
			if err := deliver(ctx, follower); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("feed of %d: %w", follower, err))
				delivery.Failed = append(delivery.Failed, follower)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(delivery.Failed)
	e.metrics.FanOut(op, delivery.Recipients, len(delivery.Failed))
	if errs != nil {
		delivery.Err = &PartialFanOutError{PostID: post.ID, Failed: delivery.Failed, Err: errs.ErrorOrNil()}
		log.WithError(delivery.Err).WithField("failed", len(delivery.Failed)).Warn("degraded delivery")
	}
	if err := ctx.Err(); err != nil {
		return delivery, err
	}

	log.WithField("recipients", delivery.Recipients).Debug("fan-out done")
	return delivery, nil
}
