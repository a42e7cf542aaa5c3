package distribution

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/smks17/feed_distribution/lib/feed"
)

const globalFlight = "global"

// UserFeed returns a page of the user's home feed, newest first. An empty
// feed is rebuilt from the store before reading again; a user whose rebuild
// finds nothing gets the global feed instead.
func (e *Engine) UserFeed(ctx context.Context, userId uint32, page, limit int) ([]uint32, error) {
	if err := validateUser("user", userId); err != nil {
		return nil, err
	}
	if err := validatePage(page, limit); err != nil {
		return nil, err
	}

	ids, err := e.homePage(ctx, userId, page, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		e.metrics.Served("cache")
		return ids, nil
	}

	n, err := e.cache.HomeFeed.Len(ctx, userId)
	if err != nil && !isMismatch(err) {
		return nil, cacheErr("home feed size", err)
	}
	if n > 0 {
		if reaches(n, page, limit) {
			// filled by a concurrent repair since the first read
			if ids, err = e.homePage(ctx, userId, page, limit); err != nil {
				return nil, err
			}
		}
		e.metrics.Served("cache")
		return nonNil(ids), nil
	}

	if !e.knownEmpty(userId) {
		repaired, err := e.repairHome(ctx, userId)
		if err != nil {
			return nil, err
		}
		if repaired > 0 {
			ids, err = e.homePage(ctx, userId, page, limit)
			if err != nil {
				return nil, err
			}
			e.metrics.Served("repair")
			return nonNil(ids), nil
		}
		e.markEmpty(userId)
	}
	return e.globalFeed(ctx, page, limit)
}

// GlobalFeed returns a page of the most recent posts system-wide, refilling
// the index from the store when it is empty.
func (e *Engine) GlobalFeed(ctx context.Context, page, limit int) ([]uint32, error) {
	if err := validatePage(page, limit); err != nil {
		return nil, err
	}
	return e.globalFeed(ctx, page, limit)
}

func (e *Engine) globalFeed(ctx context.Context, page, limit int) ([]uint32, error) {
	ids, err := e.globalPage(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		n, err := e.cache.GlobalFeed.Len(ctx)
		if err != nil && !isMismatch(err) {
			return nil, cacheErr("global feed size", err)
		}
		if n == 0 {
			if err := e.repopulateGlobal(ctx); err != nil {
				return nil, err
			}
		}
		if n == 0 || reaches(n, page, limit) {
			if ids, err = e.globalPage(ctx, page, limit); err != nil {
				return nil, err
			}
		}
	}
	e.metrics.Served("global")
	return nonNil(ids), nil
}

func (e *Engine) homePage(ctx context.Context, userId uint32, page, limit int) ([]uint32, error) {
	ids, err := e.cache.HomeFeed.Page(ctx, userId, page, limit)
	if isMismatch(err) {
		e.discard(ctx, "home", err, func(ctx context.Context) error {
			return e.cache.HomeFeed.Delete(ctx, userId)
		})
		return nil, nil
	}
	if err != nil {
		return nil, cacheErr(fmt.Sprintf("home feed of %d", userId), err)
	}
	return ids, nil
}

func (e *Engine) globalPage(ctx context.Context, page, limit int) ([]uint32, error) {
	ids, err := e.cache.GlobalFeed.Page(ctx, page, limit)
	if isMismatch(err) {
		e.discard(ctx, "global", err, e.cache.GlobalFeed.Delete)
		return nil, nil
	}
	if err != nil {
		return nil, cacheErr("global feed", err)
	}
	return ids, nil
}

// repairHome rebuilds a home feed from the followees' recent posts and
// returns how many entries it wrote. Concurrent repairs of one user share a
// single run.
func (e *Engine) repairHome(ctx context.Context, userId uint32) (int, error) {
	v, err := e.repairs.Do(ctx, fmt.Sprint("home:", userId), func(ctx context.Context) (any, error) {
		followees, err := e.cache.Follows.Followees(ctx, userId)
		if err != nil {
			return 0, fmt.Errorf("followees of %d: %w", userId, err)
		}
		refs, err := e.recentPostsOf(ctx, followees)
		if err != nil {
			return 0, err
		}
		if err := e.cache.HomeFeed.Add(ctx, userId, refs...); err != nil {
			return 0, cacheErr(fmt.Sprintf("repair home feed of %d", userId), err)
		}

		e.metrics.Repaired("home", len(refs))
		e.log.WithFields(logrus.Fields{
			"user":      userId,
			"followees": len(followees),
			"entries":   len(refs),
		}).Debug("home feed repaired")
		return len(refs), nil
	})
	if err != nil {
		return 0, sharedErr(err)
	}
	return v.(int), nil
}

func (e *Engine) recentPostsOf(ctx context.Context, authors []uint32) ([]feed.PostRef, error) {
	var (
		mu   sync.Mutex
		refs []feed.PostRef
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.FanOutWorkers)
	for _, author := range authors {
		author := author
		g.Go(func() error {
			posts, err := e.store.FindRecentPostIDs(gctx, author, e.cfg.RepairPostsPerAuthor)
			if err != nil {
				return feed.Unavailable(fmt.Errorf("recent posts of %d: %w", author, err))
			}
			mu.Lock()
			refs = append(refs, posts...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

func (e *Engine) repopulateGlobal(ctx context.Context) error {
	_, err := e.repairs.Do(ctx, globalFlight, func(ctx context.Context) (any, error) {
		refs, err := e.store.FindGlobalRecentPosts(ctx, e.cfg.GlobalRepopulateLimit)
		if err != nil {
			return nil, feed.Unavailable(fmt.Errorf("global recent posts: %w", err))
		}
		if err := e.cache.GlobalFeed.Add(ctx, refs...); err != nil {
			return nil, cacheErr("repopulate global feed", err)
		}

		e.metrics.Repaired("global", len(refs))
		e.log.WithField("entries", len(refs)).Info("global feed repopulated")
		return nil, nil
	})
	return sharedErr(err)
}

// reaches reports whether an index of n entries has anything on the page.
func reaches(n int64, page, limit int) bool {
	return n > int64(page-1)*int64(limit)
}

func nonNil(ids []uint32) []uint32 {
	if ids == nil {
		return []uint32{}
	}
	return ids
}
