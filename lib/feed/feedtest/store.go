// Package feedtest provides an in-memory feed.Store for tests.
package feedtest

import (
	"context"
	"sort"
	"sync"

	"github.com/smks17/feed_distribution/lib/feed"
)

// Store is a concurrency-safe in-memory system of record that counts the
// queries it serves and can be switched into failing.
type Store struct {
	mu      sync.Mutex
	follows map[uint32]map[uint32]struct{}
	posts   map[uint32]feed.Post
	err     error
	calls   map[string]int
}

func NewStore() *Store {
	return &Store{
		follows: make(map[uint32]map[uint32]struct{}),
		posts:   make(map[uint32]feed.Post),
		calls:   make(map[string]int),
	}
}

func (s *Store) Follow(follower, followee uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.follows[follower] == nil {
		s.follows[follower] = make(map[uint32]struct{})
	}
	s.follows[follower][followee] = struct{}{}
}

func (s *Store) Unfollow(follower, followee uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.follows[follower], followee)
}

func (s *Store) AddPost(p feed.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = p
}

func (s *Store) RemovePost(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, id)
}

// Fail makes every following query return err; nil restores service.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls reports how many times method was invoked, failed calls included.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Store) enter(method string) error {
	s.calls[method]++
	return s.err
}

func (s *Store) FindFolloweeIDs(ctx context.Context, userId uint32) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindFolloweeIDs"); err != nil {
		return nil, err
	}
	var ids []uint32
	for id := range s.follows[userId] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) FindFollowerIDs(ctx context.Context, userId uint32) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindFollowerIDs"); err != nil {
		return nil, err
	}
	var ids []uint32
	for follower, followees := range s.follows {
		if _, ok := followees[userId]; ok {
			ids = append(ids, follower)
		}
	}
	return ids, nil
}

func (s *Store) FindRecentPostIDs(ctx context.Context, authorId uint32, limit int) ([]feed.PostRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindRecentPostIDs"); err != nil {
		return nil, err
	}
	return s.recent(limit, func(p feed.Post) bool { return p.Author == authorId }), nil
}

func (s *Store) FindGlobalRecentPosts(ctx context.Context, limit int) ([]feed.PostRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindGlobalRecentPosts"); err != nil {
		return nil, err
	}
	return s.recent(limit, func(feed.Post) bool { return true }), nil
}

func (s *Store) FindPostsByIDs(ctx context.Context, ids []uint32) ([]feed.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindPostsByIDs"); err != nil {
		return nil, err
	}
	posts := make([]feed.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.posts[id]; ok {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

func (s *Store) recent(limit int, match func(feed.Post) bool) []feed.PostRef {
	var refs []feed.PostRef
	for _, p := range s.posts {
		if match(p) {
			refs = append(refs, p.Ref())
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].CreatedAt.Equal(refs[j].CreatedAt) {
			return refs[i].ID > refs[j].ID
		}
		return refs[i].CreatedAt.After(refs[j].CreatedAt)
	})
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs
}
