package distribution_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/smks17/feed_distribution/lib/cache"
	"github.com/smks17/feed_distribution/lib/distribution"
	"github.com/smks17/feed_distribution/lib/feed"
	"github.com/smks17/feed_distribution/lib/feed/feedtest"
)

type recordingMetrics struct {
	mu         sync.Mutex
	fanOuts    map[string]int
	failed     int
	repairs    map[string]int
	mismatches map[string]int
	served     map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		fanOuts:    make(map[string]int),
		repairs:    make(map[string]int),
		mismatches: make(map[string]int),
		served:     make(map[string]int),
	}
}

func (m *recordingMetrics) FanOut(op string, recipients, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fanOuts[op]++
	m.failed += failed
}

func (m *recordingMetrics) Repaired(kind string, entries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repairs[kind]++
}

func (m *recordingMetrics) CacheMismatch(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mismatches[kind]++
}

func (m *recordingMetrics) Served(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.served[source]++
}

func (m *recordingMetrics) repairsOf(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repairs[kind]
}

type harness struct {
	engine  *distribution.Engine
	feeds   cache.FeedCache
	backend *cache.MemoryBackend
	store   *feedtest.Store
	metrics *recordingMetrics
}

type setup struct {
	cache  cache.Config
	engine distribution.Config
	wrap   func(*cache.FeedCache)
	store  func(*feedtest.Store) feed.Store
}

func newHarness(t *testing.T, opts ...func(*setup)) *harness {
	t.Helper()
	s := setup{cache: cache.DefaultConfig(), engine: distribution.DefaultConfig()}
	for _, opt := range opts {
		opt(&s)
	}

	log, _ := logtest.NewNullLogger()
	backend := cache.NewMemoryBackend()
	store := feedtest.NewStore()
	var source feed.Store = store
	if s.store != nil {
		source = s.store(store)
	}
	feeds := cache.NewFeedCache(backend, source, s.cache, cache.WithLogger(log))
	if s.wrap != nil {
		s.wrap(&feeds)
	}
	metrics := newRecordingMetrics()
	engine := distribution.New(feeds, source, s.engine,
		distribution.WithLogger(log),
		distribution.WithMetrics(metrics),
	)
	return &harness{engine: engine, feeds: feeds, backend: backend, store: store, metrics: metrics}
}

// post stores a post as the web layer would and returns its reference.
func (h *harness) post(id, author uint32, at int64) feed.PostRef {
	p := feed.Post{ID: id, Author: author, Content: "post", CreatedAt: time.Unix(at, 0).UTC()}
	h.store.AddPost(p)
	return p.Ref()
}

// follow records the edge in the store and notifies the engine.
func (h *harness) follow(t *testing.T, follower, followee uint32) {
	t.Helper()
	h.store.Follow(follower, followee)
	require.NoError(t, h.engine.OnFollow(context.Background(), follower, followee))
}

func (h *harness) unfollow(t *testing.T, follower, followee uint32) {
	t.Helper()
	h.store.Unfollow(follower, followee)
	require.NoError(t, h.engine.OnUnfollow(context.Background(), follower, followee))
}

func (h *harness) publish(t *testing.T, p feed.PostRef) distribution.Delivery {
	t.Helper()
	d, err := h.engine.Publish(context.Background(), p)
	require.NoError(t, err)
	return d
}

// flakyHome fails writes to the feeds of the users in fail.
type flakyHome struct {
	cache.HomeIndex
	mu   sync.Mutex
	fail map[uint32]bool
}

func (f *flakyHome) Add(ctx context.Context, userId uint32, posts ...feed.PostRef) error {
	f.mu.Lock()
	broken := f.fail[userId]
	f.mu.Unlock()
	if broken {
		return errors.New("connection reset by peer")
	}
	return f.HomeIndex.Add(ctx, userId, posts...)
}

func (f *flakyHome) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = nil
}

// brokenGlobal fails every write to the global feed.
type brokenGlobal struct {
	cache.GlobalIndex
}

func (brokenGlobal) Add(ctx context.Context, posts ...feed.PostRef) error {
	return errors.New("READONLY You can't write against a read only replica")
}

// gatedStore holds every FindRecentPostIDs call until release is closed or
// the query's context ends. entered receives one value per call.
type gatedStore struct {
	*feedtest.Store
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(s *feedtest.Store) *gatedStore {
	return &gatedStore{Store: s, entered: make(chan struct{}, 64), release: make(chan struct{})}
}

func (g *gatedStore) FindRecentPostIDs(ctx context.Context, authorId uint32, limit int) ([]feed.PostRef, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return g.Store.FindRecentPostIDs(ctx, authorId, limit)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// countingHome counts Len calls, which every cold read makes right before it
// repairs.
type countingHome struct {
	cache.HomeIndex
	mu   sync.Mutex
	lens int
}

func (c *countingHome) Len(ctx context.Context, userId uint32) (int64, error) {
	c.mu.Lock()
	c.lens++
	c.mu.Unlock()
	return c.HomeIndex.Len(ctx, userId)
}

func (c *countingHome) lenCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lens
}
