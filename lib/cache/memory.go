package cache

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryBackend is an in-process Backend with the same semantics as
// RedisBackend: empty collections disappear, expired keys read as absent and
// equal scores order by member, highest first.
type MemoryBackend struct {
	mu    sync.Mutex
	items map[string]*memoryItem
	now   func() time.Time
}

type memoryItem struct {
	set       map[string]struct{}
	index     *sortedIndex
	expiresAt time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		items: make(map[string]*memoryItem),
		now:   time.Now,
	}
}

func (mb *MemoryBackend) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()

	item, err := mb.setItem(key, true)
	if err != nil {
		return err
	}
	for _, m := range members {
		item.set[m] = struct{}{}
	}
	mb.expire(item, ttl)
	return nil
}

func (mb *MemoryBackend) SetAddIfExists(ctx context.Context, key, member string) (bool, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	item, err := mb.setItem(key, false)
	if err != nil || item == nil {
		return false, err
	}
	item.set[member] = struct{}{}
	return true, nil
}

func (mb *MemoryBackend) SetRemove(ctx context.Context, key string, members ...string) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	item, err := mb.setItem(key, false)
	if err != nil || item == nil {
		return err
	}
	for _, m := range members {
		delete(item.set, m)
	}
	if len(item.set) == 0 {
		delete(mb.items, key)
	}
	return nil
}

func (mb *MemoryBackend) SetMembers(ctx context.Context, key string) ([]string, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	item, err := mb.setItem(key, false)
	if err != nil || item == nil {
		return nil, err
	}
	members := make([]string, 0, len(item.set))
	for m := range item.set {
		members = append(members, m)
	}
	return members, nil
}

func (mb *MemoryBackend) IndexAdd(ctx context.Context, key string, opts IndexOptions, entries ...IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()

	item, err := mb.indexItem(key, true)
	if err != nil {
		return err
	}
	for _, e := range entries {
		item.index.add(e)
	}
	if opts.Cap > 0 {
		item.index.keep(int(opts.Cap))
	}
	mb.expire(item, opts.TTL)
	return nil
}

func (mb *MemoryBackend) IndexRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	item, err := mb.indexItem(key, false)
	if err != nil || item == nil {
		return nil, err
	}
	return item.index.revRange(start, stop), nil
}

func (mb *MemoryBackend) IndexRemove(ctx context.Context, key string, members ...string) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	item, err := mb.indexItem(key, false)
	if err != nil || item == nil {
		return err
	}
	for _, m := range members {
		item.index.remove(m)
	}
	if len(item.index.entries) == 0 {
		delete(mb.items, key)
	}
	return nil
}

func (mb *MemoryBackend) IndexLen(ctx context.Context, key string) (int64, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	item, err := mb.indexItem(key, false)
	if err != nil || item == nil {
		return 0, err
	}
	return int64(len(item.index.entries)), nil
}

func (mb *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.lookup(key) != nil, nil
}

func (mb *MemoryBackend) Delete(ctx context.Context, keys ...string) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for _, k := range keys {
		delete(mb.items, k)
	}
	return nil
}

func (mb *MemoryBackend) Ping(ctx context.Context) error { return nil }

func (mb *MemoryBackend) Close() error { return nil }

// lookup drops the key if it has expired. Callers hold mb.mu.
func (mb *MemoryBackend) lookup(key string) *memoryItem {
	item, ok := mb.items[key]
	if !ok {
		return nil
	}
	if !item.expiresAt.IsZero() && !mb.now().Before(item.expiresAt) {
		delete(mb.items, key)
		return nil
	}
	return item
}

func (mb *MemoryBackend) setItem(key string, create bool) (*memoryItem, error) {
	item := mb.lookup(key)
	if item == nil {
		if !create {
			return nil, nil
		}
		item = &memoryItem{set: make(map[string]struct{})}
		mb.items[key] = item
	}
	if item.set == nil {
		return nil, ErrWrongType
	}
	return item, nil
}

func (mb *MemoryBackend) indexItem(key string, create bool) (*memoryItem, error) {
	item := mb.lookup(key)
	if item == nil {
		if !create {
			return nil, nil
		}
		item = &memoryItem{index: newSortedIndex()}
		mb.items[key] = item
	}
	if item.index == nil {
		return nil, ErrWrongType
	}
	return item, nil
}

func (mb *MemoryBackend) expire(item *memoryItem, ttl time.Duration) {
	if ttl > 0 {
		item.expiresAt = mb.now().Add(ttl)
	}
}

// sortedIndex keeps entries ordered highest score first.
type sortedIndex struct {
	entries []IndexEntry
	scores  map[string]float64
}

func newSortedIndex() *sortedIndex {
	return &sortedIndex{scores: make(map[string]float64)}
}

func ranksBefore(a, b IndexEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Member > b.Member
}

func (s *sortedIndex) position(e IndexEntry) int {
	return sort.Search(len(s.entries), func(i int) bool {
		return !ranksBefore(s.entries[i], e)
	})
}

func (s *sortedIndex) add(e IndexEntry) {
	if old, ok := s.scores[e.Member]; ok {
		if old == e.Score {
			return
		}
		s.remove(e.Member)
	}
	s.entries = slices.Insert(s.entries, s.position(e), e)
	s.scores[e.Member] = e.Score
}

func (s *sortedIndex) remove(member string) {
	score, ok := s.scores[member]
	if !ok {
		return
	}
	i := s.position(IndexEntry{Member: member, Score: score})
	s.entries = slices.Delete(s.entries, i, i+1)
	delete(s.scores, member)
}

func (s *sortedIndex) keep(n int) {
	if len(s.entries) <= n {
		return
	}
	for _, e := range s.entries[n:] {
		delete(s.scores, e.Member)
	}
	s.entries = slices.Clip(s.entries[:n])
}

func (s *sortedIndex) revRange(start, stop int64) []string {
	n := int64(len(s.entries))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return []string{}
	}
	members := make([]string, 0, stop-start+1)
	for _, e := range s.entries[start : stop+1] {
		members = append(members, e.Member)
	}
	return members
}
