package shortlink_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"snipr.local/internal/app/shortlink"
	"snipr.local/internal/app/shortlink/store/memory"
)

type mapCache struct {
	mu      sync.Mutex
	entries map[string]string
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) Get(_ context.Context, token string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.entries[token]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, token, longURL string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[token] = longURL
	c.ttls[token] = ttl
	return nil
}

func (c *mapCache) get(token string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[token]
	return v, ok
}

type recordingSink struct {
	mu     sync.Mutex
	clicks []shortlink.Click
}

func (s *recordingSink) Collect(c shortlink.Click) {
	s.mu.Lock()
	s.clicks = append(s.clicks, c)
	s.mu.Unlock()
}

func (s *recordingSink) all() []shortlink.Click {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shortlink.Click(nil), s.clicks...)
}

// countingStore wraps the memory store and counts reads; readErr makes reads fail.
type countingStore struct {
	*memory.Store
	reads   atomic.Int64
	readErr error
	delay   time.Duration
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memory.New()}
}

func (s *countingStore) FindByShortID(ctx context.Context, id string) (shortlink.Record, error) {
	s.reads.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.readErr != nil {
		return shortlink.Record{}, s.readErr
	}
	return s.Store.FindByShortID(ctx, id)
}

func (s *countingStore) FindByAlias(ctx context.Context, alias string) (shortlink.Record, error) {
	s.reads.Add(1)
	if s.readErr != nil {
		return shortlink.Record{}, s.readErr
	}
	return s.Store.FindByAlias(ctx, alias)
}

var errBoom = errors.New("boom")

type staticFilter map[string]bool

func (f staticFilter) Add(token string)             { f[token] = true }
func (f staticFilter) MightExist(token string) bool { return f[token] }
