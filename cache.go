package authorflow

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// ErrNotFound is returned when a requested post does not exist.
var ErrNotFound = sql.ErrNoRows

type cachedPosts struct {
	posts   []Post
	fetched time.Time
}

// PostCache keeps a per-owner snapshot of posts with a TTL. Imports match
// against the snapshot and invalidate it once their writes land.
type PostCache struct {
	mu      sync.RWMutex
	entries map[string]cachedPosts
	ttl     time.Duration
	store   *Store
	now     func() time.Time
}

// NewPostCache creates a PostCache backed by the given Store.
func NewPostCache(s *Store, ttl time.Duration) *PostCache {
	return &PostCache{
		entries: make(map[string]cachedPosts),
		ttl:     ttl,
		store:   s,
		now:     time.Now,
	}
}

func (c *PostCache) lookup(owner string) ([]Post, bool) {
	e, ok := c.entries[owner]
	if !ok || c.now().Sub(e.fetched) >= c.ttl {
		return nil, false
	}
	return e.posts, true
}

// ListPosts returns the owner's posts, loading them from the store when the
// snapshot is missing or stale. The returned slice is shared; do not modify it.
func (c *PostCache) ListPosts(ctx context.Context, owner string) ([]Post, error) {
	c.mu.RLock()
	posts, ok := c.lookup(owner)
	c.mu.RUnlock()
	if ok {
		return posts, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if posts, ok := c.lookup(owner); ok {
		return posts, nil
	}
	posts, err := c.store.ListPosts(ctx, owner)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []Post{}
	}
	c.entries[owner] = cachedPosts{posts: posts, fetched: c.now()}
	return posts, nil
}

// Invalidate drops the owner's snapshot so the next read reloads it.
func (c *PostCache) Invalidate(owner string) {
	c.mu.Lock()
	delete(c.entries, owner)
	c.mu.Unlock()
}
