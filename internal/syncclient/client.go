// Package syncclient is the request/cache layer used by presentation code to
// read and mutate collections without blocking on every render.
package syncclient

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mindfulspace.app/backend/internal/store"
)

type queryKey struct {
	collection string
	orderBy    string
}

type cacheEntry struct {
	items   []store.Document
	fetched time.Time
}

// Client caches list queries per (collection, orderBy). Every successful write
// drops the cached queries of its collection, so the next read refetches.
type Client struct {
	backend Backend
	maxAge  time.Duration
	now     func() time.Time

	mu    sync.Mutex
	cache map[queryKey]cacheEntry
	gen   map[string]uint64

	group singleflight.Group
}

type Option func(*Client)

// WithMaxAge expires cached queries after d. Zero keeps them until the next
// write.
func WithMaxAge(d time.Duration) Option {
	return func(c *Client) { c.maxAge = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		now:     time.Now,
		cache:   make(map[queryKey]cacheEntry),
		gen:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List serves from cache when possible. Concurrent identical reads share one
// backend call. The shared call outlives the caller that started it, so a
// cancelled caller never fails the others; each caller still stops waiting
// when its own ctx is done.
func (c *Client) List(ctx context.Context, collection, orderBy string) ([]store.Document, error) {
	key := queryKey{collection: collection, orderBy: orderBy}

	c.mu.Lock()
	if e, ok := c.cache[key]; ok && c.fresh(e) {
		c.mu.Unlock()
		return cloneItems(e.items), nil
	}
	gen := c.gen[collection]
	c.mu.Unlock()

	// The generation keeps a read issued after a write from joining a fetch
	// that started before it.
	flightKey := fmt.Sprintf("%s\x00%s\x00%d", collection, orderBy, gen)
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		items, err := c.backend.List(fetchCtx, collection, orderBy)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen[collection] == gen {
			c.cache[key] = cacheEntry{items: items, fetched: c.now()}
		}
		c.mu.Unlock()
		return items, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneItems(res.Val.([]store.Document)), nil
	}
}

func (c *Client) Create(ctx context.Context, collection string, data store.Document) (store.Document, error) {
	doc, err := c.backend.Create(ctx, collection, data)
	if err != nil {
		return nil, err
	}
	c.Invalidate(collection)
	return doc, nil
}

// Update returns nil, nil when the record does not exist; nothing is
// invalidated in that case.
func (c *Client) Update(ctx context.Context, collection, id string, patch store.Document) (store.Document, error) {
	doc, err := c.backend.Update(ctx, collection, id, patch)
	if err != nil || doc == nil {
		return nil, err
	}
	c.Invalidate(collection)
	return doc, nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) (bool, error) {
	deleted, err := c.backend.Delete(ctx, collection, id)
	if err != nil || !deleted {
		return false, err
	}
	c.Invalidate(collection)
	return true, nil
}

// Invalidate drops every cached query of collection.
func (c *Client) Invalidate(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[collection]++
	for k := range c.cache {
		if k.collection == collection {
			delete(c.cache, k)
		}
	}
}

func (c *Client) fresh(e cacheEntry) bool {
	return c.maxAge <= 0 || c.now().Sub(e.fetched) < c.maxAge
}

func cloneItems(items []store.Document) []store.Document {
	out := make([]store.Document, len(items))
	for i, d := range items {
		out[i] = maps.Clone(d)
	}
	return out
}
