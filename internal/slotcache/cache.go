// Package slotcache keeps the "next available slots" listing fresh.
//
// A Cache holds exactly one entry. Reads go through GetOrPopulate, which
// serves the stored listing while it is younger than the configured TTL and
// otherwise calls the backend. Booking and cancellation call Invalidate so
// the next read always goes to the backend.
package slotcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a fetched listing is served without asking the backend.
const DefaultTTL = 2 * time.Minute

// FetchFunc loads a fresh listing from the backend.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Stats counts cache activity since start.
type Stats struct {
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	Fetches  uint64 `json:"fetches"`
	Failures uint64 `json:"failures"`
}

// Cache is a single-slot read-through cache with explicit invalidation.
type Cache struct {
	ttl    time.Duration
	store  Store
	now    func() time.Time
	logger *log.Logger

	// concurrent misses share one backend call
	sf singleflight.Group

	// gen is bumped by Invalidate. A fetch that started under an older
	// generation does not store its result. writeMu orders that check and
	// the Save against Invalidate.
	gen     atomic.Uint64
	writeMu sync.Mutex

	hits, misses, fetches, failures atomic.Uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore replaces the default in-process store.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithClock sets the time source used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *log.Logger) Option {
	return func(c *Cache) {
		if l == nil {
			l = log.New(io.Discard, "", 0)
		}
		c.logger = l
	}
}

// New creates a Cache whose entries stay fresh for ttl.
// A non-positive ttl falls back to DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:    ttl,
		store:  NewMemoryStore(),
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) fresh(e Entry) bool {
	return truthy(e.Data) && c.now().Sub(e.PopulatedAt) < c.ttl
}

// GetOrPopulate returns the cached listing while it is fresh. Otherwise it
// calls fetch, stores the result and returns it. A failed fetch leaves the
// stored entry as it was and returns the error.
//
// Concurrent misses share one fetch. The shared fetch does not inherit any
// caller's cancellation; each caller stops waiting when its own ctx is done.
func (c *Cache) GetOrPopulate(ctx context.Context, fetch FetchFunc) (json.RawMessage, error) {
	if e, ok := c.load(ctx); ok && c.fresh(e) {
		c.hits.Add(1)
		c.logger.Printf("slotcache: serving listing from cache (age %s)", c.now().Sub(e.PopulatedAt).Round(time.Millisecond))
		return e.Data, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.sf.DoChan("listing", func() (any, error) {
		return c.populate(fetchCtx, fetch)
	})
	// counted once this caller has joined the shared fetch
	c.misses.Add(1)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	}
}

func (c *Cache) populate(ctx context.Context, fetch FetchFunc) (json.RawMessage, error) {
	c.fetches.Add(1)
	c.logger.Printf("slotcache: cache stale, fetching listing from backend")
	gen := c.gen.Load()
	data, err := fetch(ctx)
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}
	data = clone(data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.gen.Load() != gen {
		c.logger.Printf("slotcache: listing invalidated during fetch, not storing it")
		return data, nil
	}
	if err := c.store.Save(ctx, Entry{Data: data, PopulatedAt: c.now()}); err != nil {
		c.logger.Printf("slotcache: storing listing: %v", err)
	}
	return data, nil
}

// Invalidate drops the cached listing so the next read goes to the backend.
// It is safe to call on an empty cache.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.gen.Add(1)
	// readers arriving from now on start their own fetch
	c.sf.Forget("listing")
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("slotcache: invalidate: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Fetches:  c.fetches.Load(),
		Failures: c.failures.Load(),
	}
}

func (c *Cache) load(ctx context.Context) (Entry, bool) {
	e, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Printf("slotcache: reading cached listing: %v", err)
		return Entry{}, false
	}
	return e, true
}

// truthy reports whether a listing counts as present. null, false, 0 and ""
// are treated like no listing at all and are never served from the cell.
func truthy(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return false
	}
	switch string(b) {
	case "null", "false", `""`:
		return false
	}
	if f, err := strconv.ParseFloat(string(b), 64); err == nil && f == 0 {
		return false
	}
	return true
}

func clone(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
