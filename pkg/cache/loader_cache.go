// Package cache provides a generic loader cache: LRU storage (optionally with a TTL) plus
// singleflight so concurrent misses for one key run a single load.
package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// store is satisfied by both lru.Cache and expirable.LRU.
type store[V any] interface {
	Get(key string) (V, bool)
	Add(key string, value V) bool
	Remove(key string) bool
	Purge()
	Len() int
}

// DefaultLoadTimeout bounds a load when WithLoadTimeout is not given.
const DefaultLoadTimeout = 2 * time.Minute

// Option configures a LoaderCache.
type Option func(*options)

type options struct {
	ttl         time.Duration
	loadTimeout time.Duration
}

// WithTTL expires entries ttl after they are added.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithLoadTimeout bounds each load. Loads are detached from the callers' contexts, so this is
// the only deadline they run under.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.loadTimeout = d
	}
}

// LoaderCache loads values on miss through a callback. Keys are serialized with keyToString for
// both the LRU and the singleflight group. Failed loads are never cached.
type LoaderCache[K comparable, V any] struct {
	entries     store[V]
	group       singleflight.Group
	keyToString func(K) string
	loadTimeout time.Duration
}

// NewLoaderCache creates a loader cache holding at most maxEntries values.
func NewLoaderCache[K comparable, V any](maxEntries int, keyToString func(K) string, opts ...Option) (*LoaderCache[K, V], error) {
	o := options{loadTimeout: DefaultLoadTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	if o.loadTimeout <= 0 {
		return nil, fmt.Errorf("cache: load timeout must be positive, got %s", o.loadTimeout)
	}

	c := &LoaderCache[K, V]{keyToString: keyToString, loadTimeout: o.loadTimeout}

	if o.ttl > 0 {
		if maxEntries <= 0 {
			return nil, fmt.Errorf("cache: size must be positive, got %d", maxEntries)
		}

		c.entries = expirable.NewLRU[string, V](maxEntries, nil, o.ttl)

		return c, nil
	}

	entries, err := lru.New[string, V](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	c.entries = entries

	return c, nil
}

// Get returns the value for key, loading it on miss.
func (c *LoaderCache[K, V]) Get(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, error) {
	v, _, err := c.GetWithStats(ctx, key, load)

	return v, err
}

// GetWithStats is like Get and also reports whether the value came from the cache.
// The load runs on a context detached from every caller, bounded by the load timeout, and carries
// the first caller's context values. Each caller's ctx governs only its own wait: a caller whose ctx ends
// returns ctx.Err() while the load continues for the others.
func (c *LoaderCache[K, V]) GetWithStats(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, bool, error) {
	var zero V

	keyStr := c.keyToString(key)
	if v, ok := c.entries.Get(keyStr); ok {
		return v, true, nil
	}

	ch := c.group.DoChan(keyStr, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		loaded, err := load(loadCtx, key)
		if err != nil {
			return zero, err
		}

		c.entries.Add(keyStr, loaded)

		return loaded, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}

		v, _ := res.Val.(V)

		return v, false, nil
	case <-ctx.Done():
		return zero, false, fmt.Errorf("cache load: %w", ctx.Err())
	}
}

// Peek returns a cached value without loading.
func (c *LoaderCache[K, V]) Peek(key K) (V, bool) {
	return c.entries.Get(c.keyToString(key))
}

// Invalidate removes the entry for key.
func (c *LoaderCache[K, V]) Invalidate(key K) {
	c.entries.Remove(c.keyToString(key))
}

// InvalidateAll removes all entries.
func (c *LoaderCache[K, V]) InvalidateAll() {
	c.entries.Purge()
}

// Len returns the number of entries in the cache.
func (c *LoaderCache[K, V]) Len() int {
	return c.entries.Len()
}
