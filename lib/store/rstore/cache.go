package rstore

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Cache (in-memory mirror + pending-fetch de-duplication)
// --------------------------------------------------------------------------

// cache mirrors recently read or written values in memory. Values are
// stored in canonical (serializer round-tripped) form, so comparing a
// cached value with a freshly decoded backend value is meaningful.
//
// Concurrent read-through fetches for the same key are de-duplicated:
// only one backend round-trip is issued, all callers share its result.
type cache struct {
	data     *xsync.MapOf[string, interface{}]
	inflight *xsync.MapOf[string, *fetch]
}

// fetch is one in-flight read-through operation
type fetch struct {
	done   chan struct{}
	value  interface{}
	loaded bool
	err    error
}

func newCache() *cache {
	return &cache{
		data:     xsync.NewMapOf[string, interface{}](),
		inflight: xsync.NewMapOf[string, *fetch](),
	}
}

// get returns the cached value for a key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cache) get(key string) (interface{}, bool) {
	return c.data.Load(key)
}

// put stores a value in the cache
func (c *cache) put(key string, value interface{}) {
	c.data.Store(key, value)
}

// drop removes a key from the cache
func (c *cache) drop(key string) {
	c.data.Delete(key)
}

// clear removes all cached values
func (c *cache) clear() {
	c.data.Clear()
}

// keys returns all currently cached keys
func (c *cache) keys() []string {
	var out []string
	c.data.Range(func(key string, _ interface{}) bool {
		out = append(out, key)
		return true
	})
	return out
}

// readThrough returns the cached value for key, or loads it with the
// provided loader. Concurrent calls for the same key share one loader
// invocation. A successful load populates the cache.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cache) readThrough(
	ctx context.Context,
	key string,
	loader func(ctx context.Context, key string) (interface{}, bool, error),
) (interface{}, bool, error) {

	if value, ok := c.data.Load(key); ok {
		return value, true, nil
	}

	var mine *fetch
	f, _ := c.inflight.LoadOrCompute(key, func() *fetch {
		mine = &fetch{done: make(chan struct{})}
		return mine
	})

	// Another caller is already fetching: wait for its result
	if f != mine {
		select {
		case <-f.done:
			return f.value, f.loaded, f.err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	// We own the fetch
	f.value, f.loaded, f.err = loader(ctx, key)
	if f.err == nil && f.loaded {
		// A write that raced the fetch wins: it is strictly newer
		c.data.LoadOrStore(key, f.value)
		if current, ok := c.data.Load(key); ok {
			f.value = current
		}
	}
	c.inflight.Delete(key)
	close(f.done)

	return f.value, f.loaded, f.err
}
