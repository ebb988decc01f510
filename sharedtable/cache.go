package sharedtable

import (
	"context"
	"sync"
)

type cacheKey struct {
	tenant string
	table  string
}

type cacheEntry struct {
	done    chan struct{}
	mapping *TableMapping
	err     error
}

// mappingCache memoizes table mappings per (tenant, virtual table) with
// single-flight construction: concurrent readers of the same key wait on one
// in-flight build. Failed or cancelled builds are evicted before their result
// is published, so the next caller retries instead of seeing a poisoned
// entry.
type mappingCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

func newMappingCache() *mappingCache {
	return &mappingCache{entries: make(map[cacheKey]*cacheEntry)}
}

func (c *mappingCache) getOrCompute(ctx context.Context, key cacheKey, build func(context.Context) (*TableMapping, error)) (*TableMapping, error) {
	for {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok {
			c.mu.Unlock()
			select {
			case <-e.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if e.err == nil {
				return e.mapping, nil
			}
			// The build failed and its entry was evicted; take over.
			continue
		}

		e := &cacheEntry{done: make(chan struct{})}
		c.entries[key] = e
		c.mu.Unlock()

		mapping, err := build(ctx)
		c.mu.Lock()
		if err != nil {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		e.mapping, e.err = mapping, err
		close(e.done)
		return mapping, err
	}
}

func (c *mappingCache) drop(key cacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// mappings returns a snapshot of all completed mappings across tenants.
func (c *mappingCache) mappings() []*TableMapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*TableMapping, 0, len(c.entries))
	for _, e := range c.entries {
		select {
		case <-e.done:
			if e.err == nil {
				out = append(out, e.mapping)
			}
		default:
		}
	}
	return out
}
