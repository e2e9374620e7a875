package asr

import "sync"

type cacheEntry struct {
	once   sync.Once
	engine Engine
	err    error
}

// Cache is the process-wide engine-instance cache, keyed by ResourceConfig.
// Entries are never evicted: a loaded model stays resident for the life of
// the process. Concurrent requests for the same key construct exactly once;
// construction of different keys does not serialize.
type Cache struct {
	loader  Loader
	mu      sync.Mutex
	entries map[ResourceConfig]*cacheEntry
}

// NewCache creates an empty cache backed by loader.
func NewCache(loader Loader) *Cache {
	return &Cache{
		loader:  loader,
		entries: make(map[ResourceConfig]*cacheEntry),
	}
}

// Get returns the engine for cfg, constructing and storing it on first use.
// A failed construction is not cached: the same config may succeed later
// once memory pressure clears.
func (c *Cache) Get(cfg ResourceConfig) (Engine, error) {
	c.mu.Lock()
	entry, ok := c.entries[cfg]
	if !ok {
		entry = &cacheEntry{}
		c.entries[cfg] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.engine, entry.err = c.loader.Load(cfg)
	})

	if entry.err != nil {
		c.mu.Lock()
		if c.entries[cfg] == entry {
			delete(c.entries, cfg)
		}
		c.mu.Unlock()
		return nil, entry.err
	}

	return entry.engine, nil
}

// Len reports the number of resident engine instances.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
