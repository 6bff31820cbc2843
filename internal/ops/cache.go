package ops

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/hpungsan/venvkeep/internal/pip"
	"github.com/hpungsan/venvkeep/internal/requirement"
)

// DefaultCacheTTL is how long an installed-package listing stays fresh.
const DefaultCacheTTL = 30 * time.Second

// Cache holds the installed-package listing of the most recently queried interpreter.
// Asking for a different interpreter drops the previous entry.
// A failed batch query is reported as an empty map and is not cached.
type Cache struct {
	mu     sync.Mutex
	client *pip.Client
	ttl    time.Duration
	now    func() time.Time
	entry  *cacheEntry
}

type cacheEntry struct {
	interpreter string
	capturedAt  time.Time
	packages    map[string]string // normalized name -> version
}

// NewCache creates a cache over client. ttl <= 0 means DefaultCacheTTL.
func NewCache(client *pip.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl, now: time.Now}
}

// InstalledMap returns normalized name -> version for interpreter.
// The returned map is a copy; callers may modify it.
func (c *Cache) InstalledMap(ctx context.Context, interpreter string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.entry; e != nil {
		if e.interpreter == interpreter && c.now().Sub(e.capturedAt) < c.ttl {
			return maps.Clone(e.packages)
		}
		if e.interpreter != interpreter {
			c.entry = nil
		}
	}

	listed, err := c.client.List(ctx, interpreter)
	if err != nil {
		c.entry = nil
		return map[string]string{}
	}
	packages := requirement.NormalizeKeys(listed)
	c.entry = &cacheEntry{interpreter: interpreter, capturedAt: c.now(), packages: packages}
	return maps.Clone(packages)
}

// Installed returns the set of normalized installed names for interpreter.
func (c *Cache) Installed(ctx context.Context, interpreter string) map[string]struct{} {
	m := c.InstalledMap(ctx, interpreter)
	set := make(map[string]struct{}, len(m))
	for name := range m {
		set[name] = struct{}{}
	}
	return set
}

// Invalidate drops the cached entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
}

// Interpreter reports which interpreter the current entry belongs to, if any.
func (c *Cache) Interpreter() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return ""
	}
	return c.entry.interpreter
}
