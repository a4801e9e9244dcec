package catalog

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/safar/fashion-store/internal/models"
	"golang.org/x/sync/singleflight"
)

// CategoryLoader reads the full category list from the source of truth.
type CategoryLoader func(ctx context.Context) ([]models.Category, error)

// CategoryCache holds the category list for one process. It is safe for
// concurrent use.
type CategoryCache struct {
	load CategoryLoader
	ttl  time.Duration
	now  func() time.Time

	mu       sync.RWMutex
	data     []models.Category
	loadedAt time.Time
	valid    bool
	// gen is bumped by Invalidate; a reload started under an older gen
	// must not store its result.
	gen uint64

	sfg singleflight.Group
}

func NewCategoryCache(load CategoryLoader, ttl time.Duration) *CategoryCache {
	return &CategoryCache{load: load, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source, used by tests.
func (c *CategoryCache) WithClock(now func() time.Time) *CategoryCache {
	c.now = now
	return c
}

// Get returns the cached list while fresh. On expiry concurrent callers share
// one reload; if it fails and a previous copy exists, the stale copy is served.
func (c *CategoryCache) Get(ctx context.Context) ([]models.Category, error) {
	c.mu.RLock()
	data, fresh, valid := c.data, c.valid && c.now().Sub(c.loadedAt) < c.ttl, c.valid
	gen := c.gen
	c.mu.RUnlock()

	if fresh {
		return data, nil
	}

	v, err, _ := c.sfg.Do("categories:"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		loaded, err := c.load(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.gen == gen {
			c.data = loaded
			c.loadedAt = c.now()
			c.valid = true
		}
		c.mu.Unlock()

		return loaded, nil
	})
	if err != nil {
		if valid {
			log.Printf("catalog: category reload failed, serving stale copy: %v", err)
			return data, nil
		}
		return nil, err
	}

	return v.([]models.Category), nil
}

func (c *CategoryCache) Invalidate() {
	c.mu.Lock()
	c.data = nil
	c.valid = false
	c.gen++
	c.mu.Unlock()
}
