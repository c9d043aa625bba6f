package schema

import (
	"context"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

const cacheKey = "schema"

// Cached memoizes a successful description for the lifetime of the process.
// Failures are not cached, so the next caller retries the underlying source.
type Cached struct {
	next  Introspector
	cache *ttlcache.Cache[string, string]
	group singleflight.Group
}

func NewCached(next Introspector) *Cached {
	return &Cached{
		next:  next,
		cache: ttlcache.New[string, string](ttlcache.WithDisableTouchOnHit[string, string]()),
	}
}

func (c *Cached) Describe(ctx context.Context) (string, error) {
	if item := c.cache.Get(cacheKey); item != nil {
		return item.Value(), nil
	}

	// The shared fetch outlives any single caller; each caller only stops
	// waiting when its own ctx ends.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(cacheKey, func() (any, error) {
		desc, err := c.next.Describe(fetchCtx)
		if err != nil {
			return "", err
		}
		c.cache.Set(cacheKey, desc, ttlcache.NoTTL)
		return desc, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached description.
func (c *Cached) Invalidate() {
	c.cache.Delete(cacheKey)
}
