// Package cache keeps prosody features of reference recordings in memory so
// each reference is decoded and analysed once.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/okian/readaloud/internal/domain/prosody"
	"github.com/okian/readaloud/pkg/metrics"
)

const (
	defaultSize        = 64
	defaultLoadTimeout = 30 * time.Second
)

// ErrNilLoader is returned by New without a loader.
var ErrNilLoader = errors.New("cache: loader is required")

// Loader produces the features for a key on a miss.
type Loader func(ctx context.Context, key string) (prosody.Features, error)

// Option configures a ReferenceCache.
type Option func(*ReferenceCache)

// WithSize bounds the number of cached references.
func WithSize(n int) Option {
	return func(c *ReferenceCache) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithLoadTimeout bounds one shared load. The load does not follow any
// single caller's cancellation.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *ReferenceCache) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// ReferenceCache is a bounded LRU of reference features with per-key load
// coalescing. It is safe for concurrent use.
type ReferenceCache struct {
	size        int
	loadTimeout time.Duration
	items       *lru.Cache[string, prosody.Features]
	load        Loader
	flight      singleflight.Group
}

// New creates a ReferenceCache backed by loader.
func New(loader Loader, opts ...Option) (*ReferenceCache, error) {
	if loader == nil {
		return nil, ErrNilLoader
	}
	c := &ReferenceCache{size: defaultSize, loadTimeout: defaultLoadTimeout, load: loader}
	for _, opt := range opts {
		opt(c)
	}
	items, err := lru.New[string, prosody.Features](c.size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	c.items = items
	return c, nil
}

// Get returns cached features for key, loading them on a miss. Concurrent
// misses for one key share a single load, which keeps running when the
// caller that started it goes away. Failed loads are not cached.
func (c *ReferenceCache) Get(ctx context.Context, key string) (prosody.Features, error) {
	if f, ok := c.items.Get(key); ok {
		metrics.RecordReferenceCacheHit()
		return f, nil
	}
	metrics.RecordReferenceCacheMiss()

	loadCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		if f, ok := c.items.Get(key); ok {
			return f, nil
		}
		bounded, cancel := context.WithTimeout(loadCtx, c.loadTimeout)
		defer cancel()
		f, err := c.load(bounded, key)
		if err != nil {
			return nil, err
		}
		c.items.Add(key, f)
		metrics.UpdateReferenceCacheSize(c.items.Len())
		return f, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(prosody.Features), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of cached references.
func (c *ReferenceCache) Len() int { return c.items.Len() }

// Purge drops every cached reference.
func (c *ReferenceCache) Purge() {
	c.items.Purge()
	metrics.UpdateReferenceCacheSize(0)
}
