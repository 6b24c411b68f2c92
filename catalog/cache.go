package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"billpay-gateway/providers"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrCatalogRefreshFailed wraps every upstream failure absorbed by the cache.
	ErrCatalogRefreshFailed = errors.New("catalog refresh failed")
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrUnknownPlan          = errors.New("unknown plan")
)

// Source tells which tier a served snapshot came from.
type Source string

const (
	SourceAPI      Source = "api"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// Fetcher loads a category listing from upstream. providers.BillingProvider satisfies it.
type Fetcher interface {
	FetchCatalog(ctx context.Context, category providers.Category) (*providers.Catalog, error)
}

// Snapshot is one category's catalog as held in memory.
type Snapshot struct {
	providers.Catalog
	FetchedAt time.Time // zero for the bundled fallback
}

// Result is what Get serves: always a renderable snapshot plus its provenance.
type Result struct {
	Snapshot Snapshot
	Source   Source
	Updated  bool
}

// FromAPI reports whether the snapshot originated upstream (fresh or last-known-good).
func (r Result) FromAPI() bool {
	return r.Source != SourceFallback
}

type entry struct {
	snapshot  Snapshot
	lastFetch time.Time
}

// Cache keeps one snapshot per category for the life of the process. It is constructed once and
// shared by all request handlers.
type Cache struct {
	fetcher  Fetcher
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[providers.Category]*entry
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(fetcher Fetcher, interval time.Duration, logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		fetcher:  fetcher,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[providers.Category]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get serves the category catalog. When the entry is older than the refresh interval it makes one
// upstream attempt; failures are logged and never returned. Served tiers in order: fresh upstream,
// last-known-good, bundled fallback.
func (c *Cache) Get(ctx context.Context, category providers.Category) Result {
	updated := false
	if c.stale(category) {
		refreshed, err := c.refresh(ctx, category, false)
		if err != nil {
			c.logger.Warn("serving catalog without refresh",
				zap.String("category", string(category)),
				zap.Error(err))
		}
		updated = refreshed
	}

	c.mu.RLock()
	e, ok := c.entries[category]
	c.mu.RUnlock()

	if !ok {
		return Result{Snapshot: Snapshot{Catalog: Fallback(category)}, Source: SourceFallback}
	}
	src := SourceCache
	if updated {
		src = SourceAPI
	}
	return Result{Snapshot: e.snapshot, Source: src, Updated: updated}
}

func (c *Cache) stale(category providers.Category) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[category]
	return !ok || c.now().Sub(e.lastFetch) > c.interval
}

// Refresh fetches the category from upstream and replaces the snapshot wholesale on success.
// Concurrent refreshes of one category share a single upstream call. The previous snapshot and
// its timestamp are untouched on failure, so the next request tries again.
func (c *Cache) Refresh(ctx context.Context, category providers.Category) error {
	_, err := c.refresh(ctx, category, true)
	return err
}

// refresh reports whether this call (or the flight it joined) replaced the snapshot. Unless forced,
// staleness is checked again inside the flight: a caller that saw a stale entry just as another
// flight finished must not fetch a second time.
func (c *Cache) refresh(ctx context.Context, category providers.Category, force bool) (bool, error) {
	v, err, _ := c.group.Do(string(category), func() (interface{}, error) {
		if !force && !c.stale(category) {
			return false, nil
		}
		fetched, err := c.fetcher.FetchCatalog(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCatalogRefreshFailed, category, err)
		}
		if fetched == nil || len(fetched.Providers) == 0 {
			return nil, fmt.Errorf("%w: %s: empty catalog", ErrCatalogRefreshFailed, category)
		}
		if fetched.Plans == nil {
			fetched.Plans = map[string][]providers.Plan{}
		}

		now := c.now()
		c.mu.Lock()
		c.entries[category] = &entry{
			snapshot:  Snapshot{Catalog: *fetched, FetchedAt: now},
			lastFetch: now,
		}
		c.mu.Unlock()

		c.logger.Info("catalog refreshed",
			zap.String("category", string(category)),
			zap.Int("providers", len(fetched.Providers)))
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// FindProvider resolves a provider by code or display name in the currently served snapshot.
func (c *Cache) FindProvider(ctx context.Context, category providers.Category, key string) (providers.Provider, error) {
	res := c.Get(ctx, category)
	p, ok := res.Snapshot.Provider(key)
	if !ok {
		return providers.Provider{}, fmt.Errorf("%w: %q", ErrUnknownProvider, key)
	}
	return p, nil
}

// FindPlan resolves a plan for server-side pricing.
func (c *Cache) FindPlan(ctx context.Context, category providers.Category, providerKey, planID string) (providers.Provider, providers.Plan, error) {
	res := c.Get(ctx, category)
	p, plan, ok := res.Snapshot.Plan(providerKey, planID)
	if !ok {
		if p.Code == "" {
			return providers.Provider{}, providers.Plan{}, fmt.Errorf("%w: %q", ErrUnknownProvider, providerKey)
		}
		return p, providers.Plan{}, fmt.Errorf("%w: %q for %s", ErrUnknownPlan, planID, p.Code)
	}
	return p, plan, nil
}
