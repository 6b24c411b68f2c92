package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"billpay-gateway/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	next  []func() (*providers.Catalog, error)
}

func (s *stubFetcher) FetchCatalog(ctx context.Context, category providers.Category) (*providers.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.next) == 0 {
		return nil, errors.New("no scripted response")
	}
	fn := s.next[0]
	s.next = s.next[1:]
	return fn()
}

func (s *stubFetcher) then(cat *providers.Catalog, err error) *stubFetcher {
	s.next = append(s.next, func() (*providers.Catalog, error) { return cat, err })
	return s
}

func (s *stubFetcher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func upstreamCable() *providers.Catalog {
	return &providers.Catalog{
		Providers: []providers.Provider{{ID: "gotv", Name: "GOtv", Code: "gotv"}},
		Plans: map[string][]providers.Plan{
			"gotv": {{ID: "gotv-max", Name: "GOtv Max", Code: "gotv-max", Amount: 8500, Provider: "gotv"}},
		},
	}
}

func newTestCache(t *testing.T, f Fetcher) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	return New(f, time.Minute, zaptest.NewLogger(t), WithClock(clock.now)), clock
}

func TestGetServesFallbackWhenNothingCached(t *testing.T) {
	f := (&stubFetcher{}).then(nil, errors.New("dial tcp: connection refused"))
	c, _ := newTestCache(t, f)

	res := c.Get(context.Background(), providers.CategoryCable)

	assert.Equal(t, SourceFallback, res.Source)
	assert.False(t, res.FromAPI())
	assert.False(t, res.Updated)
	assert.Equal(t, Fallback(providers.CategoryCable), res.Snapshot.Catalog)
	assert.True(t, res.Snapshot.FetchedAt.IsZero())
}

func TestGetServesFreshUpstream(t *testing.T) {
	f := (&stubFetcher{}).then(upstreamCable(), nil)
	c, clock := newTestCache(t, f)

	res := c.Get(context.Background(), providers.CategoryCable)

	assert.Equal(t, SourceAPI, res.Source)
	assert.True(t, res.Updated)
	assert.True(t, res.FromAPI())
	assert.Equal(t, *upstreamCable(), res.Snapshot.Catalog)
	assert.Equal(t, clock.t, res.Snapshot.FetchedAt)
}

func TestGetWithinIntervalDoesNotRefetch(t *testing.T) {
	f := (&stubFetcher{}).then(upstreamCable(), nil)
	c, clock := newTestCache(t, f)

	first := c.Get(context.Background(), providers.CategoryCable)
	clock.advance(30 * time.Second)
	second := c.Get(context.Background(), providers.CategoryCable)

	assert.Equal(t, 1, f.count())
	assert.True(t, first.Updated)
	assert.False(t, second.Updated)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, first.Snapshot, second.Snapshot)
}

func TestGetKeepsLastKnownGoodOnFailure(t *testing.T) {
	f := (&stubFetcher{}).
		then(upstreamCable(), nil).
		then(nil, &providers.UpstreamError{Provider: "peyflex", StatusCode: 502, Message: "bad gateway"})
	c, clock := newTestCache(t, f)

	first := c.Get(context.Background(), providers.CategoryCable)
	clock.advance(2 * time.Minute)
	second := c.Get(context.Background(), providers.CategoryCable)

	assert.Equal(t, 2, f.count())
	assert.False(t, second.Updated)
	assert.Equal(t, SourceCache, second.Source)
	assert.True(t, second.FromAPI())
	assert.Equal(t, first.Snapshot, second.Snapshot)
}

func TestFailedRefreshIsRetriedOnNextRequest(t *testing.T) {
	f := (&stubFetcher{}).
		then(nil, errors.New("timeout")).
		then(upstreamCable(), nil)
	c, _ := newTestCache(t, f)

	first := c.Get(context.Background(), providers.CategoryCable)
	second := c.Get(context.Background(), providers.CategoryCable)

	assert.Equal(t, SourceFallback, first.Source)
	assert.Equal(t, SourceAPI, second.Source)
	assert.Equal(t, 2, f.count())
}

func TestEmptyUpstreamCatalogCountsAsFailure(t *testing.T) {
	f := (&stubFetcher{}).then(&providers.Catalog{}, nil)
	c, _ := newTestCache(t, f)

	err := c.Refresh(context.Background(), providers.CategoryData)
	assert.ErrorIs(t, err, ErrCatalogRefreshFailed)
	assert.Equal(t, SourceFallback, c.Get(context.Background(), providers.CategoryData).Source)
}

func TestRefreshWrapsUpstreamError(t *testing.T) {
	upstream := &providers.UpstreamError{Provider: "aggregator", StatusCode: 500, Message: "down"}
	f := (&stubFetcher{}).then(nil, upstream)
	c, _ := newTestCache(t, f)

	err := c.Refresh(context.Background(), providers.CategoryData)
	assert.ErrorIs(t, err, ErrCatalogRefreshFailed)
	var rejected *providers.UpstreamError
	assert.ErrorAs(t, err, &rejected)
}

func TestCategoriesAreCachedIndependently(t *testing.T) {
	f := (&stubFetcher{}).then(upstreamCable(), nil).then(nil, errors.New("down"))
	c, _ := newTestCache(t, f)

	assert.Equal(t, SourceAPI, c.Get(context.Background(), providers.CategoryCable).Source)
	assert.Equal(t, SourceFallback, c.Get(context.Background(), providers.CategoryData).Source)
}

func TestFindPlan(t *testing.T) {
	f := (&stubFetcher{}).then(nil, errors.New("down")).then(nil, errors.New("down")).then(nil, errors.New("down"))
	c, _ := newTestCache(t, f)
	ctx := context.Background()

	provider, plan, err := c.FindPlan(ctx, providers.CategoryData, "MTN NG", "PSPLAN_177")
	require.NoError(t, err)
	assert.Equal(t, "mtn", provider.Code)
	assert.Equal(t, 520.0, plan.Amount)

	_, _, err = c.FindPlan(ctx, providers.CategoryData, "mtn", "PSPLAN_0")
	assert.ErrorIs(t, err, ErrUnknownPlan)

	_, _, err = c.FindPlan(ctx, providers.CategoryData, "ntel", "PSPLAN_177")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestFindProvider(t *testing.T) {
	f := (&stubFetcher{}).then(upstreamCable(), nil)
	c, _ := newTestCache(t, f)

	p, err := c.FindProvider(context.Background(), providers.CategoryCable, "GOTV")
	require.NoError(t, err)
	assert.Equal(t, "gotv", p.Code)
}

func TestFallbackIsACopy(t *testing.T) {
	a := Fallback(providers.CategoryData)
	a.Plans["mtn"][0].Amount = 1

	b := Fallback(providers.CategoryData)
	assert.Equal(t, 200.0, b.Plans["mtn"][0].Amount)
	assert.Len(t, b.Providers, 4)

	airtime := Fallback(providers.CategoryAirtime)
	assert.Len(t, airtime.Providers, 4)
	for _, p := range airtime.Providers {
		assert.Empty(t, airtime.PlansFor(p.Code))
	}
}

type blockingFetcher struct {
	calls   int32
	entered chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) FetchCatalog(ctx context.Context, category providers.Category) (*providers.Catalog, error) {
	if atomic.AddInt32(&b.calls, 1) == 1 {
		close(b.entered)
	}
	<-b.release
	return upstreamCable(), nil
}

func TestConcurrentGetsShareOneUpstreamCall(t *testing.T) {
	f := &blockingFetcher{entered: make(chan struct{}), release: make(chan struct{})}
	c, _ := newTestCache(t, f)

	const callers = 32
	results := make([]Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(context.Background(), providers.CategoryCable)
		}(i)
	}

	<-f.entered
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))
	for _, res := range results {
		assert.NotEqual(t, SourceFallback, res.Source)
		assert.Equal(t, "gotv", res.Snapshot.Providers[0].Code)
	}
}

func TestConcurrentReadersDuringRefresh(t *testing.T) {
	f := &stubFetcher{}
	for i := 0; i < 10; i++ {
		f.then(upstreamCable(), nil)
	}
	c := New(f, 0, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				res := c.Get(context.Background(), providers.CategoryCable)
				assert.NotEmpty(t, res.Snapshot.Providers)
				_, _, _ = c.FindPlan(context.Background(), providers.CategoryCable, "gotv", "gotv-max")
			}
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, f.count(), 1)
}
