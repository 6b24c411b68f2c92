package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hash = "0xAbCd000000000000000000000000000000000000000000000000000000000001"

type storeFactory func(t *testing.T) (IdempotencyStore, func(time.Duration))

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"redis": func(t *testing.T) (IdempotencyStore, func(time.Duration)) {
			mr := miniredis.RunT(t)
			store, err := NewRedisStore(context.Background(), mr.Addr(), "", 0)
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store, mr.FastForward
		},
		"memory": func(t *testing.T) (IdempotencyStore, func(time.Duration)) {
			store := NewMemoryStore()
			now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
			store.now = func() time.Time { return now }
			return store, func(d time.Duration) { now = now.Add(d) }
		},
	}
}

func TestIdempotencyStores(t *testing.T) {
	ctx := context.Background()

	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			t.Run("first claim wins", func(t *testing.T) {
				s, _ := newStore(t)

				dup, err := s.CheckOrSetInProgress(ctx, hash)
				require.NoError(t, err)
				assert.False(t, dup)

				dup, err = s.CheckOrSetInProgress(ctx, hash)
				assert.True(t, dup)
				assert.ErrorIs(t, err, ErrInProgress)
			})

			t.Run("hash case does not matter", func(t *testing.T) {
				s, _ := newStore(t)

				_, err := s.CheckOrSetInProgress(ctx, hash)
				require.NoError(t, err)
				dup, _ := s.CheckOrSetInProgress(ctx, "0xabcd000000000000000000000000000000000000000000000000000000000001")
				assert.True(t, dup)
			})

			t.Run("completed is a duplicate without error", func(t *testing.T) {
				s, _ := newStore(t)

				_, err := s.CheckOrSetInProgress(ctx, hash)
				require.NoError(t, err)
				require.NoError(t, s.SetCompleted(ctx, hash))

				done, err := s.CheckCompleted(ctx, hash)
				require.NoError(t, err)
				assert.True(t, done)

				dup, err := s.CheckOrSetInProgress(ctx, hash)
				require.NoError(t, err)
				assert.True(t, dup)
			})

			t.Run("release frees an in-progress claim", func(t *testing.T) {
				s, _ := newStore(t)

				_, err := s.CheckOrSetInProgress(ctx, hash)
				require.NoError(t, err)
				require.NoError(t, s.Release(ctx, hash))

				dup, err := s.CheckOrSetInProgress(ctx, hash)
				require.NoError(t, err)
				assert.False(t, dup)
			})

			t.Run("release never drops a completed hash", func(t *testing.T) {
				s, _ := newStore(t)

				require.NoError(t, s.SetCompleted(ctx, hash))
				require.NoError(t, s.Release(ctx, hash))

				done, err := s.CheckCompleted(ctx, hash)
				require.NoError(t, err)
				assert.True(t, done)
			})

			t.Run("stale claim expires", func(t *testing.T) {
				s, advance := newStore(t)

				_, err := s.CheckOrSetInProgress(ctx, hash)
				require.NoError(t, err)
				advance(InProgressExpiry + time.Second)

				dup, err := s.CheckOrSetInProgress(ctx, hash)
				require.NoError(t, err)
				assert.False(t, dup)
			})

			t.Run("unknown hash is not completed", func(t *testing.T) {
				s, _ := newStore(t)

				done, err := s.CheckCompleted(ctx, hash)
				require.NoError(t, err)
				assert.False(t, done)
			})
		})
	}
}

func TestConcurrentClaimsAdmitOne(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			s, _ := newStore(t)

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					dup, err := s.CheckOrSetInProgress(context.Background(), hash)
					if err == nil && !dup {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, wins)
		})
	}
}

func TestNewRedisStoreFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), addr, "", 0)
	assert.Error(t, err)
}

func TestRedisStoreKeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	_, err := s.CheckOrSetInProgress(context.Background(), hash)
	require.NoError(t, err)

	v, err := mr.Get("pay:0xabcd000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, v)
	assert.Equal(t, InProgressExpiry, mr.TTL("pay:0xabcd000000000000000000000000000000000000000000000000000000000001"))
}
