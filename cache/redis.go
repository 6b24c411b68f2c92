package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status values stored against a transaction hash.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	// InProgressExpiry outlives the longest chain wait plus the biller call, so a crashed request
	// eventually frees its hash.
	InProgressExpiry = 15 * time.Minute
	CompletedExpiry  = 30 * 24 * time.Hour
)

// ErrInProgress means another request currently holds the claim on the hash.
var ErrInProgress = errors.New("payment already in progress")

// IdempotencyStore guarantees a transaction hash settles at most one bill.
type IdempotencyStore interface {
	// CheckOrSetInProgress claims txHash. It returns true when the hash is already completed or
	// claimed; the error is ErrInProgress in the latter case.
	CheckOrSetInProgress(ctx context.Context, txHash string) (bool, error)
	SetCompleted(ctx context.Context, txHash string) error
	// CheckCompleted is a read-only lookup; it never claims.
	CheckCompleted(ctx context.Context, txHash string) (bool, error)
	// Release drops an in-progress claim so the payer can retry. Completed hashes are never released.
	Release(ctx context.Context, txHash string) error
}

func key(txHash string) string {
	return "pay:" + strings.ToLower(txHash)
}

// releaseScript deletes the key only while it still holds the in-progress marker.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements IdempotencyStore with SETNX claims shared across replicas.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisStore{client: rdb}, nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) CheckOrSetInProgress(ctx context.Context, txHash string) (bool, error) {
	k := key(txHash)

	set, err := r.client.SetNX(ctx, k, StatusInProgress, InProgressExpiry).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX error: %w", err)
	}
	if set {
		return false, nil
	}

	status, err := r.status(ctx, txHash)
	switch {
	case err != nil:
		return false, err
	case status == StatusCompleted:
		return true, nil
	default:
		// An empty status means the claim expired between the two calls; treat it as held.
		return true, ErrInProgress
	}
}

// status reads the marker of txHash, empty when none is set.
func (r *RedisStore) status(ctx context.Context, txHash string) (string, error) {
	status, err := r.client.Get(ctx, key(txHash)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis GET error: %w", err)
	}
	return status, nil
}

func (r *RedisStore) SetCompleted(ctx context.Context, txHash string) error {
	return r.client.Set(ctx, key(txHash), StatusCompleted, CompletedExpiry).Err()
}

func (r *RedisStore) CheckCompleted(ctx context.Context, txHash string) (bool, error) {
	status, err := r.status(ctx, txHash)
	return status == StatusCompleted, err
}

func (r *RedisStore) Release(ctx context.Context, txHash string) error {
	if err := releaseScript.Run(ctx, r.client, []string{key(txHash)}, StatusInProgress).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release error: %w", err)
	}
	return nil
}
