package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyRecord is what a checkout key currently points at. An empty
// LocalID means the checkout that claimed the key has not finished yet.
type IdempotencyRecord struct {
	LocalID     string `json:"local_id,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// InFlight reports whether the owning checkout is still running.
func (r IdempotencyRecord) InFlight() bool {
	return r.LocalID == ""
}

// IdempotencyStore remembers which local order a client-supplied checkout key produced.
type IdempotencyStore interface {
	// Reserve claims key for a new checkout with the given request
	// fingerprint. When the key is already taken it returns the stored
	// record and false.
	Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (existing IdempotencyRecord, acquired bool, err error)
	Complete(ctx context.Context, key, fingerprint, localID string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// RedisIdempotencyStore implements IdempotencyStore on Redis.
type RedisIdempotencyStore struct {
	client redis.Cmdable
}

func NewRedisIdempotencyStore(client redis.Cmdable) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (r *RedisIdempotencyStore) getIdemKey(key string) string {
	return "idem:checkout:" + key
}

func (r *RedisIdempotencyStore) Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (IdempotencyRecord, bool, error) {
	val, err := json.Marshal(IdempotencyRecord{Fingerprint: fingerprint})
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	ok, err := r.client.SetNX(ctx, r.getIdemKey(key), string(val), ttl).Result()
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	if ok {
		return IdempotencyRecord{}, true, nil
	}

	stored, err := r.client.Get(ctx, r.getIdemKey(key)).Result()
	if err == redis.Nil {
		// expired between SETNX and GET; treat as still in flight
		return IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	var rec IdempotencyRecord
	if err := json.Unmarshal([]byte(stored), &rec); err != nil {
		return IdempotencyRecord{}, false, fmt.Errorf("decode idempotency record %s: %w", key, err)
	}
	return rec, false, nil
}

func (r *RedisIdempotencyStore) Complete(ctx context.Context, key, fingerprint, localID string, ttl time.Duration) error {
	val, err := json.Marshal(IdempotencyRecord{LocalID: localID, Fingerprint: fingerprint})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.getIdemKey(key), string(val), ttl).Err()
}

func (r *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.getIdemKey(key)).Err()
}
