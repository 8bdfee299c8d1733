package funnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "funnel:session:"

// saveAttempts bounds the optimistic retry loop when a concurrent writer
// touches the key mid-transaction.
const saveAttempts = 3

// RedisStore keeps sessions in Redis with a TTL. Used when the funnel runs
// behind more than one instance; semantics are identical to MemoryStore.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Create stores a new session.
func (r *RedisStore) Create(ctx context.Context, session *Session) error {
	return r.set(ctx, session)
}

// Get returns the stored session.
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("funnel: redis get: %w", err)
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("funnel: decode session: %w", err)
	}
	return &session, nil
}

// Save overwrites the stored session and refreshes its TTL. The existence
// check, the generation guard and the write run inside one WATCH transaction
// so no writer on another instance can slip in between them.
func (r *RedisStore) Save(ctx context.Context, session *Session) error {
	key := redisKeyPrefix + session.ID
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("funnel: encode session: %w", err)
	}

	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("funnel: redis get: %w", err)
		}
		var stored Session
		if err := json.Unmarshal(current, &stored); err != nil {
			return fmt.Errorf("funnel: decode session: %w", err)
		}
		if stored.Generation > session.Generation {
			return ErrStaleSession
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, r.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < saveAttempts; attempt++ {
		err := r.client.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("funnel: redis save: %w", redis.TxFailedErr)
}

// Delete removes a session.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("funnel: redis del: %w", err)
	}
	return nil
}

func (r *RedisStore) set(ctx context.Context, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("funnel: encode session: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+session.ID, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("funnel: redis set: %w", err)
	}
	return nil
}
