package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// envelope wraps a cached payload with its write metadata so freshness is
// judged by the writer's clock even when the value lives in Redis.
type envelope struct {
	Payload   json.RawMessage `json:"p"`
	WrittenAt time.Time       `json:"w"`
	TTLMillis int64           `json:"t"`
}

// RedisStore keeps snapshots in Redis. Redis-side expiry is the lenient
// retention window; the envelope's TTL governs hit/miss.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(addr string, db int) *RedisStore {
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{
			Addr:         addr,
			DB:           db,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
		prefix: "autotrader:",
	}
}

func (rs *RedisStore) Put(ctx context.Context, key Key, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ttl := key.Kind.TTL()
	env, err := json.Marshal(envelope{
		Payload:   payload,
		WrittenAt: time.Now(),
		TTLMillis: ttl.Milliseconds(),
	})
	if err != nil {
		return err
	}
	return rs.rdb.Set(ctx, rs.prefix+key.String(), env, ttl*retainFactor).Err()
}

func (rs *RedisStore) Get(ctx context.Context, key Key, dest any) (Hit, error) {
	hit, err := rs.read(ctx, key, dest)
	if err != nil {
		return Hit{}, err
	}
	if hit.Stale {
		return Hit{}, ErrMiss
	}
	hit.Stale = false
	return hit, nil
}

func (rs *RedisStore) GetLenient(ctx context.Context, key Key, dest any) (Hit, error) {
	return rs.read(ctx, key, dest)
}

func (rs *RedisStore) read(ctx context.Context, key Key, dest any) (Hit, error) {
	b, err := rs.rdb.Get(ctx, rs.prefix+key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Hit{}, ErrMiss
	}
	if err != nil {
		return Hit{}, err
	}

	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Hit{}, err
	}
	if err := json.Unmarshal(env.Payload, dest); err != nil {
		return Hit{}, err
	}

	age := time.Since(env.WrittenAt)
	return Hit{
		WrittenAt: env.WrittenAt,
		Age:       age,
		Stale:     age > time.Duration(env.TTLMillis)*time.Millisecond,
	}, nil
}

func (rs *RedisStore) Keys(ctx context.Context, namespace string) ([]string, error) {
	pattern := rs.prefix + namespace + ":*"
	var keys []string
	iter := rs.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(rs.prefix):])
	}
	return keys, iter.Err()
}

func (rs *RedisStore) Close() error {
	return rs.rdb.Close()
}
