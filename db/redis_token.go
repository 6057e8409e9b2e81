package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTokenKey is the key the token pair is stored under.
const DefaultRedisTokenKey = "tenantctl:session:token"

// redisTokenRepo stores the token pair as one JSON value so several console
// processes on a host can share a session.
type redisTokenRepo struct {
	rdb redis.UniversalClient
	key string
}

// NewRedisTokenRepository creates a Redis-backed TokenRepository. An empty key uses DefaultRedisTokenKey.
func NewRedisTokenRepository(rdb redis.UniversalClient, key string) TokenRepository {
	if key == "" {
		key = DefaultRedisTokenKey
	}
	return &redisTokenRepo{rdb: rdb, key: key}
}

// OpenRedis parses a redis:// URL and returns a connected client.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return rdb, nil
}

func (r *redisTokenRepo) Get(ctx context.Context) (*Token, error) {
	if r.rdb == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	raw, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var token Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("failed to decode stored token: %w", err)
	}
	return &token, nil
}

func (r *redisTokenRepo) Upsert(ctx context.Context, token *Token) error {
	if r.rdb == nil {
		return fmt.Errorf("repository not initialized")
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key, raw, 0).Err()
}

func (r *redisTokenRepo) Delete(ctx context.Context) error {
	if r.rdb == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.rdb.Del(ctx, r.key).Err()
}
