package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
)

// RedisStore keeps sessions as JSON values with a sliding TTL.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	Prefix  string
	TTL     time.Duration
	Timeout time.Duration
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, cfg RedisStoreConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "se:session:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: cfg.Prefix, ttl: cfg.TTL, timeout: cfg.Timeout}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, userID string) (*State, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.prefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Persistence("load session", err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, domain.Persistence("decode session", err)
	}
	return &state, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, state *State) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return domain.Persistence("encode session", err)
	}
	if err := s.client.Set(ctx, s.prefix+state.UserID, raw, s.ttl).Err(); err != nil {
		return domain.Persistence(fmt.Sprintf("save session %s", state.UserID), err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, s.prefix+userID).Err(); err != nil {
		return domain.Persistence("delete session", err)
	}
	return nil
}
