package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg_loyalty_bot/internal/config"
)

const redisKeyPrefix = "conversation_state:"

// NewRedisClient builds a client from the runtime configuration.
func NewRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// RedisStore keeps states as JSON values that expire after ttl. An expired
// key is the same as an idle user.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get loads the user's state, or nil when none is stored.
func (r *RedisStore) Get(ctx context.Context, userID string) (*State, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("redis client is nil")
	}

	val, err := r.client.Get(ctx, redisKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state from redis: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if state.Step == StepIdle {
		return nil, nil
	}

	return &state, nil
}

// Set stores the state and refreshes its ttl. An idle step clears the user.
func (r *RedisStore) Set(ctx context.Context, state *State) error {
	if r == nil || r.client == nil {
		return errors.New("redis client is nil")
	}
	if state == nil || state.UserID == "" {
		return errors.New("state user id is required")
	}
	if state.Step == StepIdle {
		return r.Clear(ctx, state.UserID)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := r.client.Set(ctx, redisKey(state.UserID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set state in redis: %w", err)
	}

	return nil
}

// Clear deletes the user's state.
func (r *RedisStore) Clear(ctx context.Context, userID string) error {
	if r == nil || r.client == nil {
		return errors.New("redis client is nil")
	}

	if err := r.client.Del(ctx, redisKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete state from redis: %w", err)
	}
	return nil
}

// Ping checks the connection to Redis.
func (r *RedisStore) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return errors.New("redis client is nil")
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func redisKey(userID string) string {
	return redisKeyPrefix + userID
}
