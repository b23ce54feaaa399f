package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/linkpulse/collector/internal/errors"
)

const (
	keyPrefix       = "collector:config:"
	progressChannel = "collector:progress"

	connectTimeout = 5 * time.Second
)

// RedisStore persists configuration keys in Redis and doubles as the
// progress-event publisher.
type RedisStore struct {
	client *redis.Client
}

// NewRedis creates a store backed by the Redis instance at redisURL.
func NewRedis(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Client returns the underlying Redis client for health checks and pub/sub.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, key Key) (string, bool, error) {
	val, err := s.client.Get(ctx, keyPrefix+string(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, apperrors.Storage("failed to read config key").
			WithDetails(map[string]any{"key": string(key)}).WithCause(err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key Key, value string) error {
	if err := s.client.Set(ctx, keyPrefix+string(key), value, 0).Err(); err != nil {
		return apperrors.Storage("failed to write config key").
			WithDetails(map[string]any{"key": string(key)}).WithCause(err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = keyPrefix + string(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return apperrors.Storage("failed to delete config keys").WithCause(err)
	}
	return nil
}

// PublishProgress publishes a run progress event via Redis pub/sub.
// Delivery is best-effort; failures are swallowed because progress is a
// display concern and must never affect the run outcome.
func (s *RedisStore) PublishProgress(ev *ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	_ = s.client.Publish(ctx, progressChannel, data).Err()
}

// SubscribeProgress subscribes to run progress events.
func (s *RedisStore) SubscribeProgress(ctx context.Context) *ProgressSubscription {
	pubsub := s.client.Subscribe(ctx, progressChannel)
	return &ProgressSubscription{
		pubsub: pubsub,
		ch:     pubsub.Channel(),
	}
}

// ProgressSubscription wraps a Redis pub/sub subscription for progress events.
type ProgressSubscription struct {
	pubsub *redis.PubSub
	ch     <-chan *redis.Message
}

// Channel returns a channel that receives run progress events.
func (s *ProgressSubscription) Channel() <-chan *ProgressEvent {
	evCh := make(chan *ProgressEvent)

	go func() {
		defer close(evCh)
		for msg := range s.ch {
			var ev ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			evCh <- &ev
		}
	}()

	return evCh
}

// Close closes the subscription.
func (s *ProgressSubscription) Close() error {
	return s.pubsub.Close()
}
