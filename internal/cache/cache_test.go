package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	t.Cleanup(func() { client.Close() })
	return client
}

func TestCache_RoundTrip(t *testing.T) {
	c := New(testClient(t))
	ctx := context.Background()

	key := "test:" + t.Name()
	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("expected miss before set")
	}

	c.Set(ctx, key, `{"ok":true}`, time.Minute)
	val, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected hit after set")
	}
	if val != `{"ok":true}` {
		t.Errorf("value = %q", val)
	}

	c.Invalidate(ctx, key)
	if _, ok := c.Get(ctx, key); ok {
		t.Error("expected miss after invalidation")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(testClient(t))
	ctx := context.Background()

	key := "test:" + t.Name()
	c.Set(ctx, key, "short-lived", 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get(ctx, key); ok {
		t.Error("expected entry to expire")
	}
}
