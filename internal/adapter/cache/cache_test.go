package cache

import (
	"context"
	"testing"
	"time"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func TestLocalCache(t *testing.T) {
	c := NewLocalCache(time.Minute, newTestLogger())
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Errorf("expected v, got %q (%v)", got, err)
	}

	if _, err := c.Get(ctx, "missing"); err == nil {
		t.Error("expected error for a missing key")
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "k"); err == nil {
		t.Error("deleted key still readable")
	}
}

func TestLocalCache_TTL(t *testing.T) {
	c := NewLocalCache(time.Minute, newTestLogger())
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "short", "v", 30*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, err := c.Get(ctx, "short"); err != nil {
		t.Fatalf("entry expired too early: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if _, err := c.Get(ctx, "short"); err == nil {
		t.Error("expired entry still readable")
	}
}

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("could not start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	c, err := NewRedisCache(url, newTestLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	if err := c.Set(ctx, "revoked_token:abc", "revoked", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := c.Get(ctx, "revoked_token:abc")
	if err != nil || got != "revoked" {
		t.Errorf("expected revoked, got %q (%v)", got, err)
	}

	if err := c.Delete(ctx, "revoked_token:abc"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "revoked_token:abc"); err == nil {
		t.Error("deleted key still readable")
	}
}
