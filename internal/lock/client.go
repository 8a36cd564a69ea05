package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses url and pings the server with a short timeout.
// It returns an error instead of a client when Redis cannot be reached.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// New picks the Redis locker when url is reachable and falls back to an in-process one.
// The returned client is nil in the fallback case.
func New(ctx context.Context, url string) (Locker, *redis.Client) {
	if url == "" {
		slog.Info("redis not configured, using in-process locks")
		return NewLocalLocker(), nil
	}

	client, err := NewRedisClient(ctx, url)
	if err != nil {
		slog.Warn("redis unavailable, using in-process locks", "error", err)
		return NewLocalLocker(), nil
	}

	slog.Info("redis connected", "addr", client.Options().Addr)
	return NewRedisLocker(client, "soulsongs:lock:"), client
}
