package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const leasePrefix = "loki:lease:"

// RedisLease uses SET NX PX so only one scheduler sharing the redis fires
// a given tick.
type RedisLease struct {
	client *redis.Client
	owner  string
}

func NewRedisLease(ctx context.Context, url string) (*RedisLease, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	host, _ := os.Hostname()
	return &RedisLease{client: client, owner: host + "/" + uuid.NewString()}, nil
}

func (l *RedisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, leasePrefix+key, l.owner, ttl).Result()
}

func (l *RedisLease) Close() error {
	return l.client.Close()
}
