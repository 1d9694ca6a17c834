package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "termarb:cooldown:"

// Redis shares cooldown windows between scanner instances using SET NX
// with an expiry.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to url (redis://[:password@]host:port/db) and verifies
// the connection. A non-empty password overrides the one in url.
func NewRedis(ctx context.Context, url, password string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cooldown: invalid redis url: %w", err)
	}
	if password != "" {
		opt.Password = password
	}

	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cooldown: redis ping: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func (r *Redis) Acquire(ctx context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	ok, err := r.rdb.SetNX(ctx, keyPrefix+key, time.Now().Unix(), window).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown: setnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
