package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/cablesync/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects the session and rate-limit store and pings it once.
func NewRedisClient(c config.RedisConfig) (*redis.Client, error) {
	dial := c.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: dial,
	})
	ctx, cancel := context.WithTimeout(context.Background(), dial)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", c.Addr, err)
	}

	return rdb, nil
}
