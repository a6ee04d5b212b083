package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go-erp/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// NewRedisClient connects to Redis for cross-replica request locks. It returns
// nil when REDIS_ADDR is unset.
func NewRedisClient(lc fx.Lifecycle, cfg *config.Config) (redis.UniversalClient, error) {
	if cfg.RedisAddr == "" {
		log.Println("REDIS_ADDR not set, using in-process locks")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	log.Println("Connected to Redis!")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}
