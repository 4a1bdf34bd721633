package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/firmledger/backend/internal/domain/shared"
	"github.com/firmledger/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const inMemorySweepInterval = 5 * time.Minute

// NewDeliveryStore returns the idempotency store for DMS feed deliveries. With Redis
// configured it must be reachable; without it deliveries are tracked in memory.
func NewDeliveryStore(ctx context.Context, redisCfg config.RedisConfig, keyPrefix string, logger *zap.Logger) (shared.IdempotencyStore, error) {
	addr := redisCfg.Addr()
	if addr == "" {
		logger.Warn("Redis not configured, tracking feed deliveries in memory. " +
			"Redelivered messages are still rejected by the store but reach the database.")
		return NewInMemoryIdempotencyStore(inMemorySweepInterval), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Info("Using Redis delivery store", zap.String("addr", addr))
	return NewRedisIdempotencyStore(client, keyPrefix), nil
}
