package utils

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"aistudioproxy/internal/config"
	"aistudioproxy/internal/logging"
	"aistudioproxy/pkg/models"
)

// RedisClient wraps the Redis client with request record archiving
type RedisClient struct {
	client *redis.Client
	config *config.Config
	logger logging.Logger
}

// NewRedisClient creates a new Redis client instance
func NewRedisClient(cfg *config.Config) *RedisClient {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		// Fallback to default configuration
		opts = &redis.Options{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		}
	}

	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	opts.DB = cfg.Redis.DB
	opts.DialTimeout = cfg.Redis.Timeout
	opts.ReadTimeout = cfg.Redis.Timeout
	opts.WriteTimeout = cfg.Redis.Timeout

	client := redis.NewClient(opts)

	return &RedisClient{
		client: client,
		config: cfg,
		logger: logging.GetGlobalLogger(),
	}
}

// Ping tests the Redis connection
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) recordKey(requestID string) string {
	return fmt.Sprintf("aistudioproxy:request:%s", requestID)
}

// StoreRequestRecord archives a finished request snapshot with the
// configured TTL so short-lived introspection survives table cleanup.
func (r *RedisClient) StoreRequestRecord(ctx context.Context, record *models.RequestRecordSnapshot) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal request record: %w", err)
	}

	key := r.recordKey(record.ID)
	if err := r.client.Set(ctx, key, data, r.config.Redis.TTL).Err(); err != nil {
		return fmt.Errorf("failed to store request record: %w", err)
	}

	r.logger.Debug("Request record archived", map[string]interface{}{
		"request_id": record.ID,
		"status":     record.Status,
		"ttl":        r.config.Redis.TTL.String(),
	})
	return nil
}

// GetRequestRecord fetches an archived request snapshot. Returns nil
// without error when the record has expired or never existed.
func (r *RedisClient) GetRequestRecord(ctx context.Context, requestID string) (*models.RequestRecordSnapshot, error) {
	data, err := r.client.Get(ctx, r.recordKey(requestID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request record: %w", err)
	}

	var record models.RequestRecordSnapshot
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request record: %w", err)
	}
	return &record, nil
}
