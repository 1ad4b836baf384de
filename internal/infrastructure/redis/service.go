package redis

import (
	"context"
	"strings"
	"time"

	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type Service struct {
	client *redis.Client
}

// NewService connects to Redis at addr, which is either host:port or a
// redis:// URL. It returns nil when addr is empty or the server does not
// answer a ping, so callers can fall back to memory.
func NewService(addr, password string) *Service {
	l := logger.For(logger.REDIS)

	if addr == "" {
		l.Warn().Msg("Redis URL not configured - service will be unavailable")
		return nil
	}

	opts, err := clientOptions(addr, password)
	if err != nil {
		l.Error().Err(err).Msg("Invalid Redis URL")
		return nil
	}
	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		l.Error().
			Err(err).
			Str("addr", addr).
			Msg("Failed to establish Redis connection")
		client.Close()
		return nil
	}

	l.Info().Str("addr", addr).Msg("Connected to Redis")
	return &Service{
		client: client,
	}
}

func clientOptions(addr, password string) (*redis.Options, error) {
	if !strings.Contains(addr, "://") {
		return &redis.Options{Addr: addr, Password: password}, nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	return opts, nil
}

// NewServiceWithClient wraps an existing client.
func NewServiceWithClient(client *redis.Client) *Service {
	return &Service{client: client}
}

// Append pushes value onto the list at key and refreshes its expiry.
func (s *Service) Append(ctx context.Context, key, value string, expiration time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, value)
	if expiration > 0 {
		pipe.Expire(ctx, key, expiration)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		l := logger.For(logger.REDIS)
		l.Error().
			Err(err).
			Str("key", key).
			Dur("expiration", expiration).
			Msg("Critical Redis RPUSH operation failed")
		return err
	}
	return nil
}

// Range returns every element of the list at key, oldest first.
func (s *Service) Range(ctx context.Context, key string) ([]string, error) {
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil && err != redis.Nil {
		l := logger.For(logger.REDIS)
		l.Error().
			Err(err).
			Str("key", key).
			Msg("Critical Redis LRANGE operation failed")
		return nil, err
	}
	return vals, nil
}

// Delete removes a key from Redis
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Ping checks if Redis is accessible
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Service) Close() error {
	return s.client.Close()
}
