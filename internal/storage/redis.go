package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisOptions configures the Redis backend
type RedisOptions struct {
	Addr          string
	Username      string
	Password      string
	DB            int
	Key           string
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	PingTimeout   time.Duration
	RetryInterval time.Duration
	ConnectTries  int
}

// RedisBackend stores the snapshot under a single Redis key
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend wraps an existing client
func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	return &RedisBackend{client: client, key: key}
}

// ConnectRedis dials Redis and pings it until it answers or the attempts
// run out. The wait between attempts doubles each time.
func ConnectRedis(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	tries := opts.ConnectTries
	if tries <= 0 {
		tries = 1
	}
	wait := opts.RetryInterval
	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= tries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			logrus.Infof("Connected to redis at %s (attempt %d)", opts.Addr, attempt)
			return NewRedisBackend(client, opts.Key), nil
		}

		logrus.Warnf("Redis ping failed (attempt %d/%d): %v", attempt, tries, lastErr)
		if attempt == tries {
			break
		}
		select {
		case <-ctx.Done():
			client.Close()
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}

	client.Close()
	return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, lastErr)
}

// Read implements Backend
func (r *RedisBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to get %s: %v", ErrUnavailable, r.key, err)
	}
	return data, nil
}

// Write implements Backend
func (r *RedisBackend) Write(ctx context.Context, data []byte) error {
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: failed to set %s: %v", ErrUnavailable, r.key, err)
	}
	return nil
}

// Location implements Backend
func (r *RedisBackend) Location() string {
	return "redis:" + r.client.Options().Addr + "/" + r.key
}

// Close releases the client
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
