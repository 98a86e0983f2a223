package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key does not exist or has expired.
var ErrMiss = errors.New("cache: key not found")

// Options configures the connection to the Redis/Dragonfly cache server.
type Options struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Cache is a thin key/value wrapper around a Redis client.
type Cache struct {
	client *redis.Client
}

// New creates a cache client. It does not connect; use Ping to check.
func New(opts Options) *Cache {
	return NewFromClient(redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	}))
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Client returns the underlying Redis client instance
func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Set stores a value in the cache with the given key and expiration time
func (c *Cache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// SetXX replaces the value of an existing key. It reports false and stores
// nothing when the key is absent.
func (c *Cache) SetXX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.client.SetXX(ctx, key, value, expiration).Result()
}

// Get retrieves a value from the cache by key
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// GetDel retrieves and removes a value in one round trip, so two readers
// never both observe it.
func (c *Cache) GetDel(ctx context.Context, key string) (string, error) {
	val, err := c.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes a value from the cache by key
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
