package kv

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Redis stores keys as plain strings, optionally namespaced by prefix.
type Redis struct {
	client *goredis.Client
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis connects using a redis:// URL.
func NewRedis(rawURL, prefix string) (*Redis, error) {
	if rawURL == "" {
		return nil, errors.New("kv: redis backend requires a url")
	}
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("kv: parse redis url: %w", err)
	}
	return &Redis{client: goredis.NewClient(opts), prefix: prefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *Redis) Put(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
