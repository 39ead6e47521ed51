// Package redis is a tokenstore.Medium shared through a redis server, so
// several processes can see the same session.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/tabsession/pkg/tokenstore"
	goredis "github.com/redis/go-redis/v9"
)

const DefaultPrefix = "tabsession:"

type Medium struct {
	client *goredis.Client
	prefix string
}

// Open connects using a redis:// URL and pings the server.
func Open(ctx context.Context, url, prefix string) (*Medium, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	m := New(goredis.NewClient(opts), prefix)
	if err := m.Ping(ctx); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// New wraps an existing client. An empty prefix uses DefaultPrefix.
func New(client *goredis.Client, prefix string) *Medium {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Medium{client: client, prefix: prefix}
}

func (m *Medium) Close() error { return m.client.Close() }

func (m *Medium) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *Medium) Get(ctx context.Context, key string) (string, error) {
	v, err := m.client.Get(ctx, m.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", tokenstore.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis: get %s: %w", key, err)
	}
	return v, nil
}

func (m *Medium) Set(ctx context.Context, key, value string) error {
	if err := m.client.Set(ctx, m.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (m *Medium) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = m.key(k)
	}
	if err := m.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis: delete: %w", err)
	}
	return nil
}

func (m *Medium) key(k string) string { return m.prefix + k }
