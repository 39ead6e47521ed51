package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/tokenstore"
	"github.com/aussiebroadwan/tabsession/pkg/tokenstore/drivers/redis"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a throwaway redis container and returns its URL.
func setupRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestMedium(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}

	ctx := context.Background()
	url := setupRedis(t)

	m, err := redis.Open(ctx, url, "test:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	t.Run("missing key", func(t *testing.T) {
		_, err := m.Get(ctx, tokenstore.KeyAccessToken)
		require.ErrorIs(t, err, tokenstore.ErrNotFound)
	})

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, tokenstore.KeyAccessToken, "a.b.c"))
		v, err := m.Get(ctx, tokenstore.KeyAccessToken)
		require.NoError(t, err)
		require.Equal(t, "a.b.c", v)
	})

	t.Run("prefixes isolate sessions", func(t *testing.T) {
		other, err := redis.Open(ctx, url, "other:")
		require.NoError(t, err)
		defer other.Close()

		_, err = other.Get(ctx, tokenstore.KeyAccessToken)
		require.ErrorIs(t, err, tokenstore.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, tokenstore.KeyRefreshToken, "r"))
		require.NoError(t, m.Delete(ctx, tokenstore.KeyAccessToken, tokenstore.KeyRefreshToken))

		_, err := m.Get(ctx, tokenstore.KeyRefreshToken)
		require.ErrorIs(t, err, tokenstore.ErrNotFound)
		require.NoError(t, m.Delete(ctx))
	})
}
