package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodian/internal/platform/config"
)

func TestOptions(t *testing.T) {
	t.Run("overrides only configured values", func(t *testing.T) {
		opts, err := Options(config.RedisConfig{
			URL:         "redis://cache.internal:6380/2",
			PoolSize:    4,
			DialTimeout: 250 * time.Millisecond,
		})
		require.NoError(t, err)
		assert.Equal(t, "cache.internal:6380", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, 4, opts.PoolSize)
		assert.Equal(t, 250*time.Millisecond, opts.DialTimeout)
		assert.Zero(t, opts.ReadTimeout)
		assert.Equal(t, ClientName, opts.ClientName)
		assert.True(t, opts.ContextTimeoutEnabled)
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := Options(config.RedisConfig{URL: "://nope"})
		require.Error(t, err)
	})
}

func TestNew(t *testing.T) {
	t.Run("empty url disables redis", func(t *testing.T) {
		client, err := New(context.Background(), config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("connects and reports health", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := New(context.Background(), config.RedisConfig{
			URL:          "redis://" + mr.Addr(),
			PoolSize:     2,
			DialTimeout:  time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })
		require.NoError(t, client.Health(context.Background()))

		mr.Close()
		err = client.Health(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), mr.Addr())
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		_, err := New(context.Background(), config.RedisConfig{URL: "redis://" + addr, DialTimeout: 100 * time.Millisecond})
		require.Error(t, err)
		assert.Contains(t, err.Error(), addr)
	})
}
