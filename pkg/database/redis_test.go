package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/evaluation-api/internal/config"
)

func TestRedisOptions(t *testing.T) {
	t.Run("single uses first address", func(t *testing.T) {
		opts, err := redisOptions(config.RedisConfig{Mode: "single", Addrs: []string{"a:6379", "b:6379"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a:6379"}, opts.Addrs)
	})

	t.Run("addr fallback", func(t *testing.T) {
		opts, err := redisOptions(config.RedisConfig{Addr: "localhost:6379", MinRetryBackoff: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"localhost:6379"}, opts.Addrs)
		assert.Equal(t, 10*time.Millisecond, opts.MinRetryBackoff)
	})

	t.Run("sentinel requires master", func(t *testing.T) {
		_, err := redisOptions(config.RedisConfig{Mode: "sentinel", Addr: "s:26379"})
		assert.Error(t, err)

		opts, err := redisOptions(config.RedisConfig{Mode: "sentinel", Addr: "s:26379", MasterName: "mymaster"})
		require.NoError(t, err)
		assert.Equal(t, "mymaster", opts.MasterName)
	})

	t.Run("cluster rejects db", func(t *testing.T) {
		_, err := redisOptions(config.RedisConfig{Mode: "cluster", Addrs: []string{"a:1", "b:1"}, DB: 2})
		assert.Error(t, err)
	})

	t.Run("missing address", func(t *testing.T) {
		_, err := redisOptions(config.RedisConfig{})
		assert.Error(t, err)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := redisOptions(config.RedisConfig{Mode: "ring", Addr: "a:1"})
		assert.Error(t, err)
	})
}
