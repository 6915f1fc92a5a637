package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Rrens/chat-gateway/internal/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	host := os.Getenv("TEST_REDIS_HOST")
	if host == "" {
		t.Skip("Requires redis connection: set TEST_REDIS_HOST")
	}

	client, err := NewClient(context.Background(), config.RedisConfig{Host: host, Port: 6379})
	require.NoError(t, err)
	defer client.Close()

	limiter := NewRateLimiter(client, 2, 1)
	fixed := time.Now()
	limiter.now = func() time.Time { return fixed }

	key := uuid.NewString()
	defer limiter.Reset(context.Background(), key)

	for i := 0; i < 3; i++ {
		allowed, remaining, reset, err := limiter.Allow(context.Background(), key)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
		assert.Equal(t, fixed.Truncate(time.Minute).Add(time.Minute), reset)
	}

	allowed, remaining, _, err := limiter.Allow(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, remaining)
}
