//go:build integration

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppliedRepository_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	repo := NewAppliedRepository(client)
	repo.prefix = "applied-test-" + time.Now().Format("150405.000")

	_, ok, err := repo.LastApplied(ctx, "ad", "a1", "budget")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.RecordApplied(ctx, "ad", "a1", "budget", "10.00", time.Minute))
	val, ok, err := repo.LastApplied(ctx, "ad", "a1", "budget")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "10.00", val)

	require.NoError(t, repo.Forget(ctx, "ad", "a1", "budget"))
	_, ok, err = repo.LastApplied(ctx, "ad", "a1", "budget")
	require.NoError(t, err)
	assert.False(t, ok)
}
