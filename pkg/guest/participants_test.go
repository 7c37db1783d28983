package guest

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/collab/pkg/capability"
)

func intPtr(n int) *int { return &n }

func TestMemoryRegistryCap(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()
	cap2 := intPtr(2)

	require.NoError(t, reg.Join(ctx, 1, "astrid", cap2))
	require.NoError(t, reg.Join(ctx, 1, "bram", cap2))

	err := reg.Join(ctx, 1, "carys", cap2)
	require.Error(t, err)
	assert.Equal(t, capability.KindForbidden, capability.KindOf(err))

	// A held seat rejoins freely.
	assert.NoError(t, reg.Join(ctx, 1, "astrid", cap2))

	count, err := reg.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Leaving frees the seat for someone else.
	require.NoError(t, reg.Leave(ctx, 1, "bram"))
	assert.NoError(t, reg.Join(ctx, 1, "carys", cap2))
}

func TestMemoryRegistryNoCap(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, reg.Join(ctx, 9, name, nil))
	}
	count, err := reg.Count(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestMemoryRegistrySessionsIndependent(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()
	one := intPtr(1)

	require.NoError(t, reg.Join(ctx, 1, "astrid", one))
	// Same name, different session: separate seat pools.
	assert.NoError(t, reg.Join(ctx, 2, "astrid", one))
	assert.Error(t, reg.Join(ctx, 1, "bram", one))
}

func setupRedisRegistry(t *testing.T) (*RedisRegistry, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisRegistry(client), mr
}

func TestRedisRegistryCap(t *testing.T) {
	reg, _ := setupRedisRegistry(t)
	ctx := context.Background()
	cap2 := intPtr(2)

	require.NoError(t, reg.Join(ctx, 42, "astrid", cap2))
	require.NoError(t, reg.Join(ctx, 42, "bram", cap2))

	err := reg.Join(ctx, 42, "carys", cap2)
	require.Error(t, err)
	assert.Equal(t, capability.KindForbidden, capability.KindOf(err))

	assert.NoError(t, reg.Join(ctx, 42, "bram", cap2))

	count, err := reg.Count(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, reg.Leave(ctx, 42, "astrid"))
	assert.NoError(t, reg.Join(ctx, 42, "carys", cap2))
}

func TestRedisRegistrySeatTTL(t *testing.T) {
	reg, mr := setupRedisRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Join(ctx, 42, "astrid", nil))
	assert.Equal(t, participantTTL, mr.TTL("collab:participants:42"))

	mr.FastForward(participantTTL)
	count, err := reg.Count(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRedisRegistryUnavailable(t *testing.T) {
	reg, mr := setupRedisRegistry(t)
	mr.Close()

	// Unlike the rate limiter, seat tracking does not fail open: an
	// unreachable registry refuses the join.
	err := reg.Join(context.Background(), 42, "astrid", intPtr(2))
	assert.Error(t, err)
}
