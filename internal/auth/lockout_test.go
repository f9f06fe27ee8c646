package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLockout(t *testing.T, policy LockoutPolicy) (*LockoutStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLockoutStore(client, policy), mr
}

func TestLockoutLocksAfterMaxAttempts(t *testing.T) {
	store, mr := newTestLockout(t, LockoutPolicy{MaxAttempts: 3, Window: time.Hour, Duration: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		locked, err := store.RecordFailure(ctx, "u-1")
		require.NoError(t, err)
		assert.False(t, locked)
	}
	locked, err := store.IsLocked(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, locked)

	locked, err = store.RecordFailure(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = store.IsLocked(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, locked)

	mr.FastForward(16 * time.Minute)
	locked, err = store.IsLocked(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLockoutWindowExpiresAttempts(t *testing.T) {
	store, mr := newTestLockout(t, LockoutPolicy{MaxAttempts: 2, Window: time.Minute, Duration: time.Minute})
	ctx := context.Background()

	_, err := store.RecordFailure(ctx, "u-1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	locked, err := store.RecordFailure(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLockoutUnlockAndClear(t *testing.T) {
	store, _ := newTestLockout(t, LockoutPolicy{MaxAttempts: 1})
	ctx := context.Background()

	locked, err := store.RecordFailure(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, store.Unlock(ctx, "u-1"))
	locked, err = store.IsLocked(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, store.Clear(ctx, "unknown"))
}

func TestLockoutDefaults(t *testing.T) {
	store, _ := newTestLockout(t, LockoutPolicy{})
	assert.Equal(t, DefaultLockoutPolicy(), store.policy)
}
