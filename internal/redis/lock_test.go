package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestWithLockReleasesAfterRun(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewLocker(client, time.Minute)

	ran := false
	err := locker.WithLock(context.Background(), "sweep:purge-chats", 0, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:sweep:purge-chats"))
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:sweep:purge-chats"))
}

func TestWithLockHeldElsewhere(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewLocker(client, time.Minute)
	require.NoError(t, mr.Set("lock:sweep:complete-appointments", "other-replica"))

	err := locker.WithLock(context.Background(), "sweep:complete-appointments", time.Second, func(context.Context) error {
		t.Fatal("must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// The other holder's key is untouched.
	got, err := mr.Get("lock:sweep:complete-appointments")
	require.NoError(t, err)
	assert.Equal(t, "other-replica", got)
}

func TestWithLockPropagatesError(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewLocker(client, time.Minute)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "sweep:prepare-chats", 10*time.Second, func(context.Context) error {
		assert.Equal(t, 10*time.Second, mr.TTL("lock:sweep:prepare-chats"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:sweep:prepare-chats"))
}

func TestNewRedisClientPingFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}
