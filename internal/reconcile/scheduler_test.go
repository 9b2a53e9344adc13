package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
	"github.com/hackgods/hospital-scheduling/internal/metrics"
	redisclient "github.com/hackgods/hospital-scheduling/internal/redis"
)

var fastRetry = Options{Timeout: 2 * time.Second, MaxAttempts: 3, InitialBackoff: time.Millisecond}

func newLocker(t *testing.T) (*miniredis.Miniredis, redisclient.Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redisclient.NewLocker(client, time.Minute)
}

// flaky fails the first n calls.
func flaky(n int32, calls *atomic.Int32) func(context.Context) (int, error) {
	return func(context.Context) (int, error) {
		if calls.Add(1) <= n {
			return 0, errors.New("connection refused")
		}
		return 4, nil
	}
}

func TestRunOnceRetriesTransientFailures(t *testing.T) {
	_, locker := newLocker(t)
	reg := prometheus.NewRegistry()
	s := NewScheduler(locker, fastRetry, metrics.New(reg), zap.NewNop())

	var calls atomic.Int32
	err := s.RunOnce(context.Background(), Job{Name: "complete-appointments", Run: flaky(2, &calls)})
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())

	n, err := testutil.GatherAndCount(reg, "hospital_reconcile_sweep_runs_total", "hospital_reconcile_sweep_items_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunOnceDropsAfterMaxAttempts(t *testing.T) {
	_, locker := newLocker(t)
	s := NewScheduler(locker, fastRetry, nil, zap.NewNop())

	var calls atomic.Int32
	err := s.RunOnce(context.Background(), Job{Name: "purge-chats", Run: flaky(10, &calls)})
	assert.Error(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRunOnceDoesNotRetryDomainErrors(t *testing.T) {
	s := NewScheduler(nil, fastRetry, nil, zap.NewNop())
	bad := apperr.Validation("bad", "bad input")

	var calls atomic.Int32
	err := s.RunOnce(context.Background(), Job{Name: "prepare-chats", Run: func(context.Context) (int, error) {
		calls.Add(1)
		return 0, bad
	}})
	assert.ErrorIs(t, err, bad)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	mr, locker := newLocker(t)
	require.NoError(t, mr.Set("lock:sweep:purge-chats", "other-replica"))
	s := NewScheduler(locker, fastRetry, nil, zap.NewNop())

	var calls atomic.Int32
	err := s.RunOnce(context.Background(), Job{Name: "purge-chats", Run: flaky(0, &calls)})
	require.NoError(t, err)
	assert.Zero(t, calls.Load())
}

func TestRunOnceAppliesTimeout(t *testing.T) {
	s := NewScheduler(nil, Options{Timeout: 50 * time.Millisecond, MaxAttempts: 1}, nil, zap.NewNop())

	err := s.RunOnce(context.Background(), Job{Name: "slow", Run: func(ctx context.Context) (int, error) {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
		<-ctx.Done()
		return 0, ctx.Err()
	}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSchedulerRunsJobsIndependently(t *testing.T) {
	_, locker := newLocker(t)
	s := NewScheduler(locker, fastRetry, nil, zap.NewNop())

	var good, bad atomic.Int32
	s.Add(
		Job{Name: "good", Interval: 20 * time.Millisecond, Run: flaky(0, &good)},
		Job{Name: "bad", Interval: 20 * time.Millisecond, Run: flaky(1000, &bad)},
	)
	s.Start(context.Background())

	// The first run happens at startup, before any tick.
	require.Eventually(t, func() bool { return good.Load() >= 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return good.Load() >= 3 && bad.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	stopped := good.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, good.Load())
}

type fakeChats struct {
	closed, purged int
}

func (f fakeChats) PrepareUpcoming(context.Context) (int, error) { return 2, nil }

func (f fakeChats) PurgeExpired(context.Context) (int, int, error) {
	return f.closed, f.purged, nil
}

func TestPurgeChatsCountsClosedAndPurged(t *testing.T) {
	job := PurgeChats(fakeChats{closed: 1, purged: 3}, time.Minute)
	assert.Equal(t, JobPurgeChats, job.Name)

	n, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = PrepareChats(fakeChats{}, time.Minute).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
