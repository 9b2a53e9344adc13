// Package reconcile runs the periodic sweeps that move state forward without
// a request: completing past appointments and preparing and purging chat
// sessions.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
	"github.com/hackgods/hospital-scheduling/internal/metrics"
	redisclient "github.com/hackgods/hospital-scheduling/internal/redis"
	"github.com/hackgods/hospital-scheduling/pkg/logging"
)

var tracer = otel.Tracer("hospital.internal.reconcile")

const (
	resultOK      = "ok"
	resultError   = "error"
	resultSkipped = "skipped"
)

// Job is one sweep. Run returns how many rows it changed.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

type Options struct {
	Timeout        time.Duration // per run, also the lock TTL
	MaxAttempts    int
	InitialBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	return o
}

type Scheduler struct {
	jobs    []Job
	locker  redisclient.Locker
	opts    Options
	metrics *metrics.Metrics
	logger  *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewScheduler builds a scheduler. With a nil locker every replica runs
// every sweep.
func NewScheduler(locker redisclient.Locker, opts Options, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		locker:  locker,
		opts:    opts.withDefaults(),
		metrics: m,
		logger:  logging.OrNop(logger).Named("reconcile"),
	}
}

func (s *Scheduler) Add(jobs ...Job) {
	s.jobs = append(s.jobs, jobs...)
}

// Start launches one goroutine per job. Each job runs immediately and then
// on its own ticker until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.logger.Info("reconcile scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop cancels the running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	_ = s.RunOnce(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweep stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			_ = s.RunOnce(ctx, job)
		}
	}
}

// RunOnce executes one guarded, retried run of job. A run skipped because
// another replica holds the lock is not an error.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) error {
	ctx, span := tracer.Start(ctx, "reconcile."+job.Name)
	defer span.End()

	start := time.Now()
	var items int
	run := func(runCtx context.Context) error {
		n, err := s.retry(runCtx, job)
		items = n
		return err
	}

	var err error
	if s.locker == nil {
		runCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		err = run(runCtx)
		cancel()
	} else {
		err = s.locker.WithLock(ctx, "sweep:"+job.Name, s.opts.Timeout, run)
	}
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		s.metrics.ObserveSweep(job.Name, resultSkipped, 0, elapsed)
		s.logger.Debug("sweep held by another replica", zap.String("job", job.Name))
		return nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveSweep(job.Name, resultError, 0, elapsed)
		s.logger.Error("sweep failed, dropping run",
			zap.String("job", job.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return err
	}

	span.SetAttributes(attribute.Int("sweep.items", items))
	s.metrics.ObserveSweep(job.Name, resultOK, items, elapsed)
	if items > 0 {
		s.logger.Info("sweep complete",
			zap.String("job", job.Name),
			zap.Int("items", items),
			zap.Duration("elapsed", elapsed),
		)
	}
	return nil
}

// retry runs job up to MaxAttempts times with exponential backoff. Domain
// errors are not retried.
func (s *Scheduler) retry(ctx context.Context, job Job) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxElapsedTime = 0

	var items int
	attempt := 0
	op := func() error {
		attempt++
		n, err := job.Run(ctx)
		if err != nil {
			if apperr.KindOf(err) != "" {
				return backoff.Permanent(err)
			}
			return err
		}
		items = n
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("sweep attempt failed",
			zap.String("job", job.Name),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return 0, err
	}
	return items, nil
}
