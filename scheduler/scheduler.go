// Package scheduler re-runs research questions on a fixed interval.
package scheduler

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/akolk/loki-nexus2/logging"
	"github.com/akolk/loki-nexus2/metrics"
)

const DefaultInterval = time.Hour

var (
	ErrStopped      = errors.New("scheduler stopped")
	ErrStarted      = errors.New("scheduler already started")
	ErrInvalidInput = errors.New("caller and query are required")
)

// Runner executes one tick of a job.
type Runner interface {
	RunScheduled(ctx context.Context, callerID, query string) error
}

// Lease grants one process the right to fire a tick. Acquire returns false
// when another holder already has key.
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Job struct {
	ID       string
	CallerID string
	Query    string
	Interval time.Duration
}

// JobID is stable for a caller and query, so scheduling the same question
// again replaces the earlier job.
func JobID(callerID, query string) string {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(query))
	return fmt.Sprintf("research_%s_%s", callerID, hex.EncodeToString(h.Sum(nil)))
}

type entry struct {
	job    Job
	cancel context.CancelFunc
	done   chan struct{}
}

type Scheduler struct {
	runner   Runner
	lease    Lease
	leaseTTL time.Duration
	log      *logging.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	jobs    map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
	wg      sync.WaitGroup
}

type Option func(*Scheduler)

func WithLogger(log *logging.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log.Named("scheduler")
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLease makes every tick acquire the lease for its interval slot first.
// ttl <= 0 uses half the job interval; a ttl above the interval is capped.
func WithLease(l Lease, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.lease = l
		s.leaseTTL = ttl
	}
}

func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner: runner,
		log:    logging.Discard(),
		jobs:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers or replaces the job for callerID and query. Jobs added
// before Start are armed when Start runs. A replaced job is cancelled at once
// and its goroutine, including a running tick, is awaited without holding the
// scheduler lock before the new job is armed.
func (s *Scheduler) Schedule(callerID, query string, interval time.Duration) (Job, error) {
	if callerID == "" || query == "" {
		return Job{}, ErrInvalidInput
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	job := Job{ID: JobID(callerID, query), CallerID: callerID, Query: query, Interval: interval}
	e := &entry{job: job}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return Job{}, ErrStopped
	}
	old := s.jobs[job.ID]
	s.jobs[job.ID] = e
	if old != nil && old.cancel != nil {
		old.cancel()
	}
	s.metrics.SetJobs(len(s.jobs))
	s.mu.Unlock()

	if old != nil {
		if old.done != nil {
			<-old.done
		}
		s.log.Info("job replaced", "job_id", job.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.jobs[job.ID] != e:
		// a later Schedule for the same job won
	case s.stopped:
		return Job{}, ErrStopped
	case s.started && e.cancel == nil:
		s.arm(e)
	}
	s.log.Info("job scheduled", "job_id", job.ID, "caller", callerID, "interval", interval.String())
	return job, nil
}

// Start arms every registered job. Jobs stop when ctx is cancelled or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.stopped:
		return ErrStopped
	case s.started:
		return ErrStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	for _, e := range s.jobs {
		s.arm(e)
	}
	s.log.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop cancels all jobs and waits for their goroutines, including a tick
// that is still running. No tick starts after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Jobs returns the registered jobs ordered by ID.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// arm starts the job goroutine. Caller holds s.mu.
func (s *Scheduler) arm(e *entry) {
	ctx, cancel := context.WithCancel(s.ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(e.done)
		s.loop(ctx, e.job)
	}()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			// ticker jitter can land two ticks in one slot; never reuse one
			slot := max(slotOf(now, job.Interval), last+1)
			last = slot
			s.tick(ctx, job, slot)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, job Job, slot int64) {
	log := s.log.WithCaller(job.CallerID)

	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx, leaseKey(job.ID, slot), leaseTTL(s.leaseTTL, job.Interval))
		switch {
		case err != nil:
			log.WithError(err).Warn("lease unavailable, skipping tick", "job_id", job.ID)
			s.metrics.Tick("error")
			return
		case !ok:
			log.Debug("tick held by another scheduler", "job_id", job.ID)
			s.metrics.Tick("skipped")
			return
		}
	}

	start := time.Now()
	log.Info("starting scheduled research", "job_id", job.ID)
	if err := s.runner.RunScheduled(ctx, job.CallerID, job.Query); err != nil {
		log.WithError(err).Error("scheduled research failed", "job_id", job.ID)
		s.metrics.Tick("error")
		return
	}
	log.WithDuration(time.Since(start)).Info("scheduled research finished", "job_id", job.ID)
	s.metrics.Tick("ok")
}

// slotOf numbers the wall-clock interval t falls in. Schedulers sharing a
// lease agree on it, so each slot fires once across all of them.
func slotOf(t time.Time, interval time.Duration) int64 {
	return t.UnixNano() / int64(interval)
}

func leaseKey(jobID string, slot int64) string {
	return fmt.Sprintf("tick:%s:%d", jobID, slot)
}

// leaseTTL is ttl capped at the job interval; ttl <= 0 uses half the interval.
func leaseTTL(ttl, interval time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return interval / 2
	case ttl > interval:
		return interval
	}
	return ttl
}
