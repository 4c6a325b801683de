package scheduler

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
	block chan struct{} // when set, each run waits on it or ctx
	inRun atomic.Int32
}

func newCountingRunner() *countingRunner {
	return &countingRunner{calls: make(map[string]int)}
}

func (r *countingRunner) RunScheduled(ctx context.Context, callerID, query string) error {
	r.inRun.Add(1)
	defer r.inRun.Add(-1)

	r.mu.Lock()
	r.calls[callerID+"|"+query]++
	r.mu.Unlock()

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.err
}

func (r *countingRunner) count(callerID, query string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[callerID+"|"+query]
}

func TestJobID(t *testing.T) {
	id := JobID("42", "average value per region")
	assert.Regexp(t, regexp.MustCompile(`^research_42_[0-9a-f]{16}$`), id)
	assert.Equal(t, id, JobID("42", "average value per region"))
	assert.NotEqual(t, id, JobID("42", "something else"))
	assert.NotEqual(t, id, JobID("43", "average value per region"))
}

func TestScheduleValidation(t *testing.T) {
	s := New(newCountingRunner())

	_, err := s.Schedule("", "q", time.Second)
	assert.ErrorIs(t, err, ErrInvalidInput)

	job, err := s.Schedule("u1", "q", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, job.Interval)
	assert.Equal(t, JobID("u1", "q"), job.ID)
}

func TestJobsRegisteredBeforeStartRunOnStart(t *testing.T) {
	r := newCountingRunner()
	s := New(r)
	_, err := s.Schedule("u1", "q", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, r.count("u1", "q"), "not armed before Start")

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.ErrorIs(t, s.Start(context.Background()), ErrStarted)

	require.Eventually(t, func() bool { return r.count("u1", "q") >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduleReplacesJob(t *testing.T) {
	r := newCountingRunner()
	s := New(r)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, err := s.Schedule("u1", "q", time.Hour)
	require.NoError(t, err)
	_, err = s.Schedule("u2", "other", time.Hour)
	require.NoError(t, err)
	_, err = s.Schedule("u1", "q", 10*time.Millisecond)
	require.NoError(t, err)

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		if j.CallerID == "u1" {
			assert.Equal(t, 10*time.Millisecond, j.Interval)
		}
	}
	require.Eventually(t, func() bool { return r.count("u1", "q") >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestTickErrorsKeepTicking(t *testing.T) {
	r := newCountingRunner()
	r.err = errors.New("model unavailable")
	s := New(r)
	_, err := s.Schedule("u1", "q", 5*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return r.count("u1", "q") >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestStopWaitsForInflightTick(t *testing.T) {
	r := newCountingRunner()
	r.block = make(chan struct{})
	s := New(r)
	_, err := s.Schedule("u1", "q", 5*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return r.inRun.Load() == 1 }, 2*time.Second, time.Millisecond)

	s.Stop()
	assert.Zero(t, r.inRun.Load(), "in-flight tick returned before Stop")

	after := r.count("u1", "q")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, r.count("u1", "q"), "no tick after Stop")

	_, err = s.Schedule("u1", "q2", time.Second)
	assert.ErrorIs(t, err, ErrStopped)
	s.Stop()
}

// fakeLease refuses every key of the jobs in held.
type fakeLease struct {
	mu   sync.Mutex
	held map[string]bool
	keys []string
}

func (l *fakeLease) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	for id := range l.held {
		if strings.HasPrefix(key, "tick:"+id+":") {
			return false, nil
		}
	}
	return true, nil
}

func TestLeaseHeldElsewhereSkipsTick(t *testing.T) {
	r := newCountingRunner()
	lease := &fakeLease{held: map[string]bool{JobID("u1", "q"): true}}
	s := New(r, WithLease(lease, 0))
	_, err := s.Schedule("u1", "q", 5*time.Millisecond)
	require.NoError(t, err)
	_, err = s.Schedule("u2", "q", 5*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return r.count("u2", "q") >= 2 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
	assert.Zero(t, r.count("u1", "q"))
}

// ttlLease behaves like SET NX with expiry.
type ttlLease struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

func (l *ttlLease) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.expires == nil {
		l.expires = make(map[string]time.Time)
	}
	now := time.Now()
	if exp, ok := l.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.expires[key] = now.Add(ttl)
	return true, nil
}

func TestLongLeaseTTLDoesNotThrottleOwnTicks(t *testing.T) {
	r := newCountingRunner()
	s := New(r, WithLease(&ttlLease{}, 500*time.Millisecond))
	_, err := s.Schedule("u1", "q", 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return r.count("u1", "q") >= 8 }, 2*time.Second, 5*time.Millisecond)
}

func TestSharedLeaseFiresEachSlotOnce(t *testing.T) {
	lease := &ttlLease{}
	r := newCountingRunner()
	a := New(r, WithLease(lease, 0))
	b := New(r, WithLease(lease, 0))
	for _, s := range []*Scheduler{a, b} {
		_, err := s.Schedule("u1", "q", 50*time.Millisecond)
		require.NoError(t, err)
	}
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, b.Start(context.Background()))

	time.Sleep(520 * time.Millisecond)
	a.Stop()
	b.Stop()

	// about ten slots elapsed; two unshared schedulers would fire about twenty times
	n := r.count("u1", "q")
	assert.GreaterOrEqual(t, n, 5)
	assert.LessOrEqual(t, n, 13)
}

func TestLeaseKeyAndTTL(t *testing.T) {
	at := time.Unix(0, int64(10*time.Second)+int64(time.Millisecond))
	assert.Equal(t, int64(10), slotOf(at, time.Second))
	assert.Equal(t, "tick:job:10", leaseKey("job", 10))

	assert.Equal(t, 30*time.Second, leaseTTL(0, time.Minute))
	assert.Equal(t, time.Minute, leaseTTL(time.Hour, time.Minute))
	assert.Equal(t, 10*time.Second, leaseTTL(10*time.Second, time.Minute))
}

func TestReplaceDoesNotHoldLockDuringTick(t *testing.T) {
	r := &stubbornRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
	s := New(r)
	_, err := s.Schedule("u1", "q", 5*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatal("tick never started")
	}

	replaced := make(chan struct{})
	go func() {
		defer close(replaced)
		_, err := s.Schedule("u1", "q", time.Hour)
		assert.NoError(t, err)
	}()

	jobsDone := make(chan []Job, 1)
	go func() { jobsDone <- s.Jobs() }()
	select {
	case jobs := <-jobsDone:
		require.Len(t, jobs, 1)
	case <-time.After(time.Second):
		t.Fatal("Jobs blocked behind the running tick")
	}

	select {
	case <-replaced:
		t.Fatal("replace returned before the old tick finished")
	default:
	}
	close(r.release)
	<-replaced
	s.Stop()
	assert.Equal(t, time.Hour, s.Jobs()[0].Interval)
}

// stubbornRunner ignores cancellation until released.
type stubbornRunner struct {
	release chan struct{}
	started chan struct{}
}

func (r *stubbornRunner) RunScheduled(ctx context.Context, callerID, query string) error {
	select {
	case r.started <- struct{}{}:
	default:
	}
	<-r.release
	return nil
}

func TestRedisLease(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	a, err := NewRedisLease(ctx, url)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisLease(ctx, url)
	require.NoError(t, err)
	defer b.Close()

	key := "test:" + JobID("u1", time.Now().String())
	ok, err := a.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisLeaseInvalidURL(t *testing.T) {
	_, err := NewRedisLease(context.Background(), "not-a-url")
	assert.Error(t, err)
}
