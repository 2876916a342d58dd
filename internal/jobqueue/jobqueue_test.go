package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestEnqueueKeepsEarliest(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(),
	}
	redisStore, _ := newRedisStore(t)
	stores["redis"] = redisStore

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := New(store, logging.New("error"))

			require.NoError(t, q.Enqueue(ctx, "shift:abc:wave:2", []byte(`{"n":1}`), 0))
			// re-enqueue with a later deadline must be a no-op
			require.NoError(t, q.Enqueue(ctx, "shift:abc:wave:2", []byte(`{"n":2}`), time.Hour))

			job, err := store.Claim(ctx, time.Now().UTC())
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.Equal(t, "shift:abc:wave:2", job.Key)
			assert.JSONEq(t, `{"n":1}`, string(job.Payload))

			// nothing else pending
			job, err = store.Claim(ctx, time.Now().UTC().Add(2*time.Hour))
			require.NoError(t, err)
			assert.Nil(t, job)
		})
	}
}

func TestClaimHonoursDeadline(t *testing.T) {
	stores := map[string]Store{"memory": NewMemoryStore()}
	redisStore, _ := newRedisStore(t)
	stores["redis"] = redisStore

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := New(store, logging.New("error"))
			require.NoError(t, q.Enqueue(ctx, "shift:abc:wave:3", nil, 30*time.Minute))

			job, err := store.Claim(ctx, time.Now().UTC())
			require.NoError(t, err)
			assert.Nil(t, job, "job must not be claimable before its deadline")

			job, err = store.Claim(ctx, time.Now().UTC().Add(31*time.Minute))
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.Equal(t, "shift:abc:wave:3", job.Key)
		})
	}
}

func TestCancelByPrefix(t *testing.T) {
	stores := map[string]Store{"memory": NewMemoryStore()}
	redisStore, _ := newRedisStore(t)
	stores["redis"] = redisStore

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := New(store, logging.New("error"))
			require.NoError(t, q.Enqueue(ctx, "shift:abc:wave:2", nil, time.Minute))
			require.NoError(t, q.Enqueue(ctx, "shift:abc:wave:3", nil, time.Minute))
			require.NoError(t, q.Enqueue(ctx, "shift:abc:call:1:0", nil, time.Minute))
			require.NoError(t, q.Enqueue(ctx, "shift:other:wave:2", nil, time.Minute))

			removed, err := q.Cancel(ctx, "shift:abc:")
			require.NoError(t, err)
			assert.Equal(t, 3, removed)

			keys, err := q.Pending(ctx, "shift:")
			require.NoError(t, err)
			assert.Equal(t, []string{"shift:other:wave:2"}, keys)
		})
	}
}

func TestEarliestDueClaimedFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	q := New(store, logging.New("error"))

	require.NoError(t, q.Enqueue(ctx, "later", nil, 2*time.Millisecond))
	require.NoError(t, q.Enqueue(ctx, "sooner", nil, time.Millisecond))

	job, err := store.Claim(ctx, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "sooner", job.Key)
}

func TestRunDeliversAndRetries(t *testing.T) {
	store := NewMemoryStore()
	q := New(store, logging.New("error"))

	var calls atomic.Int32
	handler := func(ctx context.Context, job Job) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Enqueue(ctx, "job-1", []byte("x"), 0))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Run(ctx, 2, handler)
	}()

	// first delivery fails, the retry lands after the backoff; poll generously
	deadline := time.After(15 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("retry never delivered")
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()
	wg.Wait()
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestDeadLetterAfterMaxAttempts(t *testing.T) {
	store := NewMemoryStore()
	dl := &captureDeadLetter{}
	q := New(store, logging.New("error"), WithDeadLetterer(dl))

	ctx := context.Background()
	failing := func(ctx context.Context, job Job) error { return errors.New("permanent") }

	job := Job{Key: "doomed", RunAt: time.Now().UTC(), Attempts: maxAttempts - 1}
	require.NoError(t, store.Add(ctx, job, false))

	claimed, err := store.Claim(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	q.deliver(ctx, 0, *claimed, failing)

	require.Len(t, dl.jobs, 1)
	assert.Equal(t, "doomed", dl.jobs[0].Key)
	assert.Equal(t, maxAttempts, dl.jobs[0].Attempts)
	assert.Equal(t, 0, store.Pending())
}

func TestHandlerPanicIsContained(t *testing.T) {
	store := NewMemoryStore()
	q := New(store, logging.New("error"))

	ctx := context.Background()
	panicking := func(ctx context.Context, job Job) error { panic("boom") }

	job := Job{Key: "panicky", RunAt: time.Now().UTC()}
	require.NoError(t, store.Add(ctx, job, false))
	claimed, err := store.Claim(ctx, time.Now().UTC())
	require.NoError(t, err)

	assert.NotPanics(t, func() { q.deliver(ctx, 0, *claimed, panicking) })
	// the job is rescheduled for retry
	assert.Equal(t, 1, store.Pending())
}

type captureDeadLetter struct {
	jobs []Job
}

func (c *captureDeadLetter) DeadLetter(_ context.Context, job Job, _ error) error {
	c.jobs = append(c.jobs, job)
	return nil
}
