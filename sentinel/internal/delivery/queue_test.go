package delivery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
)

type recorder struct {
	mu    sync.Mutex
	items []string
}

func (r *recorder) deliver(_ context.Context, item string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.items...)
}

func flush(t *testing.T, q interface{ Flush(context.Context) error }) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Flush(ctx))
}

func TestQueue_DeliversSubmittedItems(t *testing.T) {
	rec := &recorder{}
	q := New[string]("test", Config{Workers: 1}, rec.deliver, nil, logging.Discard())
	q.Start(context.Background())

	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, q.Submit(s))
	}
	flush(t, q)

	assert.Equal(t, []string{"a", "b", "c"}, rec.snapshot())
	assert.Equal(t, uint64(3), q.Stats().Delivered)
	require.NoError(t, q.Close(context.Background()))
}

func TestQueue_FailedItemsParkUntilRetry(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	rec := &recorder{}
	deliver := func(ctx context.Context, item string) error {
		if fail.Load() {
			return errors.New("sink down")
		}
		return rec.deliver(ctx, item)
	}

	var attempts []int
	var mu sync.Mutex
	onResult := func(_ string, attempt int, _ error) {
		mu.Lock()
		attempts = append(attempts, attempt)
		mu.Unlock()
	}

	q := New[string]("test", Config{Workers: 1, MaxAttempts: 3}, deliver, onResult, logging.Discard())
	q.Start(context.Background())
	defer q.Close(context.Background())

	require.NoError(t, q.Submit("alert"))
	flush(t, q)
	assert.Equal(t, 1, q.Pending())
	assert.Empty(t, rec.snapshot())

	fail.Store(false)
	assert.Equal(t, 1, q.RetryPending())
	flush(t, q)

	assert.Equal(t, []string{"alert"}, rec.snapshot())
	assert.Equal(t, 0, q.Pending())
	mu.Lock()
	assert.Equal(t, []int{1, 2}, attempts)
	mu.Unlock()
}

func TestQueue_DeadLettersAfterMaxAttempts(t *testing.T) {
	deliver := func(context.Context, string) error { return errors.New("nope") }
	q := New[string]("test", Config{Workers: 1, MaxAttempts: 2}, deliver, nil, logging.Discard())
	q.Start(context.Background())
	defer q.Close(context.Background())

	require.NoError(t, q.Submit("x"))
	flush(t, q)
	q.RetryPending()
	flush(t, q)

	st := q.Stats()
	assert.Equal(t, uint64(2), st.Failed)
	assert.Equal(t, uint64(1), st.DeadLettered)
	assert.Equal(t, 0, st.Pending)
}

func TestQueue_PanicIsTreatedAsFailure(t *testing.T) {
	deliver := func(context.Context, string) error { panic("boom") }
	q := New[string]("test", Config{Workers: 1, MaxAttempts: 1}, deliver, nil, logging.Discard())
	q.Start(context.Background())
	defer q.Close(context.Background())

	require.NoError(t, q.Submit("x"))
	flush(t, q)
	assert.Equal(t, uint64(1), q.Stats().DeadLettered)
}

func TestQueue_FullQueueParksInsteadOfBlocking(t *testing.T) {
	rec := &recorder{}
	q := New[string]("test", Config{Workers: 1, QueueSize: 1}, rec.deliver, nil, logging.Discard())

	// Not started, so the buffer fills after one item.
	require.NoError(t, q.Submit("a"))
	require.NoError(t, q.Submit("b"))
	assert.Equal(t, 1, q.Pending())

	q.Start(context.Background())
	flush(t, q)
	q.RetryPending()
	flush(t, q)

	assert.ElementsMatch(t, []string{"a", "b"}, rec.snapshot())
	require.NoError(t, q.Close(context.Background()))
}

func TestQueue_CloseDrainsAndRejects(t *testing.T) {
	rec := &recorder{}
	q := New[string]("test", Config{Workers: 2}, rec.deliver, nil, logging.Discard())

	for _, s := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Submit(s))
	}
	// Close starts the workers so already-queued items are still attempted.
	require.NoError(t, q.Close(context.Background()))
	assert.Len(t, rec.snapshot(), 4)

	assert.ErrorIs(t, q.Submit("late"), ErrQueueClosed)
	require.NoError(t, q.Close(context.Background()), "second close is a no-op")
}

func TestQueue_CloseHonorsDeadline(t *testing.T) {
	release := make(chan struct{})
	deliver := func(ctx context.Context, _ string) error {
		<-release
		return nil
	}
	q := New[string]("test", Config{Workers: 1, AttemptTimeout: time.Minute}, deliver, nil, logging.Discard())
	q.Start(context.Background())
	require.NoError(t, q.Submit("stuck"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)
	close(release)
}
