// Package delivery runs fire-and-forget calls to external collaborators on a
// bounded worker queue. Failed items are parked as pending and re-submitted
// by RetryPending, which the maintenance loop calls; nothing is retried inline.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/metrics"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("delivery queue closed")

// Func delivers one item.
type Func[T any] func(ctx context.Context, item T) error

// ResultFunc observes every attempt. attempt starts at 1.
type ResultFunc[T any] func(item T, attempt int, err error)

type Config struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	// MaxPending bounds the retry backlog; the oldest entry is dead-lettered
	// when it overflows.
	MaxPending int `mapstructure:"max_pending"`
}

func DefaultConfig() Config {
	return Config{
		Workers:        2,
		QueueSize:      1024,
		MaxAttempts:    5,
		AttemptTimeout: 10 * time.Second,
		MaxPending:     10000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.MaxPending <= 0 {
		c.MaxPending = d.MaxPending
	}
	return c
}

// Stats counts queue outcomes.
type Stats struct {
	Delivered    uint64 `json:"delivered"`
	Failed       uint64 `json:"failed"`
	DeadLettered uint64 `json:"dead_lettered"`
	Pending      int    `json:"pending"`
}

type envelope[T any] struct {
	item     T
	attempts int
}

// Queue delivers items of type T with a fixed worker pool.
type Queue[T any] struct {
	name     string
	cfg      Config
	deliver  Func[T]
	onResult ResultFunc[T]
	logger   *logging.Logger

	// mu guards closed and the send side of items.
	mu     sync.RWMutex
	closed bool
	items  chan *envelope[T]

	pendingMu sync.Mutex
	pending   []*envelope[T]

	outstanding atomic.Int64
	delivered   atomic.Uint64
	failed      atomic.Uint64
	dead        atomic.Uint64

	startOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a queue. onResult may be nil.
func New[T any](name string, cfg Config, deliver Func[T], onResult ResultFunc[T], logger *logging.Logger) *Queue[T] {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	return &Queue[T]{
		name:     name,
		cfg:      cfg,
		deliver:  deliver,
		onResult: onResult,
		logger:   logger.Component("delivery").With("queue", name),
		items:    make(chan *envelope[T], cfg.QueueSize),
	}
}

// Start launches the workers. Items submitted earlier wait in the buffer.
// Workers keep running after ctx is canceled until Close drains the queue,
// so shutdown never drops queued items on the floor.
func (q *Queue[T]) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		base := context.WithoutCancel(ctx)
		for i := 0; i < q.cfg.Workers; i++ {
			q.wg.Add(1)
			go q.worker(base)
		}
	})
}

func (q *Queue[T]) worker(ctx context.Context) {
	defer q.wg.Done()
	for env := range q.items {
		q.attempt(ctx, env)
		q.outstanding.Add(-1)
	}
}

func (q *Queue[T]) attempt(ctx context.Context, env *envelope[T]) {
	env.attempts++
	attemptCtx, cancel := context.WithTimeout(ctx, q.cfg.AttemptTimeout)
	err := q.safeDeliver(attemptCtx, env.item)
	cancel()

	if q.onResult != nil {
		q.onResult(env.item, env.attempts, err)
	}
	if err == nil {
		q.delivered.Add(1)
		return
	}

	q.failed.Add(1)
	if env.attempts >= q.cfg.MaxAttempts {
		q.deadLetter(env, err)
		return
	}
	q.logger.Warn("delivery failed, parked for retry",
		logging.Attempt(env.attempts),
		logging.Error(err))
	q.park(env)
}

func (q *Queue[T]) safeDeliver(ctx context.Context, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panic: %v", r)
		}
	}()
	return q.deliver(ctx, item)
}

func (q *Queue[T]) deadLetter(env *envelope[T], err error) {
	q.dead.Add(1)
	metrics.DeadLettered.WithLabelValues(q.name).Inc()
	q.logger.Error("delivery abandoned",
		logging.Attempt(env.attempts),
		logging.Error(err))
}

func (q *Queue[T]) park(env *envelope[T]) {
	q.pendingMu.Lock()
	q.pending = append(q.pending, env)
	var overflow *envelope[T]
	if len(q.pending) > q.cfg.MaxPending {
		overflow = q.pending[0]
		q.pending = q.pending[1:]
	}
	n := len(q.pending)
	q.pendingMu.Unlock()

	metrics.PendingDeliveries.WithLabelValues(q.name).Set(float64(n))
	if overflow != nil {
		q.deadLetter(overflow, errors.New("retry backlog full"))
	}
}

// Submit enqueues item without blocking. A full queue parks the item as
// pending for the next RetryPending.
func (q *Queue[T]) Submit(item T) error {
	return q.enqueue(&envelope[T]{item: item})
}

func (q *Queue[T]) enqueue(env *envelope[T]) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.outstanding.Add(1)
	select {
	case q.items <- env:
		return nil
	default:
		q.outstanding.Add(-1)
		q.park(env)
		return nil
	}
}

// RetryPending re-submits every parked item and returns how many were
// handed back to the workers.
func (q *Queue[T]) RetryPending() int {
	q.pendingMu.Lock()
	batch := q.pending
	q.pending = nil
	q.pendingMu.Unlock()
	metrics.PendingDeliveries.WithLabelValues(q.name).Set(0)

	resubmitted := 0
	for i, env := range batch {
		if err := q.enqueue(env); err != nil {
			// Closed: keep the remainder parked.
			q.pendingMu.Lock()
			q.pending = append(batch[i:], q.pending...)
			n := len(q.pending)
			q.pendingMu.Unlock()
			metrics.PendingDeliveries.WithLabelValues(q.name).Set(float64(n))
			break
		}
		resubmitted++
	}
	return resubmitted
}

// Flush waits until nothing is queued or in flight. Parked items do not
// count.
func (q *Queue[T]) Flush(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for q.outstanding.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops accepting items and waits for queued items to be attempted
// or ctx to expire.
func (q *Queue[T]) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.items)
	q.mu.Unlock()

	// Workers must exist to drain; a never-started queue starts them now.
	q.Start(ctx)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if n := q.Pending(); n > 0 {
			q.logger.Warn("queue closed with undelivered items", "pending", n)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("delivery queue %s: %w", q.name, ctx.Err())
	}
}

func (q *Queue[T]) Pending() int {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	return len(q.pending)
}

func (q *Queue[T]) Stats() Stats {
	return Stats{
		Delivered:    q.delivered.Load(),
		Failed:       q.failed.Load(),
		DeadLettered: q.dead.Load(),
		Pending:      q.Pending(),
	}
}
