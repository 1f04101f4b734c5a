package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/AltairaLabs/EdenKit/ledger"
	"github.com/AltairaLabs/EdenKit/logger"
)

// ErrQueueFull is returned when the inbound queue is at capacity.
var ErrQueueFull = errors.New("settlement queue is full")

// DefaultQueueSize is the capacity used when none is given.
const DefaultQueueSize = 1024

// Queue is the inbound settlement queue the ledger forwards new entries to.
// Intake is paced by a token bucket; a full queue refuses new entries. A
// Worker drains it.
type Queue struct {
	mu       sync.Mutex
	items    []*ledger.Entry
	capacity int
	limiter  *rate.Limiter
	ready    chan struct{}
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithCapacity bounds the number of queued entries.
func WithCapacity(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithRateLimit paces intake to r entries per second with the given burst.
// A zero rate leaves intake unlimited.
func WithRateLimit(r float64, burst int) QueueOption {
	return func(q *Queue) {
		if r <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		q.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// NewQueue creates an empty queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		capacity: DefaultQueueSize,
		limiter:  rate.NewLimiter(rate.Inf, 0),
		ready:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue implements ledger.Forwarder. It waits for an intake token and
// fails with ErrQueueFull when the queue is at capacity.
func (q *Queue) Enqueue(ctx context.Context, entry *ledger.Entry) error {
	if entry == nil {
		return nil
	}
	if err := q.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("settlement intake: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return fmt.Errorf("%w: %d pending", ErrQueueFull, len(q.items))
	}
	q.items = append(q.items, entry.Clone())
	logger.DebugContext(ctx, "entry queued for settlement", "entry_id", entry.EntryID, "pending", len(q.items))
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Ready is signalled after an Enqueue. Several enqueues may share one signal.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Pending returns the number of queued entries.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every queued entry in arrival order.
func (q *Queue) Drain() []*ledger.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
