package settlement

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/AltairaLabs/EdenKit/ledger"
	"github.com/AltairaLabs/EdenKit/logger"
)

// DefaultSweepInterval is how often a Worker drains the queue when no
// enqueue has signalled it.
const DefaultSweepInterval = time.Second

// Worker consumes the inbound queue and reconciles each entry against the
// ledger's durable storage.
type Worker struct {
	queue    *Queue
	pipeline *Pipeline
	interval time.Duration

	stopCh     chan struct{}
	done       chan struct{}
	started    atomic.Bool
	stopped    atomic.Bool
	reconciled atomic.Int64
	failed     atomic.Int64
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithSweepInterval sets the fallback drain period.
func WithSweepInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWorker creates a worker for q. It does nothing until Start.
func NewWorker(q *Queue, p *Pipeline, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:    q,
		pipeline: p,
		interval: DefaultSweepInterval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the drain loop in the background. Calling it again is a no-op.
func (w *Worker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go w.loop(ctx)
}

// Stop ends the loop after a final drain and waits for it, or for ctx.
func (w *Worker) Stop(ctx context.Context) error {
	if !w.started.Load() {
		return nil
	}
	if w.stopped.CompareAndSwap(false, true) {
		close(w.stopCh)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconciled returns how many queued entries were checked successfully.
func (w *Worker) Reconciled() int64 {
	return w.reconciled.Load()
}

// Failed returns how many queued entries could not be reconciled.
func (w *Worker) Failed() int64 {
	return w.failed.Load()
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.drainOnce(ctx)
			return
		case <-w.queue.Ready():
			w.drainOnce(ctx)
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) {
	for _, entry := range w.queue.Drain() {
		if err := w.pipeline.Reconcile(ctx, entry); err != nil {
			w.failed.Add(1)
			logger.ErrorContext(logger.WithEntryID(ctx, entry.EntryID), "queued entry reconciliation failed", "error", err)
			continue
		}
		w.reconciled.Add(1)
	}
}

// Reconcile checks a queued entry against the ledger: the entry must still
// exist and its durable copy is rewritten if it disagrees with memory.
func (p *Pipeline) Reconcile(ctx context.Context, queued *ledger.Entry) error {
	unlock := p.entries.lock(queued.EntryID)
	defer unlock()

	current, err := p.lookup(ctx, queued.EntryID, "reconcile")
	if err != nil {
		return err
	}
	ctx = logger.WithEntryID(ctx, queued.EntryID)
	corrected, err := p.ledger.VerifyPersisted(ctx, queued.EntryID)
	if err != nil {
		return err
	}
	logger.DebugContext(ctx, "queued entry reconciled",
		"queued_status", queued.Status, "status", current.Status, "corrected", corrected)
	return nil
}
