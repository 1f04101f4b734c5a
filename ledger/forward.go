package ledger

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/AltairaLabs/EdenKit/logger"
)

// forward hands entry to the forwarder in the background. The goroutine is
// detached from the caller's cancellation but keeps its logging fields.
func (s *Store) forward(ctx context.Context, entry *Entry) {
	if s.forwarder == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.forwarding.Add(1)
	go func() {
		defer s.forwarding.Done()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			logger.ErrorContext(ctx, "ledger forward aborted", "error", err)
			return
		}
		defer s.sem.Release(1)

		err := withRetry(ctx, s.retries, s.retryWait, func() error {
			return s.forwarder.Enqueue(ctx, entry)
		})
		if err != nil {
			logger.ErrorContext(ctx, "ledger entry forwarding failed", "attempts", s.retries, "error", err)
			return
		}
		logger.DebugContext(ctx, "ledger entry forwarded to settlement")
	}()
}

// withRetry runs fn up to attempts times with exponential backoff and jitter.
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
			jitter := time.Duration(rand.Float64() * float64(backoff) * 0.1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
