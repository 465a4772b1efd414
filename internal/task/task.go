// Package task provides explicit asynchronous task handles and a
// fixed-interval scheduler for background cycles.
package task

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handle represents one asynchronous unit of work. It supports awaiting
// the result and registering completion continuations, replacing implicit
// callback chains: the error of a finished task is never swallowed, it is
// stored on the handle and handed to every continuation.
type Handle struct {
	mu        sync.Mutex
	done      chan struct{}
	err       error
	completed bool
	callbacks []func(error)
}

// Run starts fn in its own goroutine and returns a handle for it.
func Run(fn func() error) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		h.complete(fn())
	}()
	return h
}

// complete records the result exactly once and fires continuations in
// registration order, outside the handle's lock. The done channel closes
// only after every continuation has run, so an awaiter observes their
// effects.
func (h *Handle) complete(err error) {
	h.mu.Lock()
	if h.completed {
		h.mu.Unlock()
		return
	}
	h.completed = true
	h.err = err
	callbacks := h.callbacks
	h.callbacks = nil
	h.mu.Unlock()

	for _, cb := range callbacks {
		cb(err)
	}
	close(h.done)
}

// Await blocks until the task finishes, including any continuations
// registered before completion, or until ctx is cancelled. It returns the
// task's error, or the context's error when cancelled first; cancellation
// abandons the wait, not the task.
func (h *Handle) Await(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnComplete registers fn to run with the task's error once it finishes.
// If the task already finished, fn runs synchronously in the caller's
// goroutine.
func (h *Handle) OnComplete(fn func(error)) {
	h.mu.Lock()
	if h.completed {
		err := h.err
		h.mu.Unlock()
		fn(err)
		return
	}
	h.callbacks = append(h.callbacks, fn)
	h.mu.Unlock()
}

// Scheduler drives a periodic cycle: an initial delay, then one run per
// fixed interval. A cycle always runs to completion (success or reported
// failure) before the next tick is honored; there is no mid-cycle
// cancellation, and one failed cycle never cancels future cycles.
type Scheduler struct {
	name   string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Schedule starts running fn every interval after an initial delay.
// Failures are logged with the scheduler's name and otherwise ignored:
// the next tick runs regardless. Stop (or cancelling ctx) ends the
// schedule after any in-flight cycle finishes.
func Schedule(ctx context.Context, name string, delay, interval time.Duration, logger *slog.Logger, fn func(ctx context.Context) error) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{name: name, cancel: cancel}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := fn(ctx); err != nil {
				logger.Error("scheduled task cycle failed", "task", name, "error", err)
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return s
}

// Stop ends the schedule and waits for any in-flight cycle to finish.
// Safe to call more than once.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}
