package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval bounds how long the poller waits between scans when
// the topic is idle.
const DefaultPollInterval = 250 * time.Millisecond

// Poller continuously consumes one topic, dispatching every
// unacknowledged entry through the router in id order. One poller runs
// per subscribed topic for the lifetime of the process; it stops only at
// shutdown.
//
// Each cycle re-reads the full set of unacknowledged entries, which is
// what produces at-least-once redelivery: an entry stays on the topic,
// and keeps being dispatched, until a handler or the router's drop policy
// acknowledges it.
type Poller struct {
	bus      *Bus
	router   *Router
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller builds a poller for one topic. A non-positive interval falls
// back to DefaultPollInterval.
func NewPoller(bus *Bus, router *Router, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{bus: bus, router: router, interval: interval, logger: logger}
}

// Start launches the poll loop. Messages are dispatched sequentially in
// id order; slow handlers delay later entries on the same topic, never
// entries on other topics.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.logger.Info("sync bus poller started", "topic", p.bus.Topic(), "interval", p.interval)

		for {
			p.poll(ctx)
			select {
			case <-time.After(p.interval):
			case <-ctx.Done():
				p.logger.Info("sync bus poller stopped", "topic", p.bus.Topic())
				return
			}
		}
	}()
}

// poll runs one scan-and-dispatch cycle. Read failures are logged and
// retried on the next cycle; they never kill the loop.
func (p *Poller) poll(ctx context.Context) {
	msgs, err := p.bus.ReadAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("sync bus read failed", "topic", p.bus.Topic(), "error", err)
		}
		return
	}
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return
		}
		p.router.Dispatch(ctx, p.bus, msg)
	}
}

// Stop ends the poll loop and waits for the in-flight cycle to finish.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}
