package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler processes one kind of sync event. Implementations are
// registered once, at router construction, and invoked for every
// delivery of a matching message.
//
// Because the bus is at-least-once, OnEvent must be idempotent: applying
// the same (id, payload) twice must leave the same state as applying it
// once. Handlers that complete their work durably acknowledge the message
// themselves via bus.Ack; the router never acknowledges on a handler's
// behalf except when dropping.
type Handler interface {
	// ActionTag names the events this handler consumes. Exactly one
	// handler may be registered per tag.
	ActionTag() string

	// RetryAllowed reports whether failures from OnEvent should be
	// retried (bounded by the router's retry cap) or dropped after the
	// first failed attempt.
	RetryAllowed() bool

	// OnEvent processes one delivery. A nil return means the delivery
	// was handled (the handler acknowledged it, or deliberately left it
	// for another node); an error drives the router's retry/drop policy.
	OnEvent(ctx context.Context, bus *Bus, id, payload string) error
}

// DefaultMaxRetries bounds redelivery attempts for retry-allowed handlers
// when the router is constructed with a non-positive cap.
const DefaultMaxRetries = 3

// Router maps an inbound event's action tag to its registered handler and
// enforces the per-handler retry/drop policy. Handlers are supplied
// explicitly at construction; there is no global registration.
//
// Retry accounting is per message id and local to this process: a message
// that keeps failing on this node is dropped from the shared stream after
// maxRetries+1 attempts, so a poison message cannot loop forever.
type Router struct {
	handlers   map[string]Handler
	maxRetries int
	logger     *slog.Logger

	mu       sync.Mutex
	attempts map[string]int // message id -> failed deliveries so far
}

// NewRouter builds a router over the given handlers. It fails when two
// handlers declare the same action tag, since silently shadowing one of
// them would drop a whole event class.
func NewRouter(maxRetries int, logger *slog.Logger, handlers ...Handler) (*Router, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}

	byTag := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		tag := h.ActionTag()
		if _, dup := byTag[tag]; dup {
			return nil, fmt.Errorf("stream: duplicate handler for action %q", tag)
		}
		byTag[tag] = h
	}

	return &Router{
		handlers:   byTag,
		maxRetries: maxRetries,
		logger:     logger,
		attempts:   make(map[string]int),
	}, nil
}

// Dispatch routes one message to its handler and applies the retry/drop
// policy to the outcome. Handler failures never propagate to the caller:
// the poll loop must survive any event.
func (r *Router) Dispatch(ctx context.Context, bus *Bus, msg Message) {
	handler, ok := r.handlers[msg.Action]
	if !ok {
		// A missing handler is a permanent condition, not a transient
		// failure: drop instead of letting the entry redeliver forever.
		r.logger.Warn("no handler registered for action, dropping event",
			"topic", bus.Topic(), "action", msg.Action, "id", msg.ID)
		r.drop(ctx, bus, msg.ID)
		return
	}

	err := handler.OnEvent(ctx, bus, msg.ID, msg.Payload)
	if err == nil {
		r.forget(msg.ID)
		return
	}

	if !handler.RetryAllowed() {
		r.logger.Error("handler failed, dropping event (retry not allowed)",
			"topic", bus.Topic(), "action", msg.Action, "id", msg.ID, "error", err)
		r.drop(ctx, bus, msg.ID)
		return
	}

	r.mu.Lock()
	r.attempts[msg.ID]++
	failed := r.attempts[msg.ID]
	r.mu.Unlock()

	if failed > r.maxRetries {
		r.logger.Error("handler retries exhausted, dropping event",
			"topic", bus.Topic(), "action", msg.Action, "id", msg.ID,
			"attempts", failed, "error", err)
		r.drop(ctx, bus, msg.ID)
		return
	}

	// Leave the entry unacknowledged; the next poll cycle redelivers it.
	r.logger.Warn("handler failed, leaving event for redelivery",
		"topic", bus.Topic(), "action", msg.Action, "id", msg.ID,
		"attempt", failed, "error", err)
}

// drop removes the entry from the stream and clears its retry state.
func (r *Router) drop(ctx context.Context, bus *Bus, id string) {
	if err := bus.Ack(ctx, id); err != nil {
		r.logger.Error("failed to drop event", "topic", bus.Topic(), "id", id, "error", err)
		return
	}
	r.forget(id)
}

// forget clears retry accounting for a message that was acknowledged or
// dropped, keeping the attempts map bounded by stream content.
func (r *Router) forget(id string) {
	r.mu.Lock()
	delete(r.attempts, id)
	r.mu.Unlock()
}
