package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBus starts an in-process Redis and binds a bus to a test topic.
func newTestBus(t *testing.T) *Bus {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewBus(rdb, "test-topic")
}

// testHandler is a configurable handler for router tests.
type testHandler struct {
	tag   string
	retry bool
	fn    func(ctx context.Context, bus *Bus, id, payload string) error

	mu    sync.Mutex
	calls int
}

func (h *testHandler) ActionTag() string  { return h.tag }
func (h *testHandler) RetryAllowed() bool { return h.retry }

func (h *testHandler) OnEvent(ctx context.Context, bus *Bus, id, payload string) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.fn == nil {
		return nil
	}
	return h.fn(ctx, bus, id, payload)
}

func (h *testHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func TestBus(t *testing.T) {
	ctx := context.Background()

	t.Run("publish assigns increasing ids and preserves order", func(t *testing.T) {
		bus := newTestBus(t)

		id1, err := bus.Publish(ctx, "a", "p1")
		require.NoError(t, err)
		id2, err := bus.Publish(ctx, "b", "p2")
		require.NoError(t, err)
		assert.NotEqual(t, id1, id2)

		msgs, err := bus.ReadAll(ctx)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, Message{ID: id1, Action: "a", Payload: "p1"}, msgs[0])
		assert.Equal(t, Message{ID: id2, Action: "b", Payload: "p2"}, msgs[1])
	})

	t.Run("entries remain visible until acknowledged", func(t *testing.T) {
		bus := newTestBus(t)
		id, err := bus.Publish(ctx, "a", "p")
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			msgs, err := bus.ReadAll(ctx)
			require.NoError(t, err)
			require.Len(t, msgs, 1, "unacked entry must redeliver")
		}

		require.NoError(t, bus.Ack(ctx, id))
		msgs, err := bus.ReadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("ack is idempotent", func(t *testing.T) {
		bus := newTestBus(t)
		id, err := bus.Publish(ctx, "a", "p")
		require.NoError(t, err)

		require.NoError(t, bus.Ack(ctx, id))
		require.NoError(t, bus.Ack(ctx, id))
	})

	t.Run("len counts unacknowledged entries", func(t *testing.T) {
		bus := newTestBus(t)
		_, err := bus.Publish(ctx, "a", "p")
		require.NoError(t, err)

		n, err := bus.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestRouter(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects duplicate action tags", func(t *testing.T) {
		_, err := NewRouter(3, nil,
			&testHandler{tag: "dup"},
			&testHandler{tag: "dup"},
		)
		assert.Error(t, err)
	})

	t.Run("successful handler acks its own message", func(t *testing.T) {
		bus := newTestBus(t)
		h := &testHandler{tag: "sync", fn: func(ctx context.Context, bus *Bus, id, _ string) error {
			return bus.Ack(ctx, id)
		}}
		router, err := NewRouter(3, nil, h)
		require.NoError(t, err)

		id, err := bus.Publish(ctx, "sync", "payload")
		require.NoError(t, err)
		router.Dispatch(ctx, bus, Message{ID: id, Action: "sync", Payload: "payload"})

		assert.Equal(t, 1, h.callCount())
		n, err := bus.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("missing handler drops the event", func(t *testing.T) {
		bus := newTestBus(t)
		router, err := NewRouter(3, nil)
		require.NoError(t, err)

		id, err := bus.Publish(ctx, "unknown", "p")
		require.NoError(t, err)
		router.Dispatch(ctx, bus, Message{ID: id, Action: "unknown", Payload: "p"})

		n, err := bus.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "unroutable event must not redeliver forever")
	})

	t.Run("retry disallowed drops after first failure", func(t *testing.T) {
		bus := newTestBus(t)
		h := &testHandler{tag: "once", retry: false, fn: func(context.Context, *Bus, string, string) error {
			return errors.New("always fails")
		}}
		router, err := NewRouter(3, nil, h)
		require.NoError(t, err)

		id, err := bus.Publish(ctx, "once", "p")
		require.NoError(t, err)
		router.Dispatch(ctx, bus, Message{ID: id, Action: "once", Payload: "p"})

		assert.Equal(t, 1, h.callCount())
		n, err := bus.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("retry allowed is bounded", func(t *testing.T) {
		const maxRetries = 2
		bus := newTestBus(t)
		h := &testHandler{tag: "flaky", retry: true, fn: func(context.Context, *Bus, string, string) error {
			return errors.New("always fails")
		}}
		router, err := NewRouter(maxRetries, nil, h)
		require.NoError(t, err)

		_, err = bus.Publish(ctx, "flaky", "p")
		require.NoError(t, err)

		// Simulate poll cycles: each cycle redelivers whatever is left.
		for cycle := 0; cycle < maxRetries+3; cycle++ {
			msgs, err := bus.ReadAll(ctx)
			require.NoError(t, err)
			for _, m := range msgs {
				router.Dispatch(ctx, bus, m)
			}
		}

		// Invoked at most maxRetries+1 times, then gone from the stream.
		assert.Equal(t, maxRetries+1, h.callCount())
		n, err := bus.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("transient failure recovers before the cap", func(t *testing.T) {
		bus := newTestBus(t)
		h := &testHandler{tag: "transient", retry: true}
		h.fn = func(ctx context.Context, bus *Bus, id, _ string) error {
			if h.callCount() < 2 {
				return errors.New("not yet")
			}
			return bus.Ack(ctx, id)
		}
		router, err := NewRouter(5, nil, h)
		require.NoError(t, err)

		_, err = bus.Publish(ctx, "transient", "p")
		require.NoError(t, err)

		for cycle := 0; cycle < 4; cycle++ {
			msgs, err := bus.ReadAll(ctx)
			require.NoError(t, err)
			for _, m := range msgs {
				router.Dispatch(ctx, bus, m)
			}
		}

		assert.Equal(t, 2, h.callCount())
		n, err := bus.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("duplicate delivery of an idempotent handler converges", func(t *testing.T) {
		bus := newTestBus(t)
		state := map[string]string{}
		var mu sync.Mutex
		h := &testHandler{tag: "apply", fn: func(_ context.Context, _ *Bus, _, payload string) error {
			mu.Lock()
			state["entity"] = payload // overwrite-with-latest: naturally idempotent
			mu.Unlock()
			return nil
		}}
		router, err := NewRouter(3, nil, h)
		require.NoError(t, err)

		msg := Message{ID: "1-0", Action: "apply", Payload: "v1"}
		router.Dispatch(ctx, bus, msg)
		after1 := state["entity"]
		router.Dispatch(ctx, bus, msg)

		assert.Equal(t, after1, state["entity"])
		assert.Equal(t, "v1", state["entity"])
	})
}

func TestPoller(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers published events until acked", func(t *testing.T) {
		bus := newTestBus(t)
		h := &testHandler{tag: "sync", fn: func(ctx context.Context, bus *Bus, id, _ string) error {
			return bus.Ack(ctx, id)
		}}
		router, err := NewRouter(3, nil, h)
		require.NoError(t, err)

		poller := NewPoller(bus, router, 10*time.Millisecond, nil)
		poller.Start(ctx)
		defer poller.Stop()

		for i := 0; i < 3; i++ {
			_, err := bus.Publish(ctx, "sync", fmt.Sprintf("p%d", i))
			require.NoError(t, err)
		}

		assert.Eventually(t, func() bool {
			n, err := bus.Len(ctx)
			return err == nil && n == 0 && h.callCount() >= 3
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("stop terminates the loop", func(t *testing.T) {
		bus := newTestBus(t)
		router, err := NewRouter(3, nil)
		require.NoError(t, err)

		poller := NewPoller(bus, router, 10*time.Millisecond, nil)
		poller.Start(ctx)
		poller.Stop() // must not hang
	})
}
