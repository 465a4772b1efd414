// Package stream implements the cross-node sync bus and its message
// router. See doc.go for complete package documentation.
package stream

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Wire field names for stream entries.
const (
	fieldAction  = "act"
	fieldPayload = "data"
)

// Message is one entry on the sync bus. IDs are assigned by the stream,
// strictly increase within a topic, and identify the entry for
// acknowledgment and retry accounting.
type Message struct {
	ID      string // stream-assigned, totally ordered within the topic
	Action  string // routes to the registered handler
	Payload string // opaque handler-defined payload
}

// Bus is an ordered, durable, multi-producer append log over one Redis
// stream. Entries stay visible to every consumer until explicitly removed
// by id, so delivery is at-least-once and consumers must be idempotent.
type Bus struct {
	rdb   redis.UniversalClient
	topic string
}

// NewBus binds a bus to one logical topic.
func NewBus(rdb redis.UniversalClient, topic string) *Bus {
	return &Bus{rdb: rdb, topic: topic}
}

// Topic returns the bus's topic name.
func (b *Bus) Topic() string {
	return b.topic
}

// Publish appends an event and returns the id the stream assigned to it.
func (b *Bus) Publish(ctx context.Context, action, payload string) (string, error) {
	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.topic,
		Values: map[string]any{fieldAction: action, fieldPayload: payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("stream: publish %q to %q: %w", action, b.topic, err)
	}
	return id, nil
}

// ReadAll returns every entry currently on the topic in id order. Because
// acknowledged entries are deleted, the result is exactly the set of
// not-yet-acknowledged events; entries seen in an earlier read reappear
// until someone acknowledges them.
func (b *Bus) ReadAll(ctx context.Context) ([]Message, error) {
	raw, err := b.rdb.XRange(ctx, b.topic, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("stream: read %q: %w", b.topic, err)
	}

	msgs := make([]Message, 0, len(raw))
	for _, entry := range raw {
		m := Message{ID: entry.ID}
		if v, ok := entry.Values[fieldAction].(string); ok {
			m.Action = v
		}
		if v, ok := entry.Values[fieldPayload].(string); ok {
			m.Payload = v
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Ack acknowledges an entry, permanently removing it from the topic.
// Acknowledging an already-removed id is a no-op, which keeps duplicate
// completion signals harmless.
func (b *Bus) Ack(ctx context.Context, id string) error {
	if err := b.rdb.XDel(ctx, b.topic, id).Err(); err != nil {
		return fmt.Errorf("stream: ack %q on %q: %w", id, b.topic, err)
	}
	return nil
}

// Len reports how many entries are currently unacknowledged on the topic.
func (b *Bus) Len(ctx context.Context) (int64, error) {
	n, err := b.rdb.XLen(ctx, b.topic).Result()
	if err != nil {
		return 0, fmt.Errorf("stream: len %q: %w", b.topic, err)
	}
	return n, nil
}
