package playerdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dreamware/stratum/internal/stream"
	"github.com/dreamware/stratum/internal/task"
)

// ActionPlayerDataSync tags sync events asking nodes to pull a player's
// latest L2 state into their L1.
const ActionPlayerDataSync = "player-data-sync"

// payloadSeparator joins the service name and player UUID in a sync
// event's payload. Service names must not contain it.
const payloadSeparator = "|"

// FormatSyncPayload encodes (service, player) for the bus.
func FormatSyncPayload(service string, id uuid.UUID) string {
	return service + payloadSeparator + id.String()
}

// ParseSyncPayload decodes a sync event payload back into its parts.
func ParseSyncPayload(payload string) (service string, id uuid.UUID, err error) {
	name, rawID, found := strings.Cut(payload, payloadSeparator)
	if !found || name == "" {
		return "", uuid.Nil, fmt.Errorf("%w: bad sync payload %q", ErrSerialization, payload)
	}
	id, parseErr := uuid.Parse(rawID)
	if parseErr != nil {
		return "", uuid.Nil, fmt.Errorf("%w: bad player id in sync payload %q: %w", ErrSerialization, payload, parseErr)
	}
	return name, id, nil
}

// SyncHandler consumes player-data-sync events: it resolves the named
// service in this process's registry and refreshes the player's L1 entry
// from L2. Refreshing is an overwrite with the latest shared state, so
// duplicate and out-of-order deliveries of the same event converge.
type SyncHandler struct {
	registry *Registry
	logger   *slog.Logger
}

// NewSyncHandler builds the handler over this node's service registry.
func NewSyncHandler(registry *Registry, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{registry: registry, logger: logger}
}

// ActionTag implements stream.Handler.
func (h *SyncHandler) ActionTag() string {
	return ActionPlayerDataSync
}

// RetryAllowed implements stream.Handler. Refreshes can fail transiently
// (lock contention, L2 hiccups), so bounded redelivery is worthwhile.
func (h *SyncHandler) RetryAllowed() bool {
	return true
}

// OnEvent implements stream.Handler. The refresh runs as its own task;
// the completion continuation acknowledges the message only on success,
// so a failed refresh stays on the bus for the retry policy to handle.
//
// A service this node does not host is a no-op, not an error: the message
// is left untouched for the nodes that do host it.
func (h *SyncHandler) OnEvent(ctx context.Context, bus *stream.Bus, id, payload string) error {
	serviceName, playerID, err := ParseSyncPayload(payload)
	if err != nil {
		return err
	}

	svc, ok := h.registry.Lookup(serviceName)
	if !ok {
		h.logger.Debug("sync event for service not hosted here",
			"service", serviceName, "player", playerID, "id", id)
		return nil
	}

	handle := task.Run(func() error {
		return svc.RefreshFromL2(ctx, playerID)
	})
	handle.OnComplete(func(taskErr error) {
		if taskErr != nil {
			h.logger.Error("player data sync failed",
				"service", serviceName, "player", playerID, "id", id, "error", taskErr)
			return
		}
		if ackErr := bus.Ack(ctx, id); ackErr != nil {
			h.logger.Error("failed to ack sync event; it will redeliver",
				"service", serviceName, "player", playerID, "id", id, "error", ackErr)
		}
	})
	return handle.Await(ctx)
}
