package playerdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dreamware/stratum/internal/keys"
	"github.com/dreamware/stratum/internal/task"
)

// PersistenceTask periodically drains the cache tiers toward durability
// in two phases:
//
//  1. L1 → L2: every record currently in the local cache is serialized
//     and written to its L2 bucket under a single non-blocking attempt at
//     the entity's sync lock. Contention or per-entity failure skips that
//     entity for this cycle; the warm path is best-effort.
//  2. L2 → durable store: under the single service-wide persistence
//     lock, scan the service's full bucket namespace and upsert every
//     record into the system of record. This phase is the only road to
//     durability, so it never silently skips: failure to take the lock,
//     or any scan/write error, fails the whole cycle.
//
// A failed cycle is reported and logged; the schedule always continues to
// the next tick.
type PersistenceTask struct {
	service  *Service
	delay    time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// NewPersistenceTask builds the task for one service. The service-wide
// lock uses the service's default lock settings.
func NewPersistenceTask(service *Service, delay, interval time.Duration, logger *slog.Logger) *PersistenceTask {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistenceTask{
		service:  service,
		delay:    delay,
		interval: interval,
		logger:   logger,
	}
}

// Start schedules the task. The returned scheduler stops it.
func (t *PersistenceTask) Start(ctx context.Context) *task.Scheduler {
	name := "persistence-" + t.service.Name()
	return task.Schedule(ctx, name, t.delay, t.interval, t.logger, t.RunCycle)
}

// RunCycle executes one full flush cycle. Exported so tests and
// administrative endpoints can force a flush outside the schedule.
func (t *PersistenceTask) RunCycle(ctx context.Context) error {
	t.flushL1(ctx)
	if err := t.flushDurable(ctx); err != nil {
		return fmt.Errorf("playerdata: persistence cycle for %q: %w", t.service.Name(), err)
	}
	return nil
}

// flushL1 runs phase one over a snapshot of the local cache. Entries
// added mid-scan may or may not be included; they are caught next cycle.
// Per-entity problems are logged and skipped, never abort the cycle.
func (t *PersistenceTask) flushL1(ctx context.Context) {
	t.service.l1.ForEach(func(_ string, pd *PlayerData) bool {
		flushed, err := t.service.FlushEntity(ctx, pd)
		switch {
		case err != nil:
			t.logger.Warn("skipping entity during L1 flush",
				"service", t.service.Name(), "player", pd.UUID, "error", err)
		case !flushed:
			t.logger.Debug("entity sync lock contended, skipping this cycle",
				"service", t.service.Name(), "player", pd.UUID)
		}
		return ctx.Err() == nil
	})
}

// flushDurable runs phase two under the service-wide persistence lock.
func (t *PersistenceTask) flushDurable(ctx context.Context) error {
	svc := t.service
	lockKey := keys.PersistenceLock(svc.Name())

	return svc.l2.WithLock(ctx, lockKey, svc.LockSettings(), func(ctx context.Context) error {
		bucketKeys, err := svc.l2.ScanPattern(ctx, keys.ServicePattern(svc.Name()))
		if err != nil {
			return err
		}

		for _, bucketKey := range bucketKeys {
			id, ok := keys.EntityID(svc.Name(), bucketKey)
			if !ok {
				// SCAN matched a key outside the bucket layout.
				continue
			}

			serialized, found, err := svc.l2.GetBucket(ctx, bucketKey)
			if err != nil {
				return err
			}
			if !found {
				// Deleted between scan and read; nothing to persist.
				continue
			}

			if _, err := Deserialize(serialized); err != nil {
				// Corrupt entity: skip it rather than blocking every
				// other player's durability behind it.
				t.logger.Warn("skipping undecodable entity during durable flush",
					"service", svc.Name(), "key", bucketKey, "error", err)
				continue
			}

			if err := svc.store.Upsert(ctx, svc.Name(), id, []byte(serialized)); err != nil {
				return fmt.Errorf("durable write for player %s: %w", id, err)
			}
		}
		return nil
	})
}
