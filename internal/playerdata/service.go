package playerdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dreamware/stratum/internal/dcache"
	"github.com/dreamware/stratum/internal/docstore"
	"github.com/dreamware/stratum/internal/keys"
	"github.com/dreamware/stratum/internal/localcache"
	"github.com/dreamware/stratum/internal/stream"
)

// ErrNotFound is returned by Load when a player has no record in any
// tier.
var ErrNotFound = errors.New("playerdata: not found")

// defaultSyncLockSettings bounds the per-entity lock taken while
// refreshing a record from L2. Short on both sides: a refresh is
// best-effort and must never stall the bus poll pipeline.
var defaultSyncLockSettings = dcache.LockSettings{
	Wait:  100 * time.Millisecond,
	Lease: time.Second,
}

// ServiceConfig carries the collaborators a Service binds together.
type ServiceConfig struct {
	// Name identifies the service across all nodes; it scopes every
	// derived key and the durable collection. Required.
	Name string

	// L1Capacity bounds the local cache; non-positive uses the
	// localcache default.
	L1Capacity int

	// L2 is the shared distributed cache client. Required.
	L2 *dcache.Client

	// Bus carries this service's sync events. Required.
	Bus *stream.Bus

	// Store is the durable system of record. Required.
	Store docstore.Store

	// LockSettings are the service defaults, used for the service-wide
	// durability lock. Zero values are legal (single attempt, no lease)
	// but almost never what a production service wants.
	LockSettings dcache.LockSettings

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Service binds one named player-data domain to its three storage tiers:
// a private L1 cache, the shared L2 cache (which also hosts the locks),
// and the durable store, plus the sync bus and default lock timing.
//
// Every node hosting the same game data runs its own Service instance
// under the same name. Instances share only L2, the bus and the durable
// store; L1 is strictly per-process.
type Service struct {
	name     string
	l1       *localcache.Cache[*PlayerData]
	l2       *dcache.Client
	bus      *stream.Bus
	store    docstore.Store
	locks    dcache.LockSettings
	syncLock dcache.LockSettings
	logger   *slog.Logger
	sf       singleflight.Group
}

// NewService validates cfg and builds the service binding.
func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Name == "":
		return nil, errors.New("playerdata: service name is required")
	case cfg.L2 == nil:
		return nil, errors.New("playerdata: L2 client is required")
	case cfg.Bus == nil:
		return nil, errors.New("playerdata: sync bus is required")
	case cfg.Store == nil:
		return nil, errors.New("playerdata: durable store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		name:     cfg.Name,
		l1:       localcache.New[*PlayerData](cfg.L1Capacity),
		l2:       cfg.L2,
		bus:      cfg.Bus,
		store:    cfg.Store,
		locks:    cfg.LockSettings,
		syncLock: defaultSyncLockSettings,
		logger:   logger,
	}, nil
}

// Name returns the service's registered name.
func (s *Service) Name() string {
	return s.name
}

// LockSettings returns the service's default lock timing.
func (s *Service) LockSettings() dcache.LockSettings {
	return s.locks
}

// Cache installs a record into this node's L1, overwriting any existing
// local copy. L1 is the write path's front door: mutations land here and
// reach L2 and the durable store through the flush pipeline.
func (s *Service) Cache(pd *PlayerData) {
	s.l1.Put(pd.UUID.String(), pd)
}

// Cached returns the record currently in L1, if any. No fallback to the
// other tiers.
func (s *Service) Cached(id uuid.UUID) (*PlayerData, bool) {
	return s.l1.Get(id.String())
}

// Load reads a player's record through the tiers: L1, then L2 (an
// uncoordinated read, acceptable on this read-mostly path), then the
// durable store, installing whatever it finds into L1. Concurrent loads
// of the same player collapse into one lookup. Returns ErrNotFound when
// no tier has the record.
func (s *Service) Load(ctx context.Context, id uuid.UUID) (*PlayerData, error) {
	key := id.String()
	if pd, ok := s.l1.Get(key); ok {
		return pd, nil
	}

	v, err, _ := s.sf.Do(key, func() (any, error) {
		// Recheck under the flight: another caller may have loaded it.
		if pd, ok := s.l1.Get(key); ok {
			return pd, nil
		}

		pd, err := s.loadRemote(ctx, id)
		if err != nil {
			return nil, err
		}
		s.l1.Put(key, pd)
		return pd, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*PlayerData), nil
}

// loadRemote reads the record from L2, falling back to the durable store.
func (s *Service) loadRemote(ctx context.Context, id uuid.UUID) (*PlayerData, error) {
	serialized, found, err := s.l2.GetBucket(ctx, keys.Bucket(s.name, id.String()))
	if err != nil {
		return nil, err
	}
	if found {
		return Deserialize(serialized)
	}

	doc, found, err := s.store.Load(ctx, s.name, id.String())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: player %s in service %q", ErrNotFound, id, s.name)
	}
	return Deserialize(string(doc))
}

// FlushEntity serializes a record and writes it into L2 under a single
// non-blocking attempt at the entity's sync lock. When another node or
// task holds the lock the write is skipped, not blocked on: this entity
// will be flushed again on the next persistence cycle. The first return
// reports whether the write happened.
func (s *Service) FlushEntity(ctx context.Context, pd *PlayerData) (bool, error) {
	serialized, err := Serialize(pd)
	if err != nil {
		return false, err
	}

	id := pd.UUID.String()
	bucketKey := keys.Bucket(s.name, id)
	return s.l2.TryWithLock(ctx, keys.SyncLock(s.name, id), func(ctx context.Context) error {
		return s.l2.SetBucket(ctx, bucketKey, serialized)
	})
}

// RefreshFromL2 pulls a player's latest serialized state out of L2 and
// installs it into this node's L1, overwriting any local copy:
// last-writer-wins at the granularity of the most recent sync event
// observed locally. A missing bucket is a no-op; there is nothing newer
// to install. The read runs under the entity's sync lock with short
// best-effort timing.
//
// The overwrite makes this operation naturally idempotent, which the
// at-least-once sync bus requires.
func (s *Service) RefreshFromL2(ctx context.Context, id uuid.UUID) error {
	bucketKey := keys.Bucket(s.name, id.String())

	serialized, err := dcache.GetWithType(ctx, s.l2,
		func(ctx context.Context, c *dcache.Client) (string, bool, error) {
			return c.GetBucket(ctx, bucketKey)
		},
		func() string { return "" },
		keys.SyncLock(s.name, id.String()),
		s.syncLock,
		true,
	)
	if err != nil {
		return fmt.Errorf("playerdata: refresh %s: %w", id, err)
	}
	if serialized == "" {
		s.logger.Debug("no L2 state to sync", "service", s.name, "player", id)
		return nil
	}

	pd, err := Deserialize(serialized)
	if err != nil {
		return fmt.Errorf("playerdata: refresh %s: %w", id, err)
	}
	s.l1.Put(id.String(), pd)
	return nil
}

// PublishSync announces on the bus that other nodes hosting this service
// should pull the player's latest L2 state into their L1. Callers usually
// flush the entity first so the announcement points at fresh data.
func (s *Service) PublishSync(ctx context.Context, id uuid.UUID) (string, error) {
	return s.bus.Publish(ctx, ActionPlayerDataSync, FormatSyncPayload(s.name, id))
}

// L1Stats exposes local cache counters for the node's info endpoint.
func (s *Service) L1Stats() localcache.Stats {
	return s.l1.Stats()
}
