// Package integration exercises the full coherence pipeline with two
// in-process nodes sharing one distributed cache and one durable store,
// the same topology a real fleet has, minus the network.
package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/stratum/internal/dcache"
	"github.com/dreamware/stratum/internal/docstore"
	"github.com/dreamware/stratum/internal/playerdata"
	"github.com/dreamware/stratum/internal/stream"
)

// node is one in-process participant: its own L1, registry and poller,
// sharing Redis and the durable store with the other nodes.
type node struct {
	service *playerdata.Service
	poller  *stream.Poller
}

// testCluster owns the shared backends the nodes plug into.
type testCluster struct {
	mini  *miniredis.Miniredis
	rdb   *redis.Client
	store docstore.Store
}

func newTestCluster(t *testing.T) *testCluster {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := docstore.OpenBolt(filepath.Join(t.TempDir(), "durable.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return &testCluster{mini: mr, rdb: rdb, store: store}
}

// addNode builds one node's full stack. A consuming node runs a poller
// feeding its own sync handler; a publish-only node does not, which keeps
// cross-node tests deterministic (an acknowledged event is gone for
// everyone, so the node under observation must be the one consuming).
func (tc *testCluster) addNode(t *testing.T, service string, consume bool) *node {
	t.Helper()

	bus := stream.NewBus(tc.rdb, "player-data-sync")
	svc, err := playerdata.NewService(playerdata.ServiceConfig{
		Name:         service,
		L2:           dcache.New(tc.rdb),
		Bus:          bus,
		Store:        tc.store,
		LockSettings: dcache.LockSettings{Wait: time.Second, Lease: 10 * time.Second},
	})
	require.NoError(t, err)

	n := &node{service: svc}
	if !consume {
		return n
	}

	registry := playerdata.NewRegistry()
	require.NoError(t, registry.Register(svc))

	router, err := stream.NewRouter(3, nil, playerdata.NewSyncHandler(registry, nil))
	require.NoError(t, err)

	n.poller = stream.NewPoller(bus, router, 20*time.Millisecond, nil)
	n.poller.Start(context.Background())
	t.Cleanup(n.poller.Stop)
	return n
}

// TestCrossNodeSync covers the end-to-end scenario: node A mutates a
// player, the persistence task drains it to L2 and the durable store,
// node A announces it, and node B's L1 converges on the new state with
// the triggering event gone from the stream.
func TestCrossNodeSync(t *testing.T) {
	tc := newTestCluster(t)
	nodeA := tc.addNode(t, "p", false)
	nodeB := tc.addNode(t, "p", true)
	ctx := context.Background()

	// Node A mutates a player in its L1.
	pd := playerdata.New(uuid.New())
	pd.Set("hp", "10")
	nodeA.service.Cache(pd)

	// The persistence task drains L1 → L2 → durable store.
	flushTask := playerdata.NewPersistenceTask(nodeA.service, 0, time.Hour, nil)
	require.NoError(t, flushTask.RunCycle(ctx))

	doc, found, err := tc.store.Load(ctx, "p", pd.UUID.String())
	require.NoError(t, err)
	require.True(t, found)
	durable, err := playerdata.Deserialize(string(doc))
	require.NoError(t, err)
	assert.Equal(t, pd, durable)

	// Node A announces the change; node B's poller picks it up.
	_, err = nodeA.service.PublishSync(ctx, pd.UUID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, ok := nodeB.service.Cached(pd.UUID)
		return ok && got.Data["hp"] == "10"
	}, 5*time.Second, 20*time.Millisecond, "node B never converged")

	// The triggering event was acknowledged off the stream.
	assert.Eventually(t, func() bool {
		n, err := stream.NewBus(tc.rdb, "player-data-sync").Len(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond, "sync event never acknowledged")
}

// TestSyncOverwritesStaleLocalCopy verifies last-writer-wins: a node
// holding an older copy converges on the newest flushed state.
func TestSyncOverwritesStaleLocalCopy(t *testing.T) {
	tc := newTestCluster(t)
	nodeA := tc.addNode(t, "p", false)
	nodeB := tc.addNode(t, "p", true)
	ctx := context.Background()

	id := uuid.New()

	// Node B starts with a stale copy.
	stale := playerdata.New(id)
	stale.Set("hp", "3")
	nodeB.service.Cache(stale)

	// Node A flushes the fresh copy and announces it.
	fresh := playerdata.New(id)
	fresh.Set("hp", "25")
	nodeA.service.Cache(fresh)
	flushed, err := nodeA.service.FlushEntity(ctx, fresh)
	require.NoError(t, err)
	require.True(t, flushed)
	_, err = nodeA.service.PublishSync(ctx, id)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, ok := nodeB.service.Cached(id)
		return ok && got.Data["hp"] == "25"
	}, 5*time.Second, 20*time.Millisecond)
}

// TestFlushCycleSurvivesLockContention verifies that a held durability
// lock fails one cycle without poisoning the next.
func TestFlushCycleSurvivesLockContention(t *testing.T) {
	tc := newTestCluster(t)
	ctx := context.Background()

	svcShortWait, err := playerdata.NewService(playerdata.ServiceConfig{
		Name:         "q",
		L2:           dcache.New(tc.rdb),
		Bus:          stream.NewBus(tc.rdb, "player-data-sync"),
		Store:        tc.store,
		LockSettings: dcache.LockSettings{Wait: 50 * time.Millisecond, Lease: time.Second},
	})
	require.NoError(t, err)
	pd2 := playerdata.New(uuid.New())
	pd2.Set("mp", "4")
	svcShortWait.Cache(pd2)

	flushTask := playerdata.NewPersistenceTask(svcShortWait, 0, time.Hour, nil)

	// Another process holds the service-wide lock.
	require.NoError(t, tc.mini.Set("q-persistence-lock", "other-node"))
	err = flushTask.RunCycle(ctx)
	assert.ErrorIs(t, err, dcache.ErrLockTimeout)

	// Lock freed: the next cycle succeeds.
	tc.mini.Del("q-persistence-lock")
	require.NoError(t, flushTask.RunCycle(ctx))

	_, found, err := tc.store.Load(ctx, "q", pd2.UUID.String())
	require.NoError(t, err)
	assert.True(t, found)
}
