// Package main implements the stratum node service: one process in the
// fleet that keeps player data coherent across nodes sharing a Redis
// deployment and a durable document store.
//
// Each node owns a private L1 cache of the players it is actively
// serving, participates in the shared L2 cache and sync bus, and runs
// the periodic persistence task that drains cached state into the
// durable store.
//
// HTTP API:
//   - GET  /health         - liveness check
//   - GET  /info           - node id, hosted services, cache stats
//   - GET  /players/{uuid} - read a player's record through the tiers
//   - PUT  /players/{uuid} - replace a player's record locally, flush it
//     to L2 and announce it on the sync bus
//
// Configuration (environment):
//   - NODE_ID: node identifier for logs (default: generated)
//   - NODE_LISTEN: HTTP bind address (default: ":8090")
//   - REDIS_ADDR / REDIS_DB: shared cache, locks and sync bus
//   - MONGO_URI / MONGO_DATABASE: durable store; falls back to a local
//     bbolt file at BOLT_PATH when MONGO_URI is unset
//   - SERVICE_NAME / SYNC_TOPIC: hosted service and its bus topic
//   - FLUSH_DELAY / FLUSH_INTERVAL: persistence task schedule
//   - LOCK_WAIT / LOCK_LEASE: service-wide durability lock timing
//   - POLL_INTERVAL / SYNC_MAX_RETRIES: bus consumption tuning
//
// Example:
//
//	REDIS_ADDR=redis.internal:6379 \
//	MONGO_URI=mongodb://mongo.internal:27017 \
//	SERVICE_NAME=player-data-service \
//	./node
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/stratum/internal/config"
	"github.com/dreamware/stratum/internal/dcache"
	"github.com/dreamware/stratum/internal/docstore"
	"github.com/dreamware/stratum/internal/playerdata"
	"github.com/dreamware/stratum/internal/stream"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("node exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger = logger.With("node", cfg.NodeID)

	// Shared distributed cache: buckets, locks and the sync bus all live
	// on the same Redis deployment.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	l2 := dcache.New(rdb)
	if err := l2.Ping(ctx); err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	bus := stream.NewBus(rdb, cfg.SyncTopic)

	svc, err := playerdata.NewService(playerdata.ServiceConfig{
		Name:       cfg.ServiceName,
		L1Capacity: cfg.L1Capacity,
		L2:         l2,
		Bus:        bus,
		Store:      store,
		LockSettings: dcache.LockSettings{
			Wait:  cfg.LockWait,
			Lease: cfg.LockLease,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	registry := playerdata.NewRegistry()
	if err := registry.Register(svc); err != nil {
		return err
	}

	router, err := stream.NewRouter(cfg.SyncMaxRetries, logger,
		playerdata.NewSyncHandler(registry, logger),
	)
	if err != nil {
		return err
	}

	poller := stream.NewPoller(bus, router, cfg.PollInterval, logger)
	poller.Start(ctx)
	defer poller.Stop()

	flusher := playerdata.NewPersistenceTask(svc, cfg.FlushDelay, cfg.FlushInterval, logger).Start(ctx)
	defer flusher.Stop()

	api := &api{node: cfg.NodeID, service: svc, bus: bus, registry: registry, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /info", api.handleInfo)
	mux.HandleFunc("GET /players/{id}", api.handleGetPlayer)
	mux.HandleFunc("PUT /players/{id}", api.handlePutPlayer)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("node listening", "addr", cfg.Listen, "service", cfg.ServiceName)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore picks the durable backend: MongoDB when configured, local
// bbolt otherwise.
func openStore(ctx context.Context, cfg config.Node, logger *slog.Logger) (docstore.Store, error) {
	if cfg.MongoURI != "" {
		logger.Info("using mongodb durable store", "database", cfg.MongoDatabase)
		return docstore.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	}
	logger.Info("using bbolt durable store", "path", cfg.BoltPath)
	return docstore.OpenBolt(cfg.BoltPath)
}

// api carries the HTTP handlers' dependencies.
type api struct {
	node     string
	service  *playerdata.Service
	bus      *stream.Bus
	registry *playerdata.Registry
	logger   *slog.Logger
}

// handleInfo reports node identity and cache health for monitoring.
func (a *api) handleInfo(w http.ResponseWriter, r *http.Request) {
	pending, err := a.bus.Len(r.Context())
	if err != nil {
		a.logger.Warn("info: bus length unavailable", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"node":        a.node,
		"services":    a.registry.Names(),
		"l1":          a.service.L1Stats(),
		"bus_topic":   a.bus.Topic(),
		"bus_pending": pending,
	})
}

// handleGetPlayer reads a record through L1 → L2 → durable store.
func (a *api) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid player id", http.StatusBadRequest)
		return
	}

	pd, err := a.service.Load(r.Context(), id)
	if errors.Is(err, playerdata.ErrNotFound) {
		http.Error(w, "player not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.Error("load player failed", "player", id, "error", err)
		http.Error(w, "load failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pd)
}

// handlePutPlayer replaces a player's record on this node, pushes it to
// L2 and announces it so other nodes refresh their copies. The L2 flush
// is best-effort: on contention the record still lands locally and the
// next persistence cycle retries.
func (a *api) handlePutPlayer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid player id", http.StatusBadRequest)
		return
	}

	var data map[string]string
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return
	}

	pd := playerdata.New(id)
	pd.Data = data
	a.service.Cache(pd)

	flushed, err := a.service.FlushEntity(r.Context(), pd)
	if err != nil {
		a.logger.Error("flush after put failed", "player", id, "error", err)
	} else if !flushed {
		a.logger.Debug("flush after put skipped on contention", "player", id)
	}

	if _, err := a.service.PublishSync(r.Context(), id); err != nil {
		a.logger.Error("publish sync after put failed", "player", id, "error", err)
	}

	writeJSON(w, http.StatusOK, pd)
}

// writeJSON sends v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
