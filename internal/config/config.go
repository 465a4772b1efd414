// Package config loads node configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

// Node is the full configuration of one node process. Every field has an
// environment binding; defaults suit a local single-node setup against a
// local Redis.
type Node struct {
	// NodeID identifies this process in logs. Randomized when unset.
	NodeID string `env:"NODE_ID"`

	// Listen is the HTTP API bind address.
	Listen string `env:"NODE_LISTEN" envDefault:":8090"`

	// RedisAddr and RedisDB locate the shared distributed cache, which
	// also hosts the locks and the sync bus.
	RedisAddr string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// MongoURI selects MongoDB as the durable store when set; otherwise
	// the node falls back to a local bbolt file at BoltPath.
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"stratum"`
	BoltPath      string `env:"BOLT_PATH" envDefault:"stratum.db"`

	// ServiceName names the player-data service this node hosts;
	// SyncTopic is the bus topic carrying its sync events.
	ServiceName string `env:"SERVICE_NAME" envDefault:"player-data-service"`
	SyncTopic   string `env:"SYNC_TOPIC" envDefault:"player-data-sync"`

	// L1Capacity bounds the local cache.
	L1Capacity int `env:"L1_CAPACITY" envDefault:"4096"`

	// PollInterval bounds the sync bus scan loop's idle wait.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"250ms"`

	// FlushDelay and FlushInterval schedule the persistence task.
	FlushDelay    time.Duration `env:"FLUSH_DELAY" envDefault:"30s"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"60s"`

	// LockWait and LockLease are the service's default lock timing,
	// used for the service-wide durability lock.
	LockWait  time.Duration `env:"LOCK_WAIT" envDefault:"5s"`
	LockLease time.Duration `env:"LOCK_LEASE" envDefault:"30s"`

	// SyncMaxRetries caps redelivery attempts per poison message.
	SyncMaxRetries int `env:"SYNC_MAX_RETRIES" envDefault:"3"`
}

// Load parses the environment into a Node config.
func Load() (Node, error) {
	var cfg Node
	if err := env.Parse(&cfg); err != nil {
		return Node{}, fmt.Errorf("config: parse env: %w", err)
	}
	if cfg.NodeID == "" {
		cfg.NodeID = "node-" + uuid.NewString()[:8]
	}
	return cfg, nil
}
