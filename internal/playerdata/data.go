// Package playerdata implements the coherence core for per-player state.
// See doc.go for complete package documentation.
package playerdata

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrSerialization wraps any failure to encode or decode an entity
// payload. Callers treat it as per-entity and skip rather than abort.
var ErrSerialization = errors.New("playerdata: serialization failed")

// PlayerData is the unit of caching, locking and persistence: one
// player's mutable state, identified by a stable UUID within its owning
// service. The Data map carries the game-specific payload, which this
// layer treats as opaque.
//
// At most one durable copy exists per (UUID, service). Copies held in L1
// or L2 are caches of that record, possibly stale, never authoritative on
// their own.
type PlayerData struct {
	UUID uuid.UUID         `json:"uuid"`
	Data map[string]string `json:"data"`
}

// New creates an empty record for the given player.
func New(id uuid.UUID) *PlayerData {
	return &PlayerData{UUID: id, Data: make(map[string]string)}
}

// Get returns the value stored under key.
func (p *PlayerData) Get(key string) (string, bool) {
	v, ok := p.Data[key]
	return v, ok
}

// Set stores value under key, allocating the map on first use so that
// records deserialized from sparse payloads stay usable.
func (p *PlayerData) Set(key, value string) {
	if p.Data == nil {
		p.Data = make(map[string]string)
	}
	p.Data[key] = value
}

// Serialize encodes the record to its wire form (JSON).
func Serialize(p *PlayerData) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("%w: encode %s: %w", ErrSerialization, p.UUID, err)
	}
	return string(raw), nil
}

// Deserialize decodes a record from its wire form. A record without a
// player UUID is rejected: it could never be addressed or persisted.
func Deserialize(serialized string) (*PlayerData, error) {
	var p PlayerData
	if err := json.Unmarshal([]byte(serialized), &p); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrSerialization, err)
	}
	if p.UUID == uuid.Nil {
		return nil, fmt.Errorf("%w: decode: missing player uuid", ErrSerialization)
	}
	return &p, nil
}
