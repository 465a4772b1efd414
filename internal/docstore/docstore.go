// Package docstore abstracts the durable system of record: a
// document-oriented store addressed by entity identifier.
//
// The store sits at the bottom of the cache hierarchy and is written
// less frequently than the cache tiers, only by the persistence task and
// only under the service-wide durability lock. Upserts are keyed by the
// entity identifier, so repeated flushes of the same state are idempotent
// by construction.
//
// Two implementations exist: Mongo for multi-node production deployments
// and Bolt for single-node use and tests.
package docstore

import "context"

// Store is the durable persistence interface. A collection groups the
// documents of one service; id is the entity identifier and the document
// key; doc is the entity's serialized JSON value.
type Store interface {
	// Upsert writes doc under (collection, id), replacing any previous
	// version. Idempotent: re-upserting identical content is a no-op in
	// effect.
	Upsert(ctx context.Context, collection, id string, doc []byte) error

	// Load reads the document under (collection, id). The bool return is
	// false when no document exists, which is not an error.
	Load(ctx context.Context, collection, id string) ([]byte, bool, error)

	// Close releases the underlying connection or file handle.
	Close(ctx context.Context) error
}
