// Package keys derives the composite string keys that address entity state
// in the shared distributed cache.
//
// Every key is built from three parts: the owning service's name, a role
// tag, and the entity identifier, joined as "{service}-{role}-{id}".
// The role tag keeps the different uses of the cache from colliding:
//
//	player-data-service-lpds-5f2c...        serialized entity value (bucket)
//	player-data-service-sync-lock-5f2c...   per-entity flush/refresh lock
//	player-data-service-lock-5f2c...        general per-entity lock
//	player-data-service-persistence-lock    service-wide durability lock
//
// The bucket role is "lpds" so that a single glob pattern,
// "{service}-lpds-*", scans exactly the set of serialized values a
// persistence cycle must drain to the durable store. Lock keys are laid
// out under different role tags and are therefore invisible to that scan.
//
// All functions are pure: no state, no I/O, no failure modes. Callers are
// responsible for supplying non-empty service names and identifiers.
package keys
