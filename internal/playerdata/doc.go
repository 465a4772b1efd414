// Package playerdata keeps per-player mutable state consistent across
// independent node processes that share a distributed cache and one
// durable store.
//
// # Tiers
//
// Each node mutates player records in its private L1 (see localcache).
// The shared L2 (see dcache) is the cross-node source of truth for hot
// state and hosts the distributed locks. The durable store (see
// docstore) is the system of record, written only by the persistence
// task.
//
// # Coherence protocol
//
// When a node decides other nodes need a player's freshest copy, it
// flushes the record to L2 and publishes a sync event on the bus naming
// (service, player). Every node polls the bus; nodes hosting the named
// service refresh their L1 from L2 and acknowledge the event. Nodes that
// do not host it leave the event alone.
//
//	node A                    L2 / bus                    node B
//	──────                    ────────                    ──────
//	mutate in L1
//	FlushEntity ────────────▶ bucket
//	PublishSync ────────────▶ event ──────(poll)────────▶ SyncHandler
//	                          bucket ◀────(read)───────── RefreshFromL2
//	                          event  ◀────(ack)─────────  install in L1
//
// Independently, the persistence task drains L1 → L2 (best-effort,
// per-entity try-lock) and L2 → durable store (service-wide lock,
// namespace scan, idempotent upserts) on a fixed schedule.
//
// # Consistency stance
//
// Delivery on the bus is at-least-once, so every effect applied by a
// handler is an overwrite with the latest shared state, idempotent and
// safe under duplicates. Sync-driven L1 overwrites may race a flush
// cycle; both converge on the same L2 and durable values, so the design
// accepts last-write-wins rather than serializing the two paths.
//
// Failure policy follows the tier being touched: per-entity errors on
// best-effort paths are skipped and logged; errors on the durability
// path fail that cycle loudly and leave the next cycle to catch up; no
// failure here ever terminates the process.
package playerdata
