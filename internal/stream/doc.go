// Package stream implements the event bus that carries cross-node
// synchronization traffic, and the router that turns bus entries into
// handler invocations.
//
// # Delivery model
//
// The bus is a Redis stream per logical topic. Producers append
// (action, payload) pairs; the stream assigns each entry a strictly
// increasing id. Entries are never consumed implicitly: they remain on
// the topic, visible to every node, until something acknowledges them by
// id, which deletes them permanently.
//
// Consumption is a poll loop (one per topic per process) that re-reads
// all unacknowledged entries each cycle, in id order, and dispatches them
// through the router. The combination yields at-least-once delivery with
// possible duplicates and redelivery after failure, which is why every
// handler must be idempotent. "Overwrite with the latest state" is safe;
// append-style effects are not permitted on this bus.
//
// # Routing and retry policy
//
// The router holds an explicit action-tag → handler table fixed at
// construction. For each delivery:
//
//	no handler registered   → drop (ack + warn); a missing handler is a
//	                          permanent condition, not worth redelivery
//	handler succeeds        → nothing; the handler acknowledged the entry
//	                          itself once its work was durably complete
//	fails, retry disallowed → drop (ack + error log) after this attempt
//	fails, retry allowed    → leave unacknowledged; redelivered next
//	                          cycle, dropped with an error log once the
//	                          per-message attempt cap is exceeded
//
// Retry accounting is per message id, in-process, and purged when the
// entry leaves the stream, so the bookkeeping is bounded by topic length.
//
// Ordering is guaranteed within a topic only. The persistence task's
// flushes may race sync-driven L1 overwrites; both converge on the same
// L2 and durable values, so last-write-wins is acceptable there.
package stream
