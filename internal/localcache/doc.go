// Package localcache provides the L1 tier of the cache hierarchy: a
// bounded, in-memory, per-process map with least-recently-used eviction.
//
// Position in the hierarchy:
//
//	┌───────────────┐   fastest, per-process, lossy
//	│ L1 localcache │   (this package)
//	├───────────────┤
//	│ L2 dcache     │   shared across nodes, holds locks
//	├───────────────┤
//	│ durable store │   system of record
//	└───────────────┘
//
// L1 contents are exclusively owned by the running process: no other node
// ever reads or writes them, so no distributed coordination applies here.
// Within the process the cache is safe for concurrent use by any number of
// goroutines.
//
// Eviction is silent and recency-based. An entry disappearing from L1 is
// never an error; the authoritative copy lives in the distributed tier or
// the durable store, and read paths fall back there on a miss.
//
// ForEach iterates a snapshot rather than the live map. The persistence
// task relies on this: entries added mid-scan may or may not be flushed in
// that cycle, which is acceptable for a best-effort warm path that runs
// again on the next tick.
package localcache
