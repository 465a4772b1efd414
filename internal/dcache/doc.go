// Package dcache provides the L2 tier of the cache hierarchy: a shared,
// network-reachable key-value store visible to every node, which also
// hosts the distributed locks guarding cross-node mutation.
//
// The backend is Redis. Buckets are plain string keys holding serialized
// entity values; locks are SET NX keys holding a per-acquisition token and
// released via a token-checked script, so an expired holder can never
// release a successor's lock.
//
// # Locking model
//
// LockSettings carries the two timeouts that bound every acquisition:
//
//	Wait  is how long the caller blocks trying to acquire
//	Lease is how long the lock survives a crashed holder
//
// Three access shapes cover the system's needs:
//
//	WithLock     blocks up to Wait, runs body, always releases
//	TryWithLock  makes one non-blocking attempt, skipping on contention
//	GetWithType  reads a typed value under an optional lock with a fallback
//
// TryWithLock reports a skipped acquisition as (false, nil), never as an
// error. Contention on a best-effort path is a normal outcome, not a
// failure.
//
// # Failure taxonomy
//
// ErrLockTimeout is recoverable: the wait window elapsed while another
// node held the lock; callers skip or report their cycle. ErrLockAcquire
// wraps unexpected backend failures during the attempt itself. Context
// cancellation while waiting aborts with the context's error and is
// treated by callers as a deliberate abort of that cycle only.
//
// All mutations of shared state must go through a lock held via this
// package, with two deliberate exceptions: the best-effort per-entity
// flush (TryWithLock, skip on contention) and read-only paths that opt
// out via GetWithType's requireLock=false.
package dcache
