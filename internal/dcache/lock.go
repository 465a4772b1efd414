package dcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock acquisition errors. ErrLockTimeout is the recoverable case (another
// holder kept the lock for the whole wait window); ErrLockAcquire wraps
// unexpected backend failures during the acquisition attempt itself.
var (
	ErrLockTimeout = errors.New("dcache: lock wait timed out")
	ErrLockAcquire = errors.New("dcache: lock acquire failed")
)

// acquireRetryInterval is how often a waiting acquirer re-attempts SET NX.
const acquireRetryInterval = 25 * time.Millisecond

// LockSettings bounds how long a caller blocks acquiring a distributed
// lock (Wait) and how long the lock is held before automatic expiry
// (Lease). The lease caps the deadlock window left by a crashed holder.
//
// A zero Wait means a single non-blocking attempt; a zero Lease means the
// lock never force-expires and is only released explicitly. Zero/zero is
// the best-effort combination used by the per-entity flush path.
type LockSettings struct {
	Wait  time.Duration
	Lease time.Duration
}

// releaseScript deletes the lock key only when the stored token still
// belongs to this holder, so a holder whose lease expired cannot release a
// lock that has since been granted to someone else.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// lockHandle is one acquisition of a distributed lock.
type lockHandle struct {
	rdb   redis.UniversalClient
	key   string
	token string
}

// acquire attempts to take the lock within s.Wait. The returned handle
// must be released by the caller. Fails with ErrLockTimeout when the wait
// window elapses, with ErrLockAcquire on backend errors, and with the
// context's error when ctx is cancelled mid-wait (a deliberate abort).
func acquire(ctx context.Context, rdb redis.UniversalClient, key string, s LockSettings) (*lockHandle, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(s.Wait)

	for {
		ok, err := rdb.SetNX(ctx, key, token, s.Lease).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %w", ErrLockAcquire, key, err)
		}
		if ok {
			return &lockHandle{rdb: rdb, key: key, token: token}, nil
		}
		if s.Wait <= 0 || !time.Now().Add(acquireRetryInterval).Before(deadline) {
			return nil, fmt.Errorf("%w: key %q after %s", ErrLockTimeout, key, s.Wait)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquireRetryInterval):
		}
	}
}

// release gives the lock back. Safe to call after lease expiry: the
// token check makes it a no-op when the lock moved on.
func (l *lockHandle) release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("dcache: release lock %q: %w", l.key, err)
	}
	return nil
}

// WithLock runs body while holding the lock named by lockKey, releasing it
// unconditionally afterward, even when body panics. Body errors take
// precedence over release errors.
func (c *Client) WithLock(ctx context.Context, lockKey string, s LockSettings, body func(ctx context.Context) error) error {
	lock, err := acquire(ctx, c.rdb, lockKey, s)
	if err != nil {
		return err
	}

	var released bool
	defer func() {
		if !released {
			_ = lock.release(context.WithoutCancel(ctx))
		}
	}()

	if err := body(ctx); err != nil {
		return err
	}

	released = true
	if err := lock.release(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	return nil
}

// TryWithLock makes a single non-blocking acquisition attempt and runs
// body only when it succeeds. The first return reports whether body ran;
// contention is not an error. The lock carries no lease and is released
// explicitly, matching the best-effort per-entity flush semantics.
func (c *Client) TryWithLock(ctx context.Context, lockKey string, body func(ctx context.Context) error) (bool, error) {
	lock, err := acquire(ctx, c.rdb, lockKey, LockSettings{})
	if errors.Is(err, ErrLockTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var released bool
	defer func() {
		if !released {
			_ = lock.release(context.WithoutCancel(ctx))
		}
	}()

	if err := body(ctx); err != nil {
		return true, err
	}

	released = true
	if err := lock.release(context.WithoutCancel(ctx)); err != nil {
		return true, err
	}
	return true, nil
}

// Execute runs body under the lock named by lockKey and returns its typed
// result. Generic counterpart of WithLock for read-modify paths that
// produce a value.
func Execute[T any](ctx context.Context, c *Client, lockKey string, s LockSettings, body func(ctx context.Context, c *Client) (T, error)) (T, error) {
	var out T
	err := c.WithLock(ctx, lockKey, s, func(ctx context.Context) error {
		var bodyErr error
		out, bodyErr = body(ctx, c)
		return bodyErr
	})
	return out, err
}

// GetWithType reads a typed value through the cache. When requireLock is
// false the read proceeds without coordination, which is acceptable on
// read-mostly paths; otherwise reader runs under the lock named by
// lockKey. The fallback supplies the result when reader finds nothing.
func GetWithType[T any](
	ctx context.Context,
	c *Client,
	reader func(ctx context.Context, c *Client) (T, bool, error),
	fallback func() T,
	lockKey string,
	s LockSettings,
	requireLock bool,
) (T, error) {
	var (
		out   T
		found bool
	)

	read := func(ctx context.Context) error {
		var err error
		out, found, err = reader(ctx, c)
		return err
	}

	var err error
	if requireLock {
		err = c.WithLock(ctx, lockKey, s, read)
	} else {
		err = read(ctx)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	if !found {
		return fallback(), nil
	}
	return out, nil
}
