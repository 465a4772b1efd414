// Package dcache wraps the shared distributed cache (L2) and the locks
// layered on it. See doc.go for complete package documentation.
package dcache

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Client provides bucket-style access to the distributed cache shared by
// all nodes. A bucket is a plain string key holding one serialized entity
// value; namespace scans and locks address the same key space (see the
// keys package for the layout).
//
// Client is safe for concurrent use; it carries no mutable state beyond
// the underlying connection pool.
type Client struct {
	rdb redis.UniversalClient
}

// New wraps an established Redis client. The caller owns the connection's
// lifecycle.
func New(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

// SetBucket writes a serialized value under key. The value has no TTL:
// buckets are drained to the durable store by the persistence task, not
// expired.
func (c *Client) SetBucket(ctx context.Context, key, value string) error {
	if err := c.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("dcache: set bucket %q: %w", key, err)
	}
	return nil
}

// GetBucket reads the serialized value under key. The second return is
// false when the key does not exist, which is not an error.
func (c *Client) GetBucket(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dcache: get bucket %q: %w", key, err)
	}
	return val, true, nil
}

// DeleteBucket removes key. Deleting an absent key is a no-op.
func (c *Client) DeleteBucket(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("dcache: delete bucket %q: %w", key, err)
	}
	return nil
}

// ScanPattern returns every key matching the glob pattern, sorted for
// deterministic iteration. The scan is cursor-based and may observe keys
// added or removed while it runs; persistence cycles tolerate that because
// upserts are idempotent and the next cycle rescans.
func (c *Client) ScanPattern(ctx context.Context, pattern string) ([]string, error) {
	var found []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		found = append(found, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("dcache: scan %q: %w", pattern, err)
	}
	sort.Strings(found)
	return found, nil
}

// Ping verifies connectivity to the backend.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("dcache: ping: %w", err)
	}
	return nil
}
