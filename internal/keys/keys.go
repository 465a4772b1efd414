// Package keys implements deterministic key derivation for the distributed
// cache tier. See doc.go for complete package documentation.
package keys

import (
	"fmt"
	"strings"
)

// Role tags partition a service's key space in the distributed cache.
// Distinct (service, role) pairs never produce colliding keys.
const (
	// RoleBucket is the role under which serialized entity values are
	// stored. It doubles as the service's scan namespace: every bucket
	// key starts with the prefix returned by ServicePrefix, and nothing
	// else does.
	RoleBucket = "lpds"

	// RoleSyncLock guards the per-entity best-effort flush and refresh
	// paths. Lives outside the bucket namespace so namespace scans never
	// pick up lock keys.
	RoleSyncLock = "sync-lock"

	// RoleLock is the general-purpose per-entity mutual exclusion key.
	RoleLock = "lock"
)

// Entity derives the distributed-cache key for one entity under the given
// role. The layout is "{service}-{role}-{id}", so keys are human-inspectable
// in redis-cli and collision-free across services and roles as long as
// service names contain no "-lpds-", "-sync-lock-" or "-lock-" infix of
// their own.
//
// Inputs must be non-empty; Entity does not validate them because callers
// (Service construction, UUID parsing) already have.
func Entity(service, role, id string) string {
	return fmt.Sprintf("%s-%s-%s", service, role, id)
}

// Bucket derives the key holding an entity's serialized value.
func Bucket(service, id string) string {
	return Entity(service, RoleBucket, id)
}

// SyncLock derives the per-entity lock key used by the best-effort
// L1→L2 flush and the L2→L1 refresh.
func SyncLock(service, id string) string {
	return Entity(service, RoleSyncLock, id)
}

// ServicePrefix returns the prefix shared by every bucket key of the
// service. A key belongs to the service's persistable namespace exactly
// when strings.HasPrefix(key, ServicePrefix(service)).
func ServicePrefix(service string) string {
	return service + "-" + RoleBucket + "-"
}

// ServicePattern returns the glob pattern ("{service}-lpds-*") used to
// scan the service's full bucket namespace in the distributed cache.
func ServicePattern(service string) string {
	return ServicePrefix(service) + "*"
}

// PersistenceLock returns the service-wide lock key guarding the
// L2→durable-store flush phase. There is exactly one such key per service,
// shared by every node.
func PersistenceLock(service string) string {
	return service + "-persistence-lock"
}

// EntityID extracts the entity id from a bucket key previously produced by
// Bucket. The second return is false when the key is not part of the
// service's bucket namespace.
func EntityID(service, bucketKey string) (string, bool) {
	prefix := ServicePrefix(service)
	if !strings.HasPrefix(bucketKey, prefix) || len(bucketKey) == len(prefix) {
		return "", false
	}
	return bucketKey[len(prefix):], true
}
