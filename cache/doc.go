// Package cache provides a TTL-keyed response cache with coarse prefix
// invalidation, sized for a small fixed universe of collection-level keys.
package cache
