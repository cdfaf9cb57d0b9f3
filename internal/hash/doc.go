// Package hash provides checksum helpers for persisted formats
// (region-map snapshots and disk cache entries).
package hash
