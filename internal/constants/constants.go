// Package constants holds the default tunables shared across blockwheel's
// public API and its internal collaborators, mirroring the teacher's
// internal/constants package (a single leaf package of named defaults
// instead of magic numbers scattered through the tree).
package constants

// Default configuration constants.
const (
	// DefaultCapacity is the backing file size used when a caller doesn't
	// specify one (64MB).
	DefaultCapacity = 64 * 1024 * 1024

	// DefaultDefragInProgressLimit is the default number of concurrent
	// defrag relocations when defrag is enabled but no explicit limit was
	// configured.
	DefaultDefragInProgressLimit = 4

	// DefaultCacheCapacity is the default number of decoded block payloads
	// the LRU cache holds.
	DefaultCacheCapacity = 1024

	// HeaderOverhead approximates the fixed per-block trailer cost (id,
	// length, checksum) the reference schema spends alongside every
	// payload when deciding placement.
	HeaderOverhead = 24
)

// Pool bucket sizes, in bytes, for the block buffer pool. Buffers larger
// than the top bucket are allocated directly and not pooled.
const (
	PoolBucket4K   = 4 * 1024
	PoolBucket16K  = 16 * 1024
	PoolBucket64K  = 64 * 1024
	PoolBucket256K = 256 * 1024
	PoolBucket1M   = 1024 * 1024
)
