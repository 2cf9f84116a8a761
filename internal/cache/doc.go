// Package cache provides a two-level cache for synthesized PCM: an in-memory
// LRU (L1) bounded by bytes and a zstd-compressed disk cache (L2) that
// survives restarts.
package cache
