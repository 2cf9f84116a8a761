package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheClosed is returned by writes after Close
	ErrCacheClosed = errors.New("cache closed")
)

// Level represents the cache tier
type Level int

const (
	// LevelL1 is the memory cache
	LevelL1 Level = iota

	// LevelL2 is the disk cache
	LevelL2
)

// String returns the string representation of the cache level
func (l Level) String() string {
	switch l {
	case LevelL1:
		return "L1-Memory"
	case LevelL2:
		return "L2-Disk"
	default:
		return "Unknown"
	}
}

// Stats holds cache performance metrics
type Stats struct {
	Capacity  int64 // Maximum capacity in bytes
	Size      int64 // Current size in bytes
	ItemCount int64 // Number of items in cache

	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64 // hits / (hits + misses)
}

func (s *Stats) computeHitRate() {
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
}

// Config holds configuration for a Manager
type Config struct {
	// MemoryCapacity bounds the L1 cache in bytes.
	MemoryCapacity int64

	// DiskCapacity bounds the L2 cache in bytes. Zero disables L2.
	DiskCapacity int64
	// DiskPath is the L2 directory. Empty disables L2.
	DiskPath string
	// CompressionLevel is the zstd level (1-22). Zero stores raw PCM.
	CompressionLevel int

	// TTL expires entries by age. Zero keeps entries until evicted.
	TTL time.Duration
	// CleanupInterval is how often expired entries are removed.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default cache configuration. DiskPath is left
// empty for the caller to resolve.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,  // 64MB
		DiskCapacity:     512 * 1024 * 1024, // 512MB
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Cache is implemented by both cache levels.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error

	Size() int64
	Contains(key string) bool
	Stats() Stats
}

// Key generates a cache key for synthesized audio. text should already be
// normalized by the caller.
func Key(engine, voice string, sampleRate int, speed float64, text string) string {
	data := fmt.Sprintf("%s|%s|%d|%.2f|%s", engine, voice, sampleRate, speed, text)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}
