package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const indexFile = "cache.index"

// DiskCache is the L2 cache. Values are stored one file per entry,
// optionally zstd-compressed, with a gob-encoded index that is rewritten on
// Close so entries survive restarts.
type DiskCache struct {
	basePath string
	capacity int64 // Maximum size in bytes, measured on disk
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu     sync.Mutex
	stats  Stats
	closed bool
}

// diskEntry is one record in the index. Fields are exported for gob.
type diskEntry struct {
	Key          string
	File         string // Relative to the cache directory
	Size         int64  // Size on disk
	OriginalSize int64
	Timestamp    time.Time
	LastAccess   time.Time
	Compressed   bool
}

// NewDiskCache opens or creates a disk cache in basePath. A compression level
// of zero stores values uncompressed.
func NewDiskCache(basePath string, capacity int64, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		basePath: basePath,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		stats:    Stats{Capacity: capacity},
	}

	if compressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// Entries written by an earlier run may be compressed even when
	// compression is now off.
	var err error
	dc.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	if err := dc.loadIndex(); err != nil {
		// An unreadable index only costs the previous run's entries.
		dc.index = make(map[string]*diskEntry)
	}
	dc.dropMissing()
	return dc, nil
}

// Get retrieves a value from the disk cache.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok || dc.closed {
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(dc.path(entry))
	if err == nil && entry.Compressed {
		data, err = dc.decoder.DecodeAll(data, nil)
	}
	if err != nil || int64(len(data)) != entry.OriginalSize {
		dc.removeLocked(key, entry)
		dc.stats.Misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	dc.stats.Hits++
	return data, true
}

// Put stores a value in the disk cache.
func (dc *DiskCache) Put(key string, value []byte) error {
	data, compressed := value, false
	if dc.encoder != nil && len(value) > 1024 {
		if c := dc.encoder.EncodeAll(value, nil); len(c) < len(value) {
			data, compressed = c, true
		}
	}
	diskSize := int64(len(data))
	if diskSize > dc.capacity {
		return ErrItemTooLarge
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return ErrCacheClosed
	}
	if existing, ok := dc.index[key]; ok {
		dc.removeLocked(key, existing)
	}
	for dc.size+diskSize > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	entry := &diskEntry{
		Key:          key,
		File:         fileName(key),
		Size:         diskSize,
		OriginalSize: int64(len(value)),
		Timestamp:    time.Now(),
		LastAccess:   time.Now(),
		Compressed:   compressed,
	}
	if err := writeFileAtomic(dc.path(entry), data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	dc.index[key] = entry
	dc.size += diskSize
	return nil
}

// Delete removes an entry from the disk cache.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if entry, ok := dc.index[key]; ok {
		dc.removeLocked(key, entry)
	}
	return nil
}

// Clear removes all entries from the disk cache.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for key, entry := range dc.index {
		dc.removeLocked(key, entry)
	}
	return dc.saveIndex()
}

// Size returns the current cache size in bytes.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.size
}

// Contains checks if a key exists in the cache without updating access time.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	_, ok := dc.index[key]
	return ok
}

// Stats returns cache statistics.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stats := dc.stats
	stats.Size = dc.size
	stats.ItemCount = int64(len(dc.index))
	stats.computeHitRate()
	return stats
}

// RemoveOlderThan removes entries written before cutoff.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for key, entry := range dc.index {
		if entry.Timestamp.Before(cutoff) {
			dc.removeLocked(key, entry)
			removed++
		}
	}
	return removed
}

// EvictLRU evicts least recently used entries until the cache is at 90% of
// its capacity.
func (dc *DiskCache) EvictLRU() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	target := dc.capacity * 90 / 100
	if dc.size <= target {
		return 0
	}

	entries := make([]*diskEntry, 0, len(dc.index))
	for _, entry := range dc.index {
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b *diskEntry) int {
		return a.LastAccess.Compare(b.LastAccess)
	})

	evicted := 0
	for _, entry := range entries {
		if dc.size <= target {
			break
		}
		dc.removeLocked(entry.Key, entry)
		dc.stats.Evictions++
		evicted++
	}
	return evicted
}

// Sync writes the index to disk.
func (dc *DiskCache) Sync() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.saveIndex()
}

// Close saves the index. Later writes fail with ErrCacheClosed.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return nil
	}
	dc.closed = true
	dc.decoder.Close()
	return dc.saveIndex()
}

func (dc *DiskCache) path(entry *diskEntry) string {
	return filepath.Join(dc.basePath, entry.File)
}

// fileName shards entries by the first byte of the hashed key.
func fileName(key string) string {
	hash := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(hash[:16])
	return filepath.Join(name[:2], name+".pcm")
}

func (dc *DiskCache) removeLocked(key string, entry *diskEntry) {
	_ = os.Remove(dc.path(entry))
	delete(dc.index, key)
	dc.size -= entry.Size
}

func (dc *DiskCache) evictOldest() {
	var oldest *diskEntry
	for _, entry := range dc.index {
		if oldest == nil || entry.LastAccess.Before(oldest.LastAccess) {
			oldest = entry
		}
	}
	if oldest != nil {
		dc.removeLocked(oldest.Key, oldest)
		dc.stats.Evictions++
	}
}

// dropMissing forgets index entries whose files are gone and recomputes the
// size.
func (dc *DiskCache) dropMissing() {
	dc.size = 0
	for key, entry := range dc.index {
		if _, err := os.Stat(dc.path(entry)); err != nil {
			delete(dc.index, key)
			continue
		}
		dc.size += entry.Size
	}
}

func (dc *DiskCache) loadIndex() error {
	file, err := os.Open(filepath.Join(dc.basePath, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	return gob.NewDecoder(file).Decode(&dc.index)
}

func (dc *DiskCache) saveIndex() error {
	indexPath := filepath.Join(dc.basePath, indexFile)
	tempPath := indexPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	err = gob.NewEncoder(file).Encode(dc.index)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, indexPath)
}

// writeFileAtomic writes to a temp file first, then renames it into place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}

var _ Cache = (*DiskCache)(nil)
