package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/glasscast/glasscast/internal/telemetry"
)

// Manager coordinates the cache levels. Reads check L1 then L2 and promote
// L2 hits into L1. Writes go to L1 immediately and to L2 in the background.
type Manager struct {
	l1  *MemoryCache
	l2  *DiskCache // nil when disk caching is disabled
	cfg Config

	logger *log.Logger

	// Background work
	writes      sync.WaitGroup
	cleanupStop chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once

	mu    sync.Mutex
	stats ManagerStats

	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// ManagerStats aggregates statistics from all cache levels.
type ManagerStats struct {
	Hits        int64
	Misses      int64
	L1Hits      int64
	L2Hits      int64
	Promotions  int64
	CleanupRuns int64
	LastCleanup time.Time

	L1 Stats
	L2 Stats // zero when disk caching is disabled
}

// HitRate returns hits / (hits + misses).
func (s ManagerStats) HitRate() float64 {
	if total := s.Hits + s.Misses; total > 0 {
		return float64(s.Hits) / float64(total)
	}
	return 0
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a cache manager. Disk caching is enabled when both
// cfg.DiskPath and cfg.DiskCapacity are set.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.MemoryCapacity <= 0 {
		cfg.MemoryCapacity = DefaultConfig().MemoryCapacity
	}

	m := &Manager{
		l1:          NewMemoryCache(cfg.MemoryCapacity),
		cfg:         cfg,
		logger:      log.Default().With("component", "cache"),
		cleanupStop: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.DiskPath != "" && cfg.DiskCapacity > 0 {
		l2, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		m.l2 = l2
	}

	meter := telemetry.Meter("cache")
	m.hits = telemetry.Counter(meter, "glasscast.cache.hits", "Synthesis cache hits")
	m.misses = telemetry.Counter(meter, "glasscast.cache.misses", "Synthesis cache misses")

	if cfg.CleanupInterval > 0 {
		go m.cleanupLoop(cfg.CleanupInterval)
	} else {
		close(m.cleanupDone)
	}
	return m, nil
}

// Get retrieves a value from the cache hierarchy.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.l1.Get(key); ok {
		m.recordHit(LevelL1)
		return data, true
	}

	if m.l2 != nil {
		if data, ok := m.l2.Get(key); ok {
			m.recordHit(LevelL2)
			// Promotion is best-effort.
			if err := m.l1.Put(key, data); err == nil {
				m.mu.Lock()
				m.stats.Promotions++
				m.mu.Unlock()
			}
			return data, true
		}
	}

	m.mu.Lock()
	m.stats.Misses++
	m.mu.Unlock()
	m.misses.Add(context.Background(), 1)
	return nil, false
}

func (m *Manager) recordHit(level Level) {
	m.mu.Lock()
	m.stats.Hits++
	if level == LevelL1 {
		m.stats.L1Hits++
	} else {
		m.stats.L2Hits++
	}
	m.mu.Unlock()
	m.hits.Add(context.Background(), 1, metric.WithAttributes(attribute.String("level", level.String())))
}

// Put stores a value in L1 and schedules the L2 write.
func (m *Manager) Put(key string, value []byte) error {
	if err := m.l1.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("L1 cache error: %w", err)
	}

	if m.l2 != nil {
		m.writes.Add(1)
		go func() {
			defer m.writes.Done()
			if err := m.l2.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
				m.logger.Warn("disk cache write failed", "err", err)
			}
		}()
	}
	return nil
}

// Wait blocks until pending L2 writes have finished.
func (m *Manager) Wait() {
	m.writes.Wait()
}

// Delete removes an entry from all cache levels.
func (m *Manager) Delete(key string) error {
	err := m.l1.Delete(key)
	if m.l2 != nil {
		err = errors.Join(err, m.l2.Delete(key))
	}
	return err
}

// Clear removes all entries from all cache levels.
func (m *Manager) Clear() error {
	m.writes.Wait()
	err := m.l1.Clear()
	if m.l2 != nil {
		err = errors.Join(err, m.l2.Clear())
	}
	return err
}

// Stats returns aggregated statistics from all cache levels.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	stats := m.stats
	m.mu.Unlock()

	stats.L1 = m.l1.Stats()
	if m.l2 != nil {
		stats.L2 = m.l2.Stats()
	}
	return stats
}

// DiskEnabled reports whether an L2 cache is configured.
func (m *Manager) DiskEnabled() bool {
	return m.l2 != nil
}

// Close stops cleanup, waits for pending writes and saves the disk index.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.cleanupStop)
		<-m.cleanupDone
		m.writes.Wait()
		if m.l2 != nil {
			if cerr := m.l2.Close(); cerr != nil {
				err = fmt.Errorf("failed to close disk cache: %w", cerr)
			}
		}
	})
	return err
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.cleanupStop:
			return
		}
	}
}

// Cleanup expires old entries, trims L2 to 90% of its capacity and saves the
// disk index. It runs periodically when CleanupInterval is set.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	m.stats.CleanupRuns++
	m.stats.LastCleanup = time.Now()
	m.mu.Unlock()

	var expired, evicted int
	if m.cfg.TTL > 0 {
		expired = m.l1.Prune(m.cfg.TTL)
	}
	if m.l2 != nil {
		if m.cfg.TTL > 0 {
			expired += m.l2.RemoveOlderThan(time.Now().Add(-m.cfg.TTL))
		}
		evicted = m.l2.EvictLRU()
		if err := m.l2.Sync(); err != nil {
			m.logger.Warn("saving disk cache index failed", "err", err)
		}
	}
	if expired > 0 || evicted > 0 {
		m.logger.Debug("cache cleanup", "expired", expired, "evicted", evicted)
	}
}
