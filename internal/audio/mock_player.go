package audio

import (
	"sync"
	"sync/atomic"
	"time"
)

// mockTick is the playback granularity of MockSink.
const mockTick = 2 * time.Millisecond

// MockSink implements PlaybackSink for testing purposes.
// It simulates playback time from the byte rate of its format without
// producing sound, and records every write for later inspection.
type MockSink struct {
	format Format

	mu      sync.Mutex
	gen     uint64
	playing bool
	writes  []WriteRecord
	failErr error

	// active counts writes in progress; maxActive is the high-water mark
	// and reveals overlapping writes.
	active    atomic.Int32
	maxActive atomic.Int32

	playCount    atomic.Int64
	pauseCount   atomic.Int64
	flushCount   atomic.Int64
	stopCount    atomic.Int64
	releaseCount atomic.Int64
	released     atomic.Bool
}

// WriteRecord describes one Write call on a MockSink.
type WriteRecord struct {
	Data      []byte
	Start     time.Time
	End       time.Time
	Completed bool
}

// MockSinkMetrics contains call counts for testing.
type MockSinkMetrics struct {
	PlayCount    int64
	PauseCount   int64
	FlushCount   int64
	StopCount    int64
	ReleaseCount int64
	MaxActive    int32
}

// NewMockSink creates a mock sink that plays at the byte rate of format.
func NewMockSink(format Format) *MockSink {
	return &MockSink{format: format}
}

// MockSinkOpener returns a SinkOpener that hands out sink, checking that
// the requested format is valid.
func MockSinkOpener(sink *MockSink) SinkOpener {
	return func(format Format) (PlaybackSink, error) {
		if err := format.Validate(); err != nil {
			return nil, err
		}
		sink.mu.Lock()
		sink.format = format
		sink.mu.Unlock()
		return sink, nil
	}
}

// SetWriteError makes every subsequent Write fail with err.
func (m *MockSink) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Play marks the stream as playing.
func (m *MockSink) Play() error {
	if m.released.Load() {
		return ErrSinkReleased
	}
	m.mu.Lock()
	m.playing = true
	m.mu.Unlock()
	m.playCount.Add(1)
	return nil
}

// Write simulates playback of buf, returning early when paused or flushed.
func (m *MockSink) Write(buf []byte) (int, error) {
	if m.released.Load() {
		return 0, ErrSinkReleased
	}

	active := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		hw := m.maxActive.Load()
		if active <= hw || m.maxActive.CompareAndSwap(hw, active) {
			break
		}
	}

	m.mu.Lock()
	if m.failErr != nil {
		err := m.failErr
		m.mu.Unlock()
		return 0, err
	}
	if !m.playing {
		m.mu.Unlock()
		return 0, ErrFlushed
	}
	gen := m.gen
	format := m.format
	data := make([]byte, len(buf))
	copy(data, buf)
	m.writes = append(m.writes, WriteRecord{Data: data, Start: time.Now()})
	idx := len(m.writes) - 1
	m.mu.Unlock()

	remaining := format.Duration(len(buf))
	for remaining > 0 {
		step := min(remaining, mockTick)
		time.Sleep(step)

		m.mu.Lock()
		interrupted := m.gen != gen || !m.playing
		m.mu.Unlock()

		if interrupted || m.released.Load() {
			m.finish(idx, false)
			return 0, ErrFlushed
		}
		remaining -= step
	}

	m.finish(idx, true)
	return len(buf), nil
}

func (m *MockSink) finish(idx int, completed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[idx].End = time.Now()
	m.writes[idx].Completed = completed
}

// Pause interrupts the pending write.
func (m *MockSink) Pause() error {
	m.mu.Lock()
	m.playing = false
	m.mu.Unlock()
	m.pauseCount.Add(1)
	return nil
}

// Flush aborts the pending write.
func (m *MockSink) Flush() error {
	m.mu.Lock()
	m.gen++
	m.mu.Unlock()
	m.flushCount.Add(1)
	return nil
}

// Stop pauses and flushes.
func (m *MockSink) Stop() error {
	m.stopCount.Add(1)
	if err := m.Pause(); err != nil {
		return err
	}
	return m.Flush()
}

// Release marks the sink released. Every call is counted so tests can
// detect double teardown.
func (m *MockSink) Release() error {
	m.releaseCount.Add(1)
	m.released.Store(true)
	return nil
}

// Test helper methods

// Writes returns a copy of all write records.
func (m *MockSink) Writes() []WriteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WriteRecord, len(m.writes))
	copy(out, m.writes)
	return out
}

// CompletedWrites returns the data of writes that played to the end.
func (m *MockSink) CompletedWrites() [][]byte {
	var out [][]byte
	for _, w := range m.Writes() {
		if w.Completed {
			out = append(out, w.Data)
		}
	}
	return out
}

// GetMetrics returns call counts.
func (m *MockSink) GetMetrics() MockSinkMetrics {
	return MockSinkMetrics{
		PlayCount:    m.playCount.Load(),
		PauseCount:   m.pauseCount.Load(),
		FlushCount:   m.flushCount.Load(),
		StopCount:    m.stopCount.Load(),
		ReleaseCount: m.releaseCount.Load(),
		MaxActive:    m.maxActive.Load(),
	}
}

// Ensure MockSink implements PlaybackSink
var _ PlaybackSink = (*MockSink)(nil)
