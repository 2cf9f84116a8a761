package capture

import (
	"sync"
	"time"

	"github.com/glasscast/glasscast/internal/audio"
)

// LevelMeter is a frame sink that tracks the loudness of the most recent
// frame and a decaying peak hold.
type LevelMeter struct {
	mu       sync.Mutex
	channels audio.ChannelLayout
	last     audio.Level
	hold     float64
	holdAt   time.Time
	holdFor  time.Duration
	frames   int64
	lastTS   int64
	next     audio.FrameSink
}

// NewLevelMeter creates a meter for frames of the given layout. Frames are
// forwarded to next when it is non-nil.
func NewLevelMeter(channels audio.ChannelLayout, next audio.FrameSink) *LevelMeter {
	return &LevelMeter{
		channels: channels,
		hold:     -96,
		holdFor:  time.Second,
		next:     next,
	}
}

// OnFrame implements audio.FrameSink.
func (m *LevelMeter) OnFrame(frame audio.AudioFrame) {
	pcm := frame.Samples[:frame.Length]
	if m.channels == audio.Stereo {
		pcm = audio.DownmixStereo(pcm)
	}
	lvl := audio.MeasureLevel(pcm)

	m.mu.Lock()
	now := time.Now()
	m.last = lvl
	if lvl.Peak >= m.hold || now.Sub(m.holdAt) > m.holdFor {
		m.hold = lvl.Peak
		m.holdAt = now
	}
	m.frames++
	m.lastTS = frame.CaptureTimestampMicros
	m.mu.Unlock()

	if m.next != nil {
		m.next.OnFrame(frame)
	}
}

// Reading is a snapshot of a LevelMeter.
type Reading struct {
	Level           audio.Level
	PeakHold        float64
	Frames          int64
	TimestampMicros int64
}

// Reading returns the current meter values.
func (m *LevelMeter) Reading() Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Reading{
		Level:           m.last,
		PeakHold:        m.hold,
		Frames:          m.frames,
		TimestampMicros: m.lastTS,
	}
}
