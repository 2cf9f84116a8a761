// Package capture streams microphone PCM from a capture device to a frame
// sink on a dedicated goroutine.
package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/glasscast/glasscast/internal/audio"
	"github.com/glasscast/glasscast/internal/telemetry"
)

const (
	defaultReadBackoff      = 10 * time.Millisecond
	defaultErrorLogInterval = 5 * time.Second
)

// Option configures a Source.
type Option func(*Source)

// WithLogger overrides the source logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// WithReadBackoff sets the pause after a failed read.
func WithReadBackoff(d time.Duration) Option {
	return func(s *Source) { s.backoff = d }
}

// WithErrorLogInterval limits read-error logging to one line per interval.
func WithErrorLogInterval(d time.Duration) Option {
	return func(s *Source) { s.errLog = rate.NewLimiter(rate.Every(d), 1) }
}

// Source is a continuous microphone source with a mute gate.
//
// Lifecycle calls (Create, Start, Stop, Release) are serialized; Mute, Unmute,
// Muted, State and Stats may be called from any goroutine at any time.
// Lifecycle calls must not be made from the frame sink.
type Source struct {
	backend audio.CaptureBackend
	logger  *log.Logger
	backoff time.Duration
	errLog  *rate.Limiter
	// base anchors frame timestamps; time.Since uses the monotonic clock.
	base time.Time

	mu     sync.Mutex
	device audio.CaptureDevice
	config audio.DeviceConfig
	wg     sync.WaitGroup

	state   atomic.Int32
	running atomic.Bool
	muted   atomic.Bool

	frames      atomic.Int64
	mutedFrames atomic.Int64
	readErrors  atomic.Int64
	bytes       atomic.Int64

	framesCounter metric.Int64Counter
	mutedCounter  metric.Int64Counter
	errorsCounter metric.Int64Counter
}

// Stats is a snapshot of capture counters.
type Stats struct {
	State       State
	Muted       bool
	Frames      int64
	MutedFrames int64
	ReadErrors  int64
	Bytes       int64
}

// NewSource creates a source in StateCreated.
func NewSource(backend audio.CaptureBackend, opts ...Option) *Source {
	meter := telemetry.Meter("capture")
	s := &Source{
		backend: backend,
		logger:  log.Default().With("component", "capture"),
		backoff: defaultReadBackoff,
		errLog:  rate.NewLimiter(rate.Every(defaultErrorLogInterval), 1),
		base:    time.Now(),

		framesCounter: telemetry.Counter(meter, "glasscast.capture.frames", "Frames delivered to the sink"),
		mutedCounter:  telemetry.Counter(meter, "glasscast.capture.muted_frames", "Frames delivered as silence"),
		errorsCounter: telemetry.Counter(meter, "glasscast.capture.read_errors", "Failed device reads"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens the capture device for the requested format. It returns
// false, after logging the reason, when the backend does not support the
// format or the device cannot be opened. It only succeeds once, from
// StateCreated.
func (s *Source) Create(sampleRate int, stereo, echoCanceler, noiseSuppressor bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != StateCreated {
		s.logger.Warn("create ignored", "state", st)
		return false
	}

	channels := audio.Mono
	if stereo {
		channels = audio.Stereo
	}
	cfg := audio.DeviceConfig{
		SampleRate:      sampleRate,
		Channels:        channels,
		Encoding:        audio.EncodingPCM16,
		EchoCanceler:    echoCanceler,
		NoiseSuppressor: noiseSuppressor,
	}

	size := s.backend.MinBufferSize(cfg)
	if size <= 0 {
		s.logger.Error("format not supported by capture backend",
			"backend", s.backend.Name(),
			"sample_rate", sampleRate,
			"channels", int(channels),
			"min_buffer", size)
		return false
	}
	cfg.BufferSize = size

	dev, err := s.backend.Open(cfg)
	if err != nil {
		s.logger.Error("failed to open capture device", "backend", s.backend.Name(), "error", err)
		return false
	}

	s.device = dev
	s.config = cfg
	s.state.Store(int32(StateArmed))
	s.logger.Debug("capture device opened",
		"backend", s.backend.Name(),
		"sample_rate", sampleRate,
		"channels", int(channels),
		"buffer", size)
	return true
}

// Start begins delivering frames to sink. It is a no-op while running.
func (s *Source) Start(sink audio.FrameSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateCreated:
		return ErrNotArmed
	case StateReleased:
		return ErrReleased
	case StateRunning:
		return nil
	}
	if sink == nil {
		return ErrNilSink
	}

	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	s.running.Store(true)
	s.state.Store(int32(StateRunning))
	s.wg.Add(1)
	go s.loop(s.device, sink, s.config.BufferSize)

	s.logger.Debug("capture started")
	return nil
}

func (s *Source) loop(dev audio.CaptureDevice, sink audio.FrameSink, size int) {
	defer s.wg.Done()

	buf := make([]byte, size)
	silence := make([]byte, size)
	ctx := context.Background()

	for s.running.Load() {
		n, err := dev.Read(buf)
		if !s.running.Load() {
			return
		}
		if err != nil {
			s.readErrors.Add(1)
			s.errorsCounter.Add(ctx, 1)
			if s.errLog.Allow() {
				s.logger.Warn("capture read failed", "error", err, "total", s.readErrors.Load())
			}
			time.Sleep(s.backoff)
			continue
		}
		if n <= 0 {
			continue
		}

		data := buf[:n]
		if s.muted.Load() {
			data = silence[:n]
			s.mutedFrames.Add(1)
			s.mutedCounter.Add(ctx, 1)
		}

		s.deliver(sink, audio.AudioFrame{
			Samples:                data,
			Length:                 n,
			CaptureTimestampMicros: time.Since(s.base).Microseconds(),
		})
		s.frames.Add(1)
		s.bytes.Add(int64(n))
		s.framesCounter.Add(ctx, 1)
	}
}

// deliver keeps a panicking sink from taking down the capture goroutine.
func (s *Source) deliver(sink audio.FrameSink, frame audio.AudioFrame) {
	defer func() {
		if r := recover(); r != nil {
			if s.errLog.Allow() {
				s.logger.Error("frame sink panicked", "panic", r)
			}
		}
	}()
	sink.OnFrame(frame)
}

// Stop halts delivery and waits for the capture goroutine to exit. The
// device stays open so Start can resume.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateRunning {
		return
	}
	s.stopLocked()
	s.state.Store(int32(StateStopped))
	s.logger.Debug("capture stopped", "frames", s.frames.Load())
}

func (s *Source) stopLocked() {
	s.running.Store(false)
	if err := s.device.Stop(); err != nil {
		s.logger.Warn("failed to stop capture device", "error", err)
	}
	s.wg.Wait()
}

// Release stops capture and closes the device. Further calls do nothing.
func (s *Source) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateReleased:
		return
	case StateRunning:
		s.stopLocked()
	}
	if s.device != nil {
		if err := s.device.Close(); err != nil {
			s.logger.Warn("failed to close capture device", "error", err)
		}
		s.device = nil
	}
	s.state.Store(int32(StateReleased))
	s.logger.Debug("capture released")
}

// Mute replaces captured audio with silence from the next frame on.
func (s *Source) Mute() { s.muted.Store(true) }

// Unmute restores captured audio from the next frame on.
func (s *Source) Unmute() { s.muted.Store(false) }

// SetMuted sets the mute gate.
func (s *Source) SetMuted(muted bool) { s.muted.Store(muted) }

// Muted reports the mute gate.
func (s *Source) Muted() bool { return s.muted.Load() }

// State returns the lifecycle state.
func (s *Source) State() State { return State(s.state.Load()) }

// Config returns the device configuration chosen by Create.
func (s *Source) Config() audio.DeviceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Stats returns a snapshot of the capture counters.
func (s *Source) Stats() Stats {
	return Stats{
		State:       s.State(),
		Muted:       s.Muted(),
		Frames:      s.frames.Load(),
		MutedFrames: s.mutedFrames.Load(),
		ReadErrors:  s.readErrors.Load(),
		Bytes:       s.bytes.Load(),
	}
}
