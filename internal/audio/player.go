//go:build !nocgo
// +build !nocgo

package audio

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process, so it is shared by every sink
// and fixed to the format of the first sink opened.
var (
	otoContext     *oto.Context
	otoFormat      Format
	otoContextErr  error
	otoContextOnce sync.Once
)

func sharedContext(format Format) (*oto.Context, error) {
	otoContextOnce.Do(func() {
		options := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: int(format.Channels),
			Format:       oto.FormatSignedInt16LE,
		}

		// Platform-specific buffer size adjustments
		switch runtime.GOOS {
		case "darwin":
			options.BufferSize = 100 * time.Millisecond
		default:
			options.BufferSize = 50 * time.Millisecond
		}

		ctx, ready, err := oto.NewContext(options)
		if err != nil {
			otoContextErr = fmt.Errorf("failed to create audio context: %w", err)
			return
		}
		<-ready
		otoContext = ctx
		otoFormat = format
	})
	if otoContextErr != nil {
		return nil, otoContextErr
	}
	if format != otoFormat {
		return nil, fmt.Errorf("%w: context is %d Hz/%d ch, requested %d Hz/%d ch",
			ErrUnsupportedFormat, otoFormat.SampleRate, otoFormat.Channels,
			format.SampleRate, format.Channels)
	}
	return otoContext, nil
}

// OtoSink is a PlaybackSink backed by an oto player that pulls PCM from an
// internal pending buffer. Write hands a buffer over and waits until oto has
// read all of it; while nothing is pending the player is fed silence so the
// stream never underruns.
type OtoSink struct {
	format Format
	player *oto.Player

	mu      sync.Mutex
	drained *sync.Cond
	pending []byte
	// gen increments on every flush so a blocked writer can tell that its
	// buffer was discarded.
	gen      uint64
	playing  bool
	released bool

	releaseOnce sync.Once
	logger      *log.Logger
}

// NewOtoSink opens a sink on the default output device.
func NewOtoSink(format Format) (PlaybackSink, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	ctx, err := sharedContext(format)
	if err != nil {
		return nil, err
	}

	s := &OtoSink{
		format: format,
		logger: log.Default().With("component", "oto-sink"),
	}
	s.drained = sync.NewCond(&s.mu)
	s.player = ctx.NewPlayer(s)
	return s, nil
}

// Read implements io.Reader for the oto player.
func (s *OtoSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return 0, io.EOF
	}
	if len(s.pending) == 0 {
		// Feed silence, aligned to whole frames.
		n := len(p) - len(p)%s.format.FrameSize()
		clear(p[:n])
		return n, nil
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	if len(s.pending) == 0 {
		s.pending = nil
		s.drained.Broadcast()
	}
	return n, nil
}

// Play starts or resumes output.
func (s *OtoSink) Play() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrSinkReleased
	}
	s.playing = true
	s.mu.Unlock()
	s.player.Play()
	return nil
}

// Write blocks until buf has been pulled by the device.
func (s *OtoSink) Write(buf []byte) (int, error) {
	if len(buf)%s.format.FrameSize() != 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrMisalignedPCM, len(buf))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return 0, ErrSinkReleased
	}
	if !s.playing {
		return 0, ErrFlushed
	}
	if len(s.pending) > 0 {
		return 0, ErrSinkBusy
	}
	if len(buf) == 0 {
		return 0, nil
	}

	gen := s.gen
	s.pending = buf
	for len(s.pending) > 0 && s.gen == gen && !s.released {
		s.drained.Wait()
	}

	switch {
	case s.released:
		return len(buf) - len(s.pending), ErrSinkReleased
	case s.gen != gen:
		return 0, ErrFlushed
	}
	return len(buf), nil
}

// Pause suspends the oto player and releases a pending writer.
func (s *OtoSink) Pause() error {
	s.player.Pause()
	s.mu.Lock()
	s.playing = false
	s.discardLocked()
	s.mu.Unlock()
	return nil
}

// Flush discards the pending buffer and wakes its writer.
func (s *OtoSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked()
	return nil
}

func (s *OtoSink) discardLocked() {
	s.pending = nil
	s.gen++
	s.drained.Broadcast()
}

// Stop pauses and flushes.
func (s *OtoSink) Stop() error {
	if err := s.Pause(); err != nil {
		return err
	}
	return s.Flush()
}

// Release closes the player. Subsequent calls are no-ops.
func (s *OtoSink) Release() error {
	var err error
	s.releaseOnce.Do(func() {
		s.player.Pause()

		s.mu.Lock()
		s.released = true
		s.playing = false
		s.discardLocked()
		s.mu.Unlock()

		if closeErr := s.player.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close player: %w", closeErr)
		}
		s.logger.Debug("sink released")
	})
	return err
}
