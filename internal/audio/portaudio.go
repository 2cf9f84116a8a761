//go:build !nocgo
// +build !nocgo

package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
)

// captureChunkDivisor sets the minimum read to 1/50 s (20 ms).
const captureChunkDivisor = 50

// PortAudioBackend opens the default input device through PortAudio.
type PortAudioBackend struct {
	logger *log.Logger
}

// NewPortAudioBackend creates a PortAudio capture backend.
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{logger: log.Default().With("component", "portaudio")}
}

// Name returns "portaudio".
func (b *PortAudioBackend) Name() string { return "portaudio" }

// MinBufferSize returns 20 ms of audio in bytes, or 0 for an invalid format.
func (b *PortAudioBackend) MinBufferSize(cfg DeviceConfig) int {
	if err := cfg.Format().Validate(); err != nil {
		return 0
	}
	if cfg.Encoding != EncodingPCM16 {
		return 0
	}
	frames := cfg.SampleRate / captureChunkDivisor
	return frames * cfg.Format().FrameSize()
}

// Open initializes PortAudio and opens a blocking input stream whose buffer
// holds exactly cfg.BufferSize bytes.
func (b *PortAudioBackend) Open(cfg DeviceConfig) (CaptureDevice, error) {
	format := cfg.Format()
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if cfg.BufferSize <= 0 || cfg.BufferSize%format.FrameSize() != 0 {
		return nil, fmt.Errorf("%w: buffer size %d", ErrMisalignedPCM, cfg.BufferSize)
	}
	if cfg.EchoCanceler || cfg.NoiseSuppressor {
		b.logger.Warn("audio effects not supported by backend, ignoring",
			"echo_canceler", cfg.EchoCanceler,
			"noise_suppressor", cfg.NoiseSuppressor)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	samples := make([]int16, cfg.BufferSize/BytesPerSample)
	framesPerBuffer := cfg.BufferSize / format.FrameSize()
	stream, err := portaudio.OpenDefaultStream(
		int(cfg.Channels),
		0,
		float64(cfg.SampleRate),
		framesPerBuffer,
		samples,
	)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	b.logger.Debug("input stream opened",
		"sample_rate", cfg.SampleRate,
		"channels", int(cfg.Channels),
		"frames_per_buffer", framesPerBuffer)

	return &portAudioDevice{stream: stream, samples: samples}, nil
}

type portAudioDevice struct {
	stream  *portaudio.Stream
	samples []int16

	mu      sync.Mutex
	running atomic.Bool
	closed  bool
}

func (d *portAudioDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	if d.running.Load() {
		return nil
	}
	if err := d.stream.Start(); err != nil {
		return err
	}
	d.running.Store(true)
	return nil
}

func (d *portAudioDevice) Read(buf []byte) (int, error) {
	if !d.running.Load() {
		return 0, ErrDeviceStopped
	}
	if err := d.stream.Read(); err != nil {
		if !d.running.Load() {
			return 0, ErrDeviceStopped
		}
		// Input overflow still leaves valid samples in the buffer.
		if err != portaudio.InputOverflowed {
			return 0, err
		}
	}
	n := min(len(buf)/BytesPerSample, len(d.samples))
	return EncodeInt16(buf, d.samples[:n]), nil
}

// Stop aborts the stream, which unblocks a Read in progress.
func (d *portAudioDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || !d.running.Load() {
		return nil
	}
	d.running.Store(false)
	return d.stream.Abort()
}

func (d *portAudioDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.running.Swap(false) {
		_ = d.stream.Abort()
	}
	err := d.stream.Close()
	if termErr := portaudio.Terminate(); err == nil {
		err = termErr
	}
	return err
}
