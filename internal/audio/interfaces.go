package audio

import "context"

// DeviceConfig is the format requested from a capture backend.
type DeviceConfig struct {
	SampleRate      int
	Channels        ChannelLayout
	Encoding        Encoding
	EchoCanceler    bool
	NoiseSuppressor bool
	// BufferSize is the read size in bytes. Filled in by the capture source
	// from MinBufferSize before Open is called.
	BufferSize int
}

// Format returns the PCM format of the device stream.
func (c DeviceConfig) Format() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

// CaptureBackend opens capture devices.
type CaptureBackend interface {
	// Name returns the backend name (e.g. "portaudio", "mock").
	Name() string

	// MinBufferSize returns the smallest read size in bytes the backend
	// supports for the format, or a non-positive value if the format is
	// not supported.
	MinBufferSize(cfg DeviceConfig) int

	// Open opens a device for the format. The device is not yet streaming.
	Open(cfg DeviceConfig) (CaptureDevice, error)
}

// CaptureDevice is an opened microphone.
type CaptureDevice interface {
	// Start begins streaming. Read fails with ErrDeviceStopped until then.
	Start() error

	// Read fills buf with captured PCM and returns the number of bytes
	// read. It blocks until a full buffer is available; this is the only
	// flow control of the capture path.
	Read(buf []byte) (int, error)

	// Stop halts streaming and unblocks a pending Read. The device stays
	// open and can be started again.
	Stop() error

	// Close releases the device. It cannot be used afterwards.
	Close() error
}

// FrameSink receives captured frames.
type FrameSink interface {
	// OnFrame is called synchronously on the capture goroutine. It must
	// not block indefinitely and must not retain frame.Samples.
	OnFrame(frame AudioFrame)
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(frame AudioFrame)

// OnFrame calls f(frame).
func (f FrameSinkFunc) OnFrame(frame AudioFrame) { f(frame) }

// SynthesisEngine turns text into mono PCM16 at SampleRate.
// Generate may take seconds and must never be called on a latency-sensitive
// goroutine.
type SynthesisEngine interface {
	// Name identifies the engine in logs and cache keys.
	Name() string

	// SampleRate is the rate of every buffer Generate returns.
	SampleRate() int

	// Generate synthesizes text. An empty result with a nil error means
	// there is nothing to say.
	Generate(ctx context.Context, text, voiceID string, speed float64) ([]byte, error)

	// Close releases engine resources.
	Close() error
}

// PlaybackSink plays PCM buffers on an output device.
type PlaybackSink interface {
	// Play starts or resumes the output stream.
	Play() error

	// Write queues buf and blocks until the device has consumed it. It
	// fails with ErrFlushed when the sink is not playing, and returns early
	// with ErrFlushed when the sink is paused, flushed or stopped while the
	// write is pending. Only one write may be outstanding.
	Write(buf []byte) (int, error)

	// Pause suspends output. A pending Write is released with ErrFlushed;
	// writes fail until Play is called again.
	Pause() error

	// Flush discards buffered data and releases a blocked Write.
	Flush() error

	// Stop pauses and flushes.
	Stop() error

	// Release frees the device. The sink cannot be used afterwards.
	Release() error
}

// SinkOpener opens a playback sink for a format.
type SinkOpener func(format Format) (PlaybackSink, error)
