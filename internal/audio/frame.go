package audio

import (
	"fmt"
	"time"
)

// PCM format constants. All buffers exchanged between components are signed
// 16-bit little-endian samples, interleaved when stereo.
const (
	// BitDepth is the bit depth per sample.
	BitDepth = 16
	// BytesPerSample is the number of bytes per sample and channel.
	BytesPerSample = BitDepth / 8
	// DefaultSampleRate is used when neither the engine nor config name one.
	DefaultSampleRate = 22050
)

// ChannelLayout is the number of interleaved channels in a buffer.
type ChannelLayout int

const (
	// Mono is a single channel.
	Mono ChannelLayout = 1
	// Stereo is two interleaved channels.
	Stereo ChannelLayout = 2
)

// Encoding identifies the sample encoding requested from a device.
type Encoding int

const (
	// EncodingPCM16 is signed 16-bit little-endian PCM.
	EncodingPCM16 Encoding = iota
)

// String returns the encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingPCM16:
		return "pcm16"
	default:
		return "unknown"
	}
}

// Format describes a PCM stream.
type Format struct {
	SampleRate int
	Channels   ChannelLayout
}

// Validate reports whether the format can be handed to a device.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, f.SampleRate)
	}
	if f.Channels != Mono && f.Channels != Stereo {
		return fmt.Errorf("%w: %d", ErrInvalidChannels, f.Channels)
	}
	return nil
}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * int(f.Channels) * BytesPerSample
}

// FrameSize is the size in bytes of one sample across all channels.
func (f Format) FrameSize() int {
	return int(f.Channels) * BytesPerSample
}

// Duration returns how long n bytes of this format take to play.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// BytesFor returns the frame-aligned number of bytes covering d.
func (f Format) BytesFor(d time.Duration) int {
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	if fs := f.FrameSize(); fs > 0 {
		n -= n % fs
	}
	return n
}

// AudioFrame is one buffer of captured PCM.
//
// Samples is only valid for the duration of the FrameSink callback that
// received it; the producer reuses the backing array for the next read.
// Consumers that need to keep the data must copy it.
type AudioFrame struct {
	Samples                []byte
	Length                 int
	CaptureTimestampMicros int64
}

// Clone returns a frame that owns a private copy of the samples.
func (f AudioFrame) Clone() AudioFrame {
	data := make([]byte, f.Length)
	copy(data, f.Samples[:f.Length])
	return AudioFrame{
		Samples:                data,
		Length:                 f.Length,
		CaptureTimestampMicros: f.CaptureTimestampMicros,
	}
}
