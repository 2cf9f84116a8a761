//go:build nocgo
// +build nocgo

package audio

// PortAudioBackend is unavailable without cgo; every Open fails.
type PortAudioBackend struct{}

// NewPortAudioBackend returns a backend that cannot open devices.
func NewPortAudioBackend() *PortAudioBackend { return &PortAudioBackend{} }

// Name returns "portaudio".
func (b *PortAudioBackend) Name() string { return "portaudio" }

// MinBufferSize always reports an unsupported format.
func (b *PortAudioBackend) MinBufferSize(DeviceConfig) int { return 0 }

// Open returns ErrAudioUnavailable.
func (b *PortAudioBackend) Open(DeviceConfig) (CaptureDevice, error) {
	return nil, ErrAudioUnavailable
}
