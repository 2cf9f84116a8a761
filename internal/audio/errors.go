package audio

import "errors"

// Common errors for audio devices.
var (
	// Format errors
	ErrInvalidSampleRate = errors.New("invalid sample rate")
	ErrInvalidChannels   = errors.New("invalid number of channels")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrMisalignedPCM     = errors.New("PCM data not aligned to sample size")

	// Capture errors
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrDeviceStopped     = errors.New("capture device stopped")
	ErrDeviceClosed      = errors.New("capture device closed")

	// Playback errors
	ErrFlushed      = errors.New("playback flushed")
	ErrSinkBusy     = errors.New("playback sink already has a pending write")
	ErrSinkReleased = errors.New("playback sink released")

	// ErrAudioUnavailable is returned by backends compiled without cgo.
	ErrAudioUnavailable = errors.New("audio not available in nocgo build")
)
