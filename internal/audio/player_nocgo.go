//go:build nocgo
// +build nocgo

package audio

// Stub implementations for static analysis and builds without CGO

// NewOtoSink is unavailable without cgo.
func NewOtoSink(Format) (PlaybackSink, error) {
	return nil, ErrAudioUnavailable
}
