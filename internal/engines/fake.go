package engines

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glasscast/glasscast/internal/audio"
)

// Fake is a deterministic SynthesisEngine. Each text maps to a fixed
// non-silent PCM pattern whose length grows with the text, so tests can tell
// which utterance reached the sink.
type Fake struct {
	sampleRate int
	// perRune is the audio produced per character of text.
	perRune time.Duration

	mu       sync.Mutex
	delay    time.Duration
	delays   map[string]time.Duration
	failures map[string]error
	closed   bool

	calls     atomic.Int64
	active    atomic.Int32
	maxActive atomic.Int32
	closes    atomic.Int64
}

// NewFake creates a fake engine producing 5ms of audio per character at
// sampleRate.
func NewFake(sampleRate int) *Fake {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &Fake{
		sampleRate: sampleRate,
		perRune:    5 * time.Millisecond,
		delays:     make(map[string]time.Duration),
		failures:   make(map[string]error),
	}
}

// SetAudioPerRune sets how much audio each character produces.
func (f *Fake) SetAudioPerRune(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perRune = d
}

// SetDelay sets the generation latency for every text.
func (f *Fake) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// SetDelayFor sets the generation latency for one text.
func (f *Fake) SetDelayFor(text string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[text] = d
}

// FailOn makes Generate return err for text.
func (f *Fake) FailOn(text string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[text] = err
}

// Name returns "fake".
func (f *Fake) Name() string { return "fake" }

// SampleRate returns the configured rate.
func (f *Fake) SampleRate() int { return f.sampleRate }

// Generate waits for the configured delay and returns PCMFor(text).
func (f *Fake) Generate(ctx context.Context, text, _ string, speed float64) ([]byte, error) {
	f.calls.Add(1)
	active := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		hw := f.maxActive.Load()
		if active <= hw || f.maxActive.CompareAndSwap(hw, active) {
			break
		}
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrEngineClosed
	}
	delay, ok := f.delays[text]
	if !ok {
		delay = f.delay
	}
	failErr := f.failures[text]
	f.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if failErr != nil {
		return nil, failErr
	}
	if text == "" {
		return nil, nil
	}
	if speed <= 0 {
		speed = 1
	}
	return f.pcm(text, speed), nil
}

// PCMFor returns the buffer Generate produces for text at normal speed.
func (f *Fake) PCMFor(text string) []byte {
	return f.pcm(text, 1)
}

func (f *Fake) pcm(text string, speed float64) []byte {
	f.mu.Lock()
	perRune := f.perRune
	f.mu.Unlock()

	format := audio.Format{SampleRate: f.sampleRate, Channels: audio.Mono}
	d := time.Duration(float64(perRune) * float64(len([]rune(text))) / speed)
	n := max(format.BytesFor(d), audio.BytesPerSample)

	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	sample := uint16(h.Sum32()) | 1

	out := make([]byte, n)
	for i := 0; i+1 < n; i += 2 {
		binary.LittleEndian.PutUint16(out[i:], sample)
	}
	return out
}

// Close marks the engine closed. Later Generate calls fail.
func (f *Fake) Close() error {
	f.closes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Calls returns the number of Generate calls.
func (f *Fake) Calls() int64 { return f.calls.Load() }

// MaxConcurrent returns the highest number of overlapping Generate calls.
func (f *Fake) MaxConcurrent() int32 { return f.maxActive.Load() }

// Closes returns the number of Close calls.
func (f *Fake) Closes() int64 { return f.closes.Load() }

var _ audio.SynthesisEngine = (*Fake)(nil)
