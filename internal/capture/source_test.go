package capture

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/glasscast/glasscast/internal/audio"
)

type recordingSink struct {
	mu     sync.Mutex
	frames []audio.AudioFrame
}

func (r *recordingSink) OnFrame(f audio.AudioFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f.Clone())
}

func (r *recordingSink) snapshot() []audio.AudioFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audio.AudioFrame, len(r.frames))
	copy(out, r.frames)
	return out
}

func (r *recordingSink) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(r.snapshot()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", n, len(r.snapshot()))
}

func newTestSource(b *audio.MockBackend) *Source {
	return NewSource(b, WithLogger(log.New(io.Discard)), WithReadBackoff(time.Millisecond))
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestSource_CreateAndStart(t *testing.T) {
	b := &audio.MockBackend{ReadDelay: time.Millisecond}
	src := newTestSource(b)

	if err := src.Start(&recordingSink{}); !errors.Is(err, ErrNotArmed) {
		t.Fatalf("Start before Create: expected ErrNotArmed, got %v", err)
	}

	if !src.Create(16000, false, false, false) {
		t.Fatal("Create failed")
	}
	if src.State() != StateArmed {
		t.Fatalf("state = %v, want armed", src.State())
	}
	if src.Create(16000, false, false, false) {
		t.Error("second Create should fail")
	}
	if got := src.Config().BufferSize; got != 640 {
		t.Errorf("buffer size = %d, want 640", got)
	}

	if err := src.Start(nil); !errors.Is(err, ErrNilSink) {
		t.Errorf("expected ErrNilSink, got %v", err)
	}

	sink := &recordingSink{}
	if err := src.Start(sink); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Start(sink); err != nil {
		t.Fatalf("Start while running should be a no-op, got %v", err)
	}
	sink.waitFor(t, 5)
	src.Release()

	frames := sink.snapshot()
	for i, f := range frames {
		if f.Length != 640 || len(f.Samples) != 640 {
			t.Fatalf("frame %d length = %d", i, f.Length)
		}
		if i > 0 && f.CaptureTimestampMicros <= frames[i-1].CaptureTimestampMicros {
			t.Fatalf("timestamps not increasing at frame %d", i)
		}
	}
}

func TestSource_CreateFailures(t *testing.T) {
	tests := []struct {
		name    string
		backend *audio.MockBackend
		rate    int
	}{
		{"unsupported buffer size", &audio.MockBackend{MinBuffer: -1}, 16000},
		{"invalid sample rate", &audio.MockBackend{}, 0},
		{"open error", &audio.MockBackend{OpenErr: audio.ErrDeviceUnavailable}, 16000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newTestSource(tt.backend)
			if src.Create(tt.rate, false, false, false) {
				t.Fatal("Create should fail")
			}
			if src.State() != StateCreated {
				t.Errorf("state = %v, want created", src.State())
			}
			if tt.backend.Opens() != 0 {
				t.Errorf("device opened %d times", tt.backend.Opens())
			}
		})
	}
}

func TestSource_MuteOnlyChangesContent(t *testing.T) {
	b := &audio.MockBackend{ReadDelay: time.Millisecond}
	src := newTestSource(b)
	if !src.Create(8000, true, false, false) {
		t.Fatal("Create failed")
	}

	sink := &recordingSink{}
	if err := src.Start(sink); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			src.Mute()
		} else {
			src.Unmute()
		}
		time.Sleep(3 * time.Millisecond)
	}
	src.Unmute()
	sink.waitFor(t, 20)
	src.Stop()

	frames := sink.snapshot()
	stats := src.Stats()
	if int64(len(frames)) != stats.Frames {
		t.Errorf("sink saw %d frames, stats report %d", len(frames), stats.Frames)
	}

	want := src.Config().BufferSize
	var silent, live int64
	for i, f := range frames {
		if f.Length != want {
			t.Fatalf("frame %d length = %d, want %d", i, f.Length, want)
		}
		if allZero(f.Samples) {
			silent++
		} else {
			live++
		}
	}
	if silent != stats.MutedFrames {
		t.Errorf("silent frames = %d, muted counter = %d", silent, stats.MutedFrames)
	}
	if live == 0 {
		t.Error("expected some unmuted frames")
	}
}

func TestSource_StopStartKeepsDevice(t *testing.T) {
	b := &audio.MockBackend{ReadDelay: time.Millisecond}
	src := newTestSource(b)
	if !src.Create(16000, false, false, false) {
		t.Fatal("Create failed")
	}

	sink := &recordingSink{}
	_ = src.Start(sink)
	sink.waitFor(t, 3)
	src.Stop()

	if src.State() != StateStopped {
		t.Fatalf("state = %v, want stopped", src.State())
	}
	stopped := len(sink.snapshot())
	time.Sleep(10 * time.Millisecond)
	if got := len(sink.snapshot()); got != stopped {
		t.Fatalf("frames delivered after Stop: %d -> %d", stopped, got)
	}

	if err := src.Start(sink); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	sink.waitFor(t, stopped+3)
	src.Stop()

	if b.Opens() != 1 {
		t.Errorf("device opened %d times, want 1", b.Opens())
	}
	if dev := b.LastDevice(); dev.Starts() != 2 {
		t.Errorf("device started %d times, want 2", dev.Starts())
	}
}

func TestSource_ReleaseIsIdempotent(t *testing.T) {
	b := &audio.MockBackend{ReadDelay: time.Millisecond}
	src := newTestSource(b)
	if !src.Create(16000, false, false, false) {
		t.Fatal("Create failed")
	}
	_ = src.Start(&recordingSink{})

	src.Release()
	src.Release()

	if b.Closes() != 1 {
		t.Errorf("device closed %d times, want 1", b.Closes())
	}
	if src.State() != StateReleased {
		t.Errorf("state = %v, want released", src.State())
	}
	if err := src.Start(&recordingSink{}); !errors.Is(err, ErrReleased) {
		t.Errorf("Start after Release: expected ErrReleased, got %v", err)
	}
	if src.Create(16000, false, false, false) {
		t.Error("Create after Release should fail")
	}
	src.Stop()
}

func TestSource_ReadErrorsAreCounted(t *testing.T) {
	injected := errors.New("overrun")
	b := &audio.MockBackend{ReadDelay: time.Millisecond, FailReads: 3, ReadErr: injected}
	src := newTestSource(b)
	if !src.Create(16000, false, false, false) {
		t.Fatal("Create failed")
	}

	sink := &recordingSink{}
	_ = src.Start(sink)
	sink.waitFor(t, 2)
	src.Release()

	if got := src.Stats().ReadErrors; got != 3 {
		t.Errorf("read errors = %d, want 3", got)
	}
}

func TestSource_PanickingSinkKeepsRunning(t *testing.T) {
	b := &audio.MockBackend{ReadDelay: time.Millisecond}
	src := newTestSource(b)
	if !src.Create(16000, false, false, false) {
		t.Fatal("Create failed")
	}

	var mu sync.Mutex
	calls := 0
	sink := audio.FrameSinkFunc(func(audio.AudioFrame) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("boom")
	})
	_ = src.Start(sink)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("capture stopped after sink panic")
		}
		time.Sleep(time.Millisecond)
	}
	src.Release()
}
