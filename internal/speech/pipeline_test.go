package speech

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/glasscast/glasscast/internal/audio"
	"github.com/glasscast/glasscast/internal/engines"
)

const testRate = 16000

func newTestPipeline(t *testing.T, engine audio.SynthesisEngine, sink *audio.MockSink, cfg Config) *Pipeline {
	t.Helper()
	p := New(StaticEngine(engine), audio.MockSinkOpener(sink), cfg, WithLogger(log.New(io.Discard)))
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown() })
	return p
}

func drain(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func waitUntil(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func sampleOf(data []byte) uint16 {
	return binary.LittleEndian.Uint16(data)
}

// writtenTexts maps completed sink writes back to the texts that produced
// them, collapsing consecutive chunks of the same utterance.
func writtenTexts(f *engines.Fake, sink *audio.MockSink, texts ...string) []string {
	bySample := make(map[uint16]string)
	for _, text := range texts {
		bySample[sampleOf(f.PCMFor(text))] = text
	}
	var out []string
	for _, data := range sink.CompletedWrites() {
		text := bySample[sampleOf(data)]
		if len(out) == 0 || out[len(out)-1] != text {
			out = append(out, text)
		}
	}
	return out
}

func TestPipeline_InitializeTwice(t *testing.T) {
	p := newTestPipeline(t, engines.NewFake(testRate), audio.NewMockSink(audio.Format{}), Config{})

	if !p.Ready() || p.State() != StateReady {
		t.Fatalf("state = %v, want ready", p.State())
	}
	if got := p.Format(); got.SampleRate != testRate || got.Channels != audio.Mono {
		t.Errorf("sink format = %+v", got)
	}
	if err := p.Initialize(context.Background()); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestPipeline_InitializationFailure(t *testing.T) {
	loadErr := errors.New("model missing")
	sink := audio.NewMockSink(audio.Format{})
	load := func(context.Context) (audio.SynthesisEngine, error) { return nil, loadErr }
	p := New(load, audio.MockSinkOpener(sink), Config{}, WithLogger(log.New(io.Discard)))

	err := p.Initialize(context.Background())
	if !errors.Is(err, loadErr) {
		t.Fatalf("expected load error, got %v", err)
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Op != "load engine" {
		t.Errorf("expected *Error with op 'load engine', got %#v", err)
	}
	if p.State() != StateFailed || p.Ready() {
		t.Fatalf("state = %v, want failed", p.State())
	}
	if !errors.Is(p.Err(), loadErr) {
		t.Errorf("Err() = %v", p.Err())
	}

	p.Speak("hello", Flush)
	p.Speak("world", Append)
	ann := p.SpeakCompositeStatus([]string{"battery", "network"})
	<-ann.Done()
	drain(t, p)

	if n := len(sink.Writes()); n != 0 {
		t.Errorf("sink received %d writes, want 0", n)
	}
	if ann.Drained() != 0 {
		t.Errorf("composite drained %d parts on a failed pipeline", ann.Drained())
	}
	if p.Stats().Requests != 0 {
		t.Errorf("requests = %d, want 0", p.Stats().Requests)
	}

	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if p.State() != StateShutDown {
		t.Errorf("state = %v, want shut-down", p.State())
	}
	if err := p.Initialize(context.Background()); !errors.Is(err, ErrShutDown) {
		t.Errorf("Initialize after Shutdown: expected ErrShutDown, got %v", err)
	}
}

func TestPipeline_SinkOpenFailureReleasesEngine(t *testing.T) {
	fake := engines.NewFake(testRate)
	openErr := errors.New("no output device")
	open := func(audio.Format) (audio.PlaybackSink, error) { return nil, openErr }
	p := New(StaticEngine(fake), open, Config{}, WithLogger(log.New(io.Discard)))

	if err := p.Initialize(context.Background()); !errors.Is(err, openErr) {
		t.Fatalf("expected open error, got %v", err)
	}
	if fake.Closes() != 1 {
		t.Errorf("engine closed %d times, want 1", fake.Closes())
	}
	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if fake.Closes() != 1 {
		t.Errorf("engine closed again by Shutdown")
	}
}

func TestPipeline_InvalidSampleRate(t *testing.T) {
	p := New(StaticEngine(zeroRateEngine{}), audio.MockSinkOpener(audio.NewMockSink(audio.Format{})),
		Config{}, WithLogger(log.New(io.Discard)))
	if err := p.Initialize(context.Background()); !errors.Is(err, ErrInvalidSampleRate) {
		t.Fatalf("expected ErrInvalidSampleRate, got %v", err)
	}
}

type zeroRateEngine struct{}

func (zeroRateEngine) Name() string    { return "zero" }
func (zeroRateEngine) SampleRate() int { return 0 }
func (zeroRateEngine) Close() error    { return nil }
func (zeroRateEngine) Generate(context.Context, string, string, float64) ([]byte, error) {
	return nil, nil
}

func TestPipeline_SpeakPlaysInChunks(t *testing.T) {
	fake := engines.NewFake(testRate)
	sink := audio.NewMockSink(audio.Format{})
	p := newTestPipeline(t, fake, sink, Config{})

	p.Speak("hello world", Append)
	drain(t, p)

	want := fake.PCMFor("hello world")
	var got []byte
	for _, data := range sink.CompletedWrites() {
		if len(data) > 640 {
			t.Errorf("chunk of %d bytes exceeds 20ms", len(data))
		}
		got = append(got, data...)
	}
	if string(got) != string(want) {
		t.Errorf("played %d bytes, want %d", len(got), len(want))
	}
	if s := p.Stats(); s.Played != 1 || s.Generated != 1 || s.Speaking {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestPipeline_FlushPreemptsPlayback(t *testing.T) {
	fake := engines.NewFake(testRate)
	fake.SetAudioPerRune(50 * time.Millisecond)
	sink := audio.NewMockSink(audio.Format{})
	p := newTestPipeline(t, fake, sink, Config{})

	p.Speak("aaaaaaaaaa", Flush) // 500ms of audio
	waitUntil(t, func() bool { return len(sink.CompletedWrites()) > 0 }, "first chunk to play")
	p.Speak("bb", Flush)
	if p.Speaking() {
		t.Error("Speaking still set right after flush")
	}
	drain(t, p)

	if got := sink.GetMetrics().MaxActive; got != 1 {
		t.Errorf("sink saw %d overlapping writes", got)
	}
	completed := sink.CompletedWrites()
	if len(completed) == 0 {
		t.Fatal("nothing played")
	}
	if last := completed[len(completed)-1]; sampleOf(last) != sampleOf(fake.PCMFor("bb")) {
		t.Error("last completed playback is not the second utterance")
	}
	if got := writtenTexts(fake, sink, "aaaaaaaaaa", "bb"); len(got) != 2 || got[0] != "aaaaaaaaaa" || got[1] != "bb" {
		t.Errorf("playback sequence = %v", got)
	}

	s := p.Stats()
	if s.Played != 1 || s.Preemptions != 2 || s.Discarded != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if m := sink.GetMetrics(); m.PauseCount != 1 || m.FlushCount != 1 {
		t.Errorf("sink pause/flush = %d/%d, want 1/1", m.PauseCount, m.FlushCount)
	}
}

func TestPipeline_StaleGenerationIsDiscarded(t *testing.T) {
	fake := engines.NewFake(testRate)
	fake.SetDelayFor("slow", 80*time.Millisecond)
	sink := audio.NewMockSink(audio.Format{})
	p := newTestPipeline(t, fake, sink, Config{})

	p.Speak("slow", Flush)
	p.Speak("fast", Flush)
	drain(t, p)

	if got := writtenTexts(fake, sink, "slow", "fast"); len(got) != 1 || got[0] != "fast" {
		t.Errorf("playback sequence = %v, want [fast]", got)
	}
	if s := p.Stats(); s.Discarded != 1 || s.Generated != 2 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestPipeline_AppendKeepsCallOrder(t *testing.T) {
	fake := engines.NewFake(testRate)
	fake.SetDelayFor("first", 60*time.Millisecond)
	sink := audio.NewMockSink(audio.Format{})
	p := newTestPipeline(t, fake, sink, Config{})

	p.Speak("first", Append)
	p.Speak("second", Append)
	p.Speak("third", Append)
	drain(t, p)

	got := writtenTexts(fake, sink, "first", "second", "third")
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("playback sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("playback sequence = %v, want %v", got, want)
		}
	}
	if got := sink.GetMetrics().MaxActive; got != 1 {
		t.Errorf("sink saw %d overlapping writes", got)
	}
}

func TestPipeline_GenerationFailureDoesNotBlockQueue(t *testing.T) {
	fake := engines.NewFake(testRate)
	fake.FailOn("broken", errors.New("engine crashed"))
	fake.SetDelayFor("broken", 30*time.Millisecond)
	sink := audio.NewMockSink(audio.Format{})
	p := newTestPipeline(t, fake, sink, Config{})

	p.Speak("broken", Append)
	p.Speak("fine", Append)
	drain(t, p)

	if got := writtenTexts(fake, sink, "fine"); len(got) != 1 || got[0] != "fine" {
		t.Errorf("playback sequence = %v, want [fine]", got)
	}
	s := p.Stats()
	if s.GenerationFailures != 1 || s.Played != 1 || s.State != StateReady {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestPipeline_PlaybackFailureKeepsReady(t *testing.T) {
	fake := engines.NewFake(testRate)
	sink := audio.NewMockSink(audio.Format{})
	sink.SetWriteError(errors.New("device unplugged"))
	p := newTestPipeline(t, fake, sink, Config{})

	p.Speak("hello", Flush)
	drain(t, p)

	s := p.Stats()
	if s.PlaybackFailures != 1 || s.Played != 0 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if p.Speaking() {
		t.Error("Speaking still set after playback failure")
	}
	if !p.Ready() {
		t.Errorf("state = %v, want ready", p.State())
	}

	sink.SetWriteError(nil)
	p.Speak("again", Flush)
	drain(t, p)
	if p.Stats().Played != 1 {
		t.Error("pipeline did not recover after playback failure")
	}
}

func TestPipeline_EmptyFlushStopsPlayback(t *testing.T) {
	fake := engines.NewFake(testRate)
	fake.SetAudioPerRune(50 * time.Millisecond)
	sink := audio.NewMockSink(audio.Format{})
	p := newTestPipeline(t, fake, sink, Config{})

	p.Speak("aaaaaaaaaa", Append)
	waitUntil(t, p.Speaking, "utterance to start")
	start := time.Now()
	p.Speak("", Flush)
	drain(t, p)

	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("playback not interrupted, drain took %v", elapsed)
	}
	if p.Stats().Played != 0 {
		t.Error("interrupted utterance counted as played")
	}
}

func TestPipeline_ShutdownTwice(t *testing.T) {
	fake := engines.NewFake(testRate)
	fake.SetAudioPerRune(50 * time.Millisecond)
	sink := audio.NewMockSink(audio.Format{})
	p := New(StaticEngine(fake), audio.MockSinkOpener(sink), Config{}, WithLogger(log.New(io.Discard)))
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	p.Speak("aaaaaaaaaa", Flush)
	waitUntil(t, p.Speaking, "utterance to start")

	start := time.Now()
	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown took %v", elapsed)
	}
	if err := p.Shutdown(); err != nil {
		t.Fatalf("second Shutdown failed: %v", err)
	}

	m := sink.GetMetrics()
	if m.ReleaseCount != 1 || m.StopCount != 1 {
		t.Errorf("sink stop/release = %d/%d, want 1/1", m.StopCount, m.ReleaseCount)
	}
	if fake.Closes() != 1 {
		t.Errorf("engine closed %d times, want 1", fake.Closes())
	}
	if p.State() != StateShutDown {
		t.Errorf("state = %v, want shut-down", p.State())
	}

	writes := len(sink.Writes())
	p.Speak("after", Flush)
	time.Sleep(20 * time.Millisecond)
	if len(sink.Writes()) != writes {
		t.Error("Speak after Shutdown reached the sink")
	}
}

func TestPipeline_ShutdownBeforeInitialize(t *testing.T) {
	p := New(StaticEngine(engines.NewFake(testRate)), audio.MockSinkOpener(audio.NewMockSink(audio.Format{})),
		Config{}, WithLogger(log.New(io.Discard)))
	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if p.State() != StateShutDown {
		t.Errorf("state = %v, want shut-down", p.State())
	}
}

// panicEngine panics on one text and otherwise defers to a Fake.
type panicEngine struct {
	*engines.Fake
	on string
}

func (e panicEngine) Generate(ctx context.Context, text, voiceID string, speed float64) ([]byte, error) {
	if text == e.on {
		panic("synthesizer crashed")
	}
	return e.Fake.Generate(ctx, text, voiceID, speed)
}

func TestPipeline_EnginePanicIsAFailedGeneration(t *testing.T) {
	fake := engines.NewFake(testRate)
	sink := audio.NewMockSink(audio.Format{})
	p := newTestPipeline(t, panicEngine{Fake: fake, on: "boom"}, sink, Config{ChunkDuration: -1})

	p.Speak("boom", Append)
	p.Speak("after", Append)
	drain(t, p)

	if got := writtenTexts(fake, sink, "boom", "after"); len(got) != 1 || got[0] != "after" {
		t.Errorf("playback sequence = %v, want [after]", got)
	}
	s := p.Stats()
	if s.GenerationFailures != 1 || s.State != StateReady {
		t.Errorf("unexpected stats: %+v", s)
	}

	ann := p.SpeakCompositeStatus([]string{"boom", "network"})
	waitAnnouncement(t, ann)
	if ann.Drained() != 2 || ann.Played() != 1 {
		t.Errorf("drained/played = %d/%d, want 2/1", ann.Drained(), ann.Played())
	}
}
