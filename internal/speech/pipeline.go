// Package speech generates speech off the playback path and plays it in a
// deterministic order.
//
// A Pipeline owns one synthesis engine and one playback sink. Generation
// runs on a bounded pool; playback is serialized by a ticket sequencer so
// utterances reach the sink in the order they were requested and never
// overlap. A flush-mode request bumps the pipeline epoch, which makes every
// earlier request stale: stale results are discarded instead of played late.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/glasscast/glasscast/internal/audio"
)

// QueueMode selects how a request interacts with queued speech.
type QueueMode int

const (
	// Flush interrupts current playback and discards everything queued.
	Flush QueueMode = iota
	// Append plays after every earlier, still current request.
	Append
)

// String returns the string representation of the mode.
func (m QueueMode) String() string {
	switch m {
	case Flush:
		return "flush"
	case Append:
		return "append"
	default:
		return "unknown"
	}
}

const (
	defaultWorkers         = 2
	defaultChunkDuration   = 20 * time.Millisecond
	defaultShutdownTimeout = 5 * time.Second
	maxFlushRetries        = 3
)

// Config holds pipeline settings.
type Config struct {
	// VoiceID and Speed are passed to every Generate call.
	VoiceID string
	Speed   float64

	// Workers bounds concurrent generation. Defaults to 2.
	Workers int

	// ChunkDuration is the size of each sink write. Zero selects 20ms, a
	// negative value writes each utterance in one call.
	ChunkDuration time.Duration

	// Ordering selects composite playback order.
	Ordering Ordering

	// GenerateTimeout bounds a single Generate call. Zero means no limit.
	GenerateTimeout time.Duration

	// ShutdownTimeout bounds how long Shutdown waits for background jobs.
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.ChunkDuration == 0 {
		c.ChunkDuration = defaultChunkDuration
	}
	if c.Speed <= 0 {
		c.Speed = 1.0
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return c
}

// EngineLoader acquires the synthesis engine during Initialize.
type EngineLoader func(ctx context.Context) (audio.SynthesisEngine, error)

// StaticEngine returns a loader for an already constructed engine.
func StaticEngine(e audio.SynthesisEngine) EngineLoader {
	return func(context.Context) (audio.SynthesisEngine, error) {
		if e == nil {
			return nil, ErrNoEngine
		}
		return e, nil
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger overrides the pipeline logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	State              State
	Speaking           bool
	Requests           int64
	Generated          int64
	GenerationFailures int64
	Discarded          int64
	Played             int64
	PlaybackFailures   int64
	Preemptions        int64
}

// Pipeline is a speech synthesis and playback pipeline.
type Pipeline struct {
	cfg      Config
	load     EngineLoader
	openSink audio.SinkOpener
	logger   *log.Logger
	metrics  *MetricsLogger

	// stateMu guards the fields below it. It is never held while calling
	// into the engine or the sink.
	stateMu  sync.Mutex
	sm       *stateMachine
	speaking bool
	epoch    uint64
	lastErr  error
	engine   audio.SynthesisEngine
	sink     audio.PlaybackSink
	format   audio.Format
	pending  int
	idle     chan struct{}

	// sinkMu is held around every sink write so at most one playback
	// operation touches the sink at a time.
	sinkMu sync.Mutex

	seq    *sequencer
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	requests           atomic.Int64
	generated          atomic.Int64
	generationFailures atomic.Int64
	discarded          atomic.Int64
	played             atomic.Int64
	playbackFailures   atomic.Int64
	preemptions        atomic.Int64
}

// New creates an uninitialized pipeline.
func New(load EngineLoader, openSink audio.SinkOpener, cfg Config, opts ...Option) *Pipeline {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:      cfg,
		load:     load,
		openSink: openSink,
		logger:   log.Default().With("component", "speech"),
		seq:      newSequencer(),
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.metrics = NewMetricsLogger(p.logger)
	p.sm = newStateMachine(func(from, to State) {
		p.logger.Debug("pipeline state changed", "from", from, "to", to)
	})
	return p
}

// Initialize loads the engine and opens a mono PCM16 sink at the engine's
// sample rate. On failure the pipeline enters StateFailed, anything already
// acquired is released and every later Speak is a no-op.
func (p *Pipeline) Initialize(ctx context.Context) error {
	p.stateMu.Lock()
	switch p.sm.Current() {
	case StateUninitialized:
	case StateShuttingDown, StateShutDown:
		p.stateMu.Unlock()
		return ErrShutDown
	default:
		p.stateMu.Unlock()
		return ErrAlreadyInitialized
	}
	p.sm.Transition(StateInitializing)
	p.stateMu.Unlock()

	if p.load == nil {
		return p.fail(&Error{Op: "load engine", Err: ErrNoEngine})
	}
	engine, err := p.load(ctx)
	if err != nil {
		return p.fail(&Error{Op: "load engine", Err: err})
	}

	format := audio.Format{SampleRate: engine.SampleRate(), Channels: audio.Mono}
	if format.SampleRate <= 0 {
		p.closeEngine(engine)
		return p.fail(&Error{Op: "load engine", Err: ErrInvalidSampleRate})
	}

	sink, err := p.openSink(format)
	if err != nil {
		p.closeEngine(engine)
		return p.fail(&Error{Op: "open sink", Err: err})
	}

	p.stateMu.Lock()
	if p.sm.Current() != StateInitializing {
		// Shutdown ran while we were acquiring resources.
		p.stateMu.Unlock()
		if err := sink.Release(); err != nil {
			p.logger.Warn("failed to release sink", "error", err)
		}
		p.closeEngine(engine)
		return ErrShutDown
	}
	p.engine = engine
	p.sink = sink
	p.format = format
	p.sm.Transition(StateReady)
	p.stateMu.Unlock()

	p.logger.Info("speech pipeline ready",
		"engine", engine.Name(),
		"sample_rate", format.SampleRate,
		"workers", p.cfg.Workers)
	return nil
}

func (p *Pipeline) fail(err error) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.lastErr = err
	if !p.sm.Transition(StateFailed) {
		// Shutdown won the race; report that instead.
		return ErrShutDown
	}
	p.logger.Error("speech pipeline initialization failed", "error", err)
	return err
}

func (p *Pipeline) closeEngine(e audio.SynthesisEngine) {
	if err := e.Close(); err != nil {
		p.logger.Warn("failed to close engine", "engine", e.Name(), "error", err)
	}
}

// Speak queues text for playback and returns immediately. It is a no-op
// unless the pipeline is ready. In Flush mode current playback is
// interrupted before Speak returns; an empty text in Flush mode only
// interrupts.
func (p *Pipeline) Speak(text string, mode QueueMode) {
	text = strings.TrimSpace(text)

	p.stateMu.Lock()
	if st := p.sm.Current(); st != StateReady {
		p.stateMu.Unlock()
		p.logger.Warn("speak ignored", "state", st)
		return
	}
	wasSpeaking := false
	if mode == Flush {
		wasSpeaking = p.preemptLocked()
	}
	if text == "" {
		p.stateMu.Unlock()
		if wasSpeaking {
			p.interruptSink()
		}
		return
	}
	epoch := p.epoch
	ticket := p.seq.issue()
	p.addPendingLocked()
	p.stateMu.Unlock()

	p.requests.Add(1)
	if wasSpeaking {
		p.interruptSink()
	}
	go p.runSingle(ticket, epoch, text)
}

// preemptLocked makes all queued and playing speech stale and reports
// whether something was playing.
func (p *Pipeline) preemptLocked() bool {
	wasSpeaking := p.speaking
	p.epoch++
	p.speaking = false
	p.seq.reset()
	p.preemptions.Add(1)
	p.metrics.LogPreemption(wasSpeaking)
	return wasSpeaking
}

// interruptSink releases a write in progress. It does not take sinkMu: the
// writer holding it is the one being interrupted.
func (p *Pipeline) interruptSink() {
	p.stateMu.Lock()
	sink := p.sink
	p.stateMu.Unlock()
	if sink == nil {
		return
	}
	if err := sink.Pause(); err != nil {
		p.playbackFailures.Add(1)
		p.metrics.LogPlaybackFailure("pause", err)
	}
	if err := sink.Flush(); err != nil {
		p.playbackFailures.Add(1)
		p.metrics.LogPlaybackFailure("flush", err)
	}
}

func (p *Pipeline) runSingle(ticket, epoch uint64, text string) {
	defer p.donePending()

	pcm, err := p.generateBounded(text)
	if err != nil || len(pcm) == 0 {
		p.seq.finish(ticket)
		return
	}
	if !p.seq.wait(ticket) {
		p.discarded.Add(1)
		p.metrics.LogDiscarded("superseded before playback")
		return
	}
	p.play(epoch, pcm)
	p.seq.finish(ticket)
}

// generateBounded runs one generation on the pipeline's worker pool. Single
// and composite speaks share it, so at most Workers generations run at once.
func (p *Pipeline) generateBounded(text string) ([]byte, error) {
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return p.generate(text)
}

// generate calls the engine. Failures are counted and logged here; callers
// only need to know there is nothing to play.
func (p *Pipeline) generate(text string) ([]byte, error) {
	p.stateMu.Lock()
	engine := p.engine
	format := p.format
	p.stateMu.Unlock()
	if engine == nil {
		return nil, ErrShutDown
	}

	ctx := p.ctx
	if p.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.GenerateTimeout)
		defer cancel()
	}

	m := p.metrics.StartSynthesis(engine.Name(), text)
	pcm, err := p.callEngine(ctx, engine, text)
	if err != nil {
		m.End(0, err)
		p.generationFailures.Add(1)
		return nil, &Error{Op: "generate", Err: err}
	}
	// Drop a trailing partial sample rather than hand the sink misaligned
	// data.
	pcm = pcm[:len(pcm)-len(pcm)%format.FrameSize()]
	m.End(len(pcm), nil)
	p.generated.Add(1)
	return pcm, nil
}

// callEngine runs Generate, converting a panic into an error.
func (p *Pipeline) callEngine(ctx context.Context, engine audio.SynthesisEngine, text string) (pcm []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("engine panicked", "engine", engine.Name(), "panic", r)
			pcm, err = nil, fmt.Errorf("%w: %v", ErrEnginePanic, r)
		}
	}()
	return engine.Generate(ctx, text, p.cfg.VoiceID, p.cfg.Speed)
}

// play writes pcm to the sink in chunks while epoch is current. It reports
// whether the whole buffer was played.
func (p *Pipeline) play(epoch uint64, pcm []byte) bool {
	p.stateMu.Lock()
	if !p.currentLocked(epoch) {
		p.stateMu.Unlock()
		p.discarded.Add(1)
		p.metrics.LogDiscarded("superseded before playback")
		return false
	}
	p.speaking = true
	sink := p.sink
	chunk := len(pcm)
	if p.cfg.ChunkDuration > 0 {
		chunk = max(p.format.BytesFor(p.cfg.ChunkDuration), p.format.FrameSize())
	}
	p.stateMu.Unlock()

	defer func() {
		p.stateMu.Lock()
		if p.epoch == epoch {
			p.speaking = false
		}
		p.stateMu.Unlock()
	}()

	start := time.Now()
	needPlay := true
	retries := 0
	for off := 0; off < len(pcm); {
		end := min(off+chunk, len(pcm))
		stale, err := p.writeChunk(sink, epoch, pcm[off:end], &needPlay)
		if stale {
			p.discarded.Add(1)
			p.metrics.LogDiscarded("preempted during playback")
			return false
		}
		if err != nil {
			// A flush from a concurrent caller that raced our own
			// preemption; the epoch is still ours, so resume.
			if errors.Is(err, audio.ErrFlushed) && retries < maxFlushRetries {
				retries++
				needPlay = true
				continue
			}
			p.playbackFailures.Add(1)
			p.metrics.LogPlaybackFailure("write", err)
			return false
		}
		off = end
	}

	p.played.Add(1)
	p.metrics.LogPlayed(len(pcm), time.Since(start))
	return true
}

// writeChunk performs one sink write under sinkMu after checking that epoch
// is still current.
func (p *Pipeline) writeChunk(sink audio.PlaybackSink, epoch uint64, buf []byte, needPlay *bool) (bool, error) {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()

	if !p.current(epoch) {
		return true, nil
	}
	if *needPlay {
		if err := sink.Play(); err != nil {
			return false, err
		}
		*needPlay = false
	}
	if _, err := sink.Write(buf); err != nil {
		if !p.current(epoch) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (p *Pipeline) current(epoch uint64) bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.currentLocked(epoch)
}

func (p *Pipeline) currentLocked(epoch uint64) bool {
	return p.epoch == epoch && p.sm.Current() == StateReady
}

func (p *Pipeline) addPendingLocked() {
	if p.pending == 0 {
		p.idle = make(chan struct{})
	}
	p.pending++
}

func (p *Pipeline) donePending() {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.pending--
	if p.pending == 0 {
		close(p.idle)
	}
}

// Drain blocks until every accepted request has finished playing or was
// discarded, or ctx is done.
func (p *Pipeline) Drain(ctx context.Context) error {
	p.stateMu.Lock()
	if p.pending == 0 {
		p.stateMu.Unlock()
		return nil
	}
	idle := p.idle
	p.stateMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown interrupts playback, cancels generation, and releases the sink
// and engine. It is safe to call in any state and more than once.
func (p *Pipeline) Shutdown() error {
	p.stateMu.Lock()
	switch p.sm.Current() {
	case StateShuttingDown, StateShutDown:
		p.stateMu.Unlock()
		return nil
	}
	wasSpeaking := p.speaking
	p.epoch++
	p.speaking = false
	p.sm.Transition(StateShuttingDown)
	sink := p.sink
	engine := p.engine
	p.stateMu.Unlock()

	p.cancel()
	p.seq.close()
	if wasSpeaking && sink != nil {
		if err := sink.Pause(); err != nil {
			p.logger.Warn("failed to pause sink", "error", err)
		}
		if err := sink.Flush(); err != nil {
			p.logger.Warn("failed to flush sink", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ShutdownTimeout)
	if err := p.Drain(ctx); err != nil {
		p.logger.Warn("background speech jobs still running at shutdown", "error", err)
	}
	cancel()

	var errs []error
	if sink != nil {
		p.sinkMu.Lock()
		if err := sink.Stop(); err != nil {
			errs = append(errs, &Error{Op: "stop sink", Err: err})
		}
		if err := sink.Release(); err != nil {
			errs = append(errs, &Error{Op: "release sink", Err: err})
		}
		p.sinkMu.Unlock()
	}
	if engine != nil {
		if err := engine.Close(); err != nil {
			errs = append(errs, &Error{Op: "close engine", Err: err})
		}
	}

	p.stateMu.Lock()
	p.engine = nil
	p.sink = nil
	p.sm.Transition(StateShutDown)
	p.stateMu.Unlock()

	p.logger.Debug("speech pipeline shut down")
	return errors.Join(errs...)
}

// State returns the lifecycle state.
func (p *Pipeline) State() State {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.sm.Current()
}

// Ready reports whether the pipeline accepts speech.
func (p *Pipeline) Ready() bool {
	return p.State() == StateReady
}

// Speaking reports whether an utterance is being written to the sink.
func (p *Pipeline) Speaking() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.speaking
}

// Err returns the initialization error, if any.
func (p *Pipeline) Err() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.lastErr
}

// Format returns the sink format chosen by Initialize.
func (p *Pipeline) Format() audio.Format {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.format
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.stateMu.Lock()
	st, speaking := p.sm.Current(), p.speaking
	p.stateMu.Unlock()
	return Stats{
		State:              st,
		Speaking:           speaking,
		Requests:           p.requests.Load(),
		Generated:          p.generated.Load(),
		GenerationFailures: p.generationFailures.Load(),
		Discarded:          p.discarded.Load(),
		Played:             p.played.Load(),
		PlaybackFailures:   p.playbackFailures.Load(),
		Preemptions:        p.preemptions.Load(),
	}
}
