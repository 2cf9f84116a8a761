package engines

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/glasscast/glasscast/internal/audio"
	"github.com/glasscast/glasscast/internal/cache"
	"github.com/glasscast/glasscast/internal/textprep"
)

// Store is the cache a Cached engine reads and writes.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// Cached wraps an engine with a synthesis cache keyed by engine, voice,
// sample rate, speed and normalized text.
type Cached struct {
	engine audio.SynthesisEngine
	store  Store
	logger *log.Logger
}

// NewCached wraps engine. The store is not closed by Close.
func NewCached(engine audio.SynthesisEngine, store Store, opts ...Option) *Cached {
	o := buildOptions(engine.Name(), opts)
	return &Cached{engine: engine, store: store, logger: o.logger}
}

// Name returns the wrapped engine's name.
func (c *Cached) Name() string { return c.engine.Name() }

// SampleRate returns the wrapped engine's rate.
func (c *Cached) SampleRate() int { return c.engine.SampleRate() }

// Generate returns cached audio when present and otherwise synthesizes and
// stores it. Failures and empty results are not cached.
func (c *Cached) Generate(ctx context.Context, text, voiceID string, speed float64) ([]byte, error) {
	key := cache.Key(c.engine.Name(), voiceID, c.engine.SampleRate(), speed, textprep.Normalize(text))
	if pcm, ok := c.store.Get(key); ok {
		return append([]byte(nil), pcm...), nil
	}

	pcm, err := c.engine.Generate(ctx, text, voiceID, speed)
	if err != nil || len(pcm) == 0 {
		return pcm, err
	}
	if err := c.store.Put(key, append([]byte(nil), pcm...)); err != nil {
		c.logger.Warn("synthesis cache write failed", "chars", len(text), "err", err)
	}
	return pcm, nil
}

// Close closes the wrapped engine.
func (c *Cached) Close() error {
	return c.engine.Close()
}

var _ audio.SynthesisEngine = (*Cached)(nil)
