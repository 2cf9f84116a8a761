package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/glasscast/glasscast/internal/audio"
	"github.com/glasscast/glasscast/internal/cache"
	"github.com/glasscast/glasscast/internal/capture"
	"github.com/glasscast/glasscast/internal/config"
	"github.com/glasscast/glasscast/internal/engines"
	"github.com/glasscast/glasscast/internal/speech"
	"github.com/glasscast/glasscast/internal/status"
)

// app holds the components a command needs. Pieces are created on demand
// and released by Close in reverse order.
type app struct {
	cfg      config.Config
	backends audio.Backends
	cache    *cache.Manager
	reporter *status.Reporter
	pipeline *speech.Pipeline
	source   *capture.Source
}

func newApp(cfg config.Config) (*app, error) {
	backendType, err := audio.ParseBackendType(cfg.Audio.Backend)
	if err != nil {
		return nil, err
	}
	backends, err := audio.NewBackends(backendType, cfg.Audio.Mock)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, backends: backends}
	a.reporter = status.NewReporter(
		status.SysfsBattery{Root: cfg.Status.BatteryRoot},
		status.SystemNetwork{},
		status.WithTimeout(cfg.Status.Timeout),
	)
	return a, nil
}

// startSpeech creates and initializes the speech pipeline.
func (a *app) startSpeech(ctx context.Context) error {
	if a.cfg.Cache.Enabled && a.cache == nil {
		mc, err := a.cfg.Cache.ManagerConfig()
		if err != nil {
			return err
		}
		a.cache, err = cache.NewManager(mc)
		if err != nil {
			// Speech still works without a cache.
			log.Warn("Synthesis cache unavailable", "dir", mc.DiskPath, "error", err)
		}
	}

	a.pipeline = speech.New(
		engineLoader(a.cfg, a.cache),
		a.backends.OpenSink,
		a.cfg.Speech.PipelineConfig(),
	)
	if err := a.pipeline.Initialize(ctx); err != nil {
		return fmt.Errorf("unable to start speech: %w", err)
	}
	return nil
}

// startCapture opens the microphone and starts delivering frames to sink.
func (a *app) startCapture(sink audio.FrameSink) error {
	c := a.cfg.Capture
	a.source = capture.NewSource(a.backends.Capture)
	if !a.source.Create(c.SampleRate, c.Stereo, c.EchoCanceler, c.NoiseSuppressor) {
		return fmt.Errorf("unable to open %s capture device", a.backends.Capture.Name())
	}
	a.source.SetMuted(c.Muted)
	return a.source.Start(sink)
}

func (a *app) pipelineStats() speech.Stats {
	if a.pipeline == nil {
		return speech.Stats{}
	}
	return a.pipeline.Stats()
}

func (a *app) Close() error {
	var errs []error
	if a.source != nil {
		a.source.Release()
	}
	if a.pipeline != nil {
		errs = append(errs, a.pipeline.Shutdown())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	return errors.Join(errs...)
}

// engineLoader returns a loader for the configured engine, wrapped in the
// synthesis cache when one is available.
func engineLoader(cfg config.Config, store *cache.Manager) speech.EngineLoader {
	return func(context.Context) (audio.SynthesisEngine, error) {
		engine, err := newEngine(cfg)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return engine, nil
		}
		return engines.NewCached(engine, store), nil
	}
}

func newEngine(cfg config.Config) (audio.SynthesisEngine, error) {
	switch cfg.Speech.Engine {
	case "piper":
		return engines.NewPiper(engines.PiperConfig{
			Binary:     cfg.Piper.Binary,
			ModelPath:  cfg.Piper.Model,
			ConfigPath: cfg.Piper.Config,
			Speaker:    cfg.Piper.Speaker,
			Timeout:    cfg.Piper.Timeout,
		})
	case "gtts":
		return engines.NewGTTS(engines.GTTSConfig{
			Binary:            cfg.GTTS.Binary,
			Language:          cfg.GTTS.Language,
			RequestsPerMinute: cfg.GTTS.RequestsPerMinute,
			Timeout:           cfg.GTTS.Timeout,
		})
	case "fake":
		return engines.NewFake(audio.DefaultSampleRate), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Speech.Engine)
	}
}
