package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/glasscast/glasscast/internal/audio"
	"github.com/glasscast/glasscast/internal/capture"
	"github.com/glasscast/glasscast/internal/speech"
	"github.com/glasscast/glasscast/ui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive capture and speech monitor",
	Long: paragraph(fmt.Sprintf("\nShow the input level and speech pipeline in an %s console. "+
		"Keys: m mute, c capture on/off, s speak status, q quit.", keyword("interactive"))),
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("monitor needs a terminal")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.startSpeech(ctx); err != nil {
		// The monitor still shows capture; the failure is visible as the
		// pipeline state.
		log.Error("Speech unavailable", "error", err)
	}

	channels := audio.Mono
	if cfg.Capture.Stereo {
		channels = audio.Stereo
	}
	ctrl := &monitorController{ctx: ctx, app: a, meter: capture.NewLevelMeter(channels, nil)}
	if err := a.startCapture(ctrl.meter); err != nil {
		log.Error("Capture unavailable", "error", err)
	}

	backend := cfg.Audio.Backend
	if a.backends.Mock || cfg.Audio.Mock {
		backend = "mock"
	}
	if _, err := ui.NewProgram(ui.Config{Engine: cfg.Speech.Engine, Backend: backend}, ctrl).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// monitorController adapts the running app to the monitor.
type monitorController struct {
	ctx   context.Context
	app   *app
	meter *capture.LevelMeter
}

func (c *monitorController) SpeechStats() speech.Stats   { return c.app.pipelineStats() }
func (c *monitorController) CaptureStats() capture.Stats { return c.app.source.Stats() }
func (c *monitorController) Reading() capture.Reading    { return c.meter.Reading() }

func (c *monitorController) ToggleMute() bool {
	muted := !c.app.source.Muted()
	c.app.source.SetMuted(muted)
	log.Info("Microphone mute toggled", "muted", muted)
	return muted
}

func (c *monitorController) ToggleCapture() error {
	if c.app.source.State() == capture.StateRunning {
		c.app.source.Stop()
		return nil
	}
	return c.app.source.Start(c.meter)
}

func (c *monitorController) AnnounceStatus() {
	if c.app.pipeline == nil {
		return
	}
	// Provider queries can take a while; keep them off the UI loop.
	go c.app.pipeline.SpeakStatus(c.ctx, c.app.reporter)
}
