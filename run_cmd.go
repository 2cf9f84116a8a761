package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/glasscast/glasscast/internal/audio"
	"github.com/glasscast/glasscast/internal/capture"
	"github.com/glasscast/glasscast/internal/config"
	"github.com/glasscast/glasscast/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run capture and speech until stopped",
	Long: paragraph(fmt.Sprintf("\nRun the microphone and speech pipeline as a %s. Status is announced every "+
		"status.interval, capture.muted is applied live when the config file changes, and metrics are served "+
		"on telemetry.metrics_addr.", keyword("daemon"))),
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The meter provider has to be installed before components create
	// their instruments.
	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		shutdown, handler, err := telemetry.Setup(ctx, telemetry.Options{
			ServiceName: config.AppName,
			Environment: cfg.Telemetry.Environment,
		}, log.Default())
		if err != nil {
			return fmt.Errorf("unable to set up telemetry: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
		if handler != nil {
			go func() {
				if err := telemetry.Serve(ctx, addr, handler, log.Default()); err != nil {
					log.Error("Metrics server stopped", "addr", addr, "error", err)
				}
			}()
		}
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.startSpeech(ctx); err != nil {
		log.Error("Speech unavailable", "error", err)
		fmt.Fprintln(os.Stderr, warning("Speech unavailable:"), err)
	}

	channels := audio.Mono
	if cfg.Capture.Stereo {
		channels = audio.Stereo
	}
	meter := capture.NewLevelMeter(channels, nil)
	if err := a.startCapture(meter); err != nil {
		return err
	}

	if viper.ConfigFileUsed() != "" {
		config.Watch(viper.GetViper(), log.Default(), func(c config.Config) {
			if c.Capture.Muted != a.source.Muted() {
				a.source.SetMuted(c.Capture.Muted)
				log.Info("Microphone mute changed", "muted", c.Capture.Muted)
			}
		})
	}

	var statusC <-chan time.Time
	if cfg.Status.Interval > 0 {
		t := time.NewTicker(cfg.Status.Interval)
		defer t.Stop()
		statusC = t.C
	}

	fmt.Println(faint("Running. Press Ctrl+C to stop."))
	log.Info("Running", "engine", cfg.Speech.Engine, "status_interval", cfg.Status.Interval)

	for {
		select {
		case <-ctx.Done():
			st := a.source.Stats()
			log.Info("Stopping",
				"frames", st.Frames,
				"muted_frames", st.MutedFrames,
				"read_errors", st.ReadErrors,
				"spoken", a.pipelineStats().Played)
			return nil

		case <-statusC:
			if a.pipeline != nil {
				a.pipeline.SpeakStatus(ctx, a.reporter)
			}
		}
	}
}
