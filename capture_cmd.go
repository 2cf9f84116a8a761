package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/glasscast/glasscast/internal/audio"
	"github.com/glasscast/glasscast/internal/capture"
	"github.com/glasscast/glasscast/ui"
)

var (
	captureDuration time.Duration
	captureMuted    bool

	captureCmd = &cobra.Command{
		Use:   "capture",
		Short: "Capture from the microphone and show the input level",
		Long: paragraph(fmt.Sprintf("\n%s from the microphone and print the input level until interrupted.",
			keyword("Capture"))),
		Example: paragraph("glasscast capture\nglasscast capture --duration 10s"),
		Args:    cobra.NoArgs,
		RunE:    runCapture,
	}
)

func init() {
	captureCmd.Flags().DurationVarP(&captureDuration, "duration", "d", 0, "stop after this long (0 runs until interrupted)")
	captureCmd.Flags().BoolVar(&captureMuted, "muted", false, "start with the microphone muted")
}

func runCapture(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if captureDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, captureDuration)
		defer cancel()
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if captureMuted {
		a.cfg.Capture.Muted = true
	}
	channels := audio.Mono
	if cfg.Capture.Stereo {
		channels = audio.Stereo
	}
	meter := capture.NewLevelMeter(channels, nil)
	if err := a.startCapture(meter); err != nil {
		return err
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	display := ui.NewStatusDisplay()
	ticker := time.NewTicker(cfg.Capture.MeterInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.source.Stop()
			st := a.source.Stats()
			if interactive {
				fmt.Println()
			}
			fmt.Printf("Captured %s in %s frames (%s muted, %d read errors)\n",
				humanize.Bytes(uint64(st.Bytes)),
				humanize.Comma(st.Frames),
				humanize.Comma(st.MutedFrames),
				st.ReadErrors)
			return nil

		case <-ticker.C:
			r := meter.Reading()
			st := a.source.Stats()
			if !interactive {
				fmt.Printf("%d\t%.1f\t%.1f\n", r.TimestampMicros, r.Level.RMS, r.Level.Peak)
				continue
			}
			display.Update(a.pipelineStats(), st, r)
			line := fmt.Sprintf("%s %6.1f dBFS  peak %6.1f", display.MeterBar(40), r.Level.RMS, r.PeakHold)
			if st.Muted {
				line += "  " + warning("muted")
			}
			fmt.Printf("\r%s\033[K", line)
		}
	}
}
