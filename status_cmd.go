package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	statusSpeak bool

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Report battery and network status",
		Long: paragraph(fmt.Sprintf("\nPrint the %s announcement, or speak it with --speak.",
			keyword("battery and network"))),
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
)

func init() {
	statusCmd.Flags().BoolVarP(&statusSpeak, "speak", "s", false, "speak the status")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if !statusSpeak {
		for _, part := range a.reporter.Parts(ctx) {
			fmt.Println(part)
		}
		return nil
	}

	if err := a.startSpeech(ctx); err != nil {
		return err
	}
	ann := a.pipeline.SpeakStatus(ctx, a.reporter)
	if err := ann.Wait(ctx); err != nil {
		return nil // interrupted
	}
	fmt.Println(faint(fmt.Sprintf("Spoke %d of %d parts", ann.Played(), ann.Parts())))
	return nil
}
