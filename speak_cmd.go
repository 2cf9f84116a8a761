package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/glasscast/glasscast/internal/speech"
	"github.com/glasscast/glasscast/internal/textprep"
)

var (
	speakClipboard bool
	speakMarkdown  string
	speakFlush     bool

	speakCmd = &cobra.Command{
		Use:   "speak [TEXT...]",
		Short: "Speak text",
		Long: paragraph(fmt.Sprintf("\n%s text given as arguments, read from stdin, the clipboard or a markdown file. "+
			"Text is split into sentences that are generated in parallel and played in order.", keyword("Speak"))),
		Example: paragraph("glasscast speak \"Hello there\"\nglasscast speak --markdown README.md\necho hi | glasscast speak"),
		RunE:    runSpeak,
	}
)

func init() {
	speakCmd.Flags().BoolVar(&speakClipboard, "clipboard", false, "speak the clipboard contents")
	speakCmd.Flags().StringVarP(&speakMarkdown, "markdown", "m", "", "speak a markdown file as plain text")
	speakCmd.Flags().BoolVar(&speakFlush, "flush", false, "interrupt speech already playing")
}

func runSpeak(cmd *cobra.Command, args []string) error {
	text, err := speakInput(args)
	if err != nil {
		return err
	}
	sentences := textprep.Sentences(text)
	if len(sentences) == 0 {
		return errors.New("nothing to speak")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.startSpeech(ctx); err != nil {
		return err
	}

	enqueue(a.pipeline, sentences, speakFlush)
	if err := a.pipeline.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	st := a.pipeline.Stats()
	log.Info("Speak finished",
		"sentences", len(sentences),
		"played", st.Played,
		"failed", st.GenerationFailures,
		"discarded", st.Discarded)
	if st.Played == 0 && st.GenerationFailures > 0 {
		return fmt.Errorf("could not generate speech with %s: see %s", cfg.Speech.Engine, cfg.Log.File)
	}
	return nil
}

// enqueue speaks the first sentence with the requested mode and appends the
// rest behind it.
func enqueue(p *speech.Pipeline, sentences []string, flush bool) {
	for i, s := range sentences {
		mode := speech.Append
		if i == 0 && flush {
			mode = speech.Flush
		}
		p.Speak(s, mode)
	}
}

func speakInput(args []string) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil

	case speakClipboard:
		s, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("unable to read clipboard: %w", err)
		}
		return s, nil

	case speakMarkdown != "":
		b, err := os.ReadFile(speakMarkdown)
		if err != nil {
			return "", fmt.Errorf("unable to read markdown file: %w", err)
		}
		return textprep.StripMarkdown(string(b)), nil

	case !term.IsTerminal(int(os.Stdin.Fd())):
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("unable to read stdin: %w", err)
		}
		return string(b), nil
	}
	return "", errors.New("no text given: pass text as arguments, --clipboard, --markdown or pipe it to stdin")
}
