package engines

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Speed limits accepted by the subprocess engines.
const (
	DefaultSpeed = 1.0
	MinSpeed     = 0.5
	MaxSpeed     = 2.0

	// maxTextSize bounds a single synthesis request in bytes.
	maxTextSize = 5000
)

// Option configures an engine.
type Option func(*options)

type options struct {
	logger *log.Logger
}

// WithLogger sets the engine's logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(name string, opts []Option) options {
	o := options{logger: log.Default().With("component", "engine", "engine", name)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ClampSpeed limits speed to [MinSpeed, MaxSpeed]. Zero selects the default.
func ClampSpeed(speed float64) float64 {
	if speed == 0 {
		return DefaultSpeed
	}
	return min(max(speed, MinSpeed), MaxSpeed)
}

func checkText(engine, text string) (string, error) {
	text = strings.TrimSpace(text)
	if len(text) > maxTextSize {
		return "", &EngineError{
			Engine:  engine,
			Type:    "input",
			Message: "text exceeds 5000 bytes",
			Cause:   ErrTextTooLong,
		}
	}
	return text, nil
}

// runCommand runs a synthesis subprocess with stdin pre-filled and returns
// its stdout. On timeout or cancellation the process is interrupted first
// and killed if it has not exited 100ms later.
func runCommand(ctx context.Context, engine string, timeout time.Duration, stdin string, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &EngineError{Engine: engine, Type: "timeout", Message: "synthesis interrupted", Cause: ctxErr}
		}
		var notFound *exec.Error
		if errors.As(err, &notFound) {
			return nil, &EngineError{Engine: engine, Type: "dependency", Message: name + " cannot be executed", Cause: err}
		}
		return nil, &EngineError{Engine: engine, Type: "synthesis", Message: strings.TrimSpace(stderr.String()), Cause: err}
	}
	if stdout.Len() == 0 {
		return nil, &EngineError{Engine: engine, Type: "synthesis", Message: strings.TrimSpace(stderr.String()), Cause: ErrNoAudio}
	}
	return stdout.Bytes(), nil
}
