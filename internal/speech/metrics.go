package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/glasscast/glasscast/internal/telemetry"
)

// MetricsLogger tracks and logs synthesis and playback metrics.
type MetricsLogger struct {
	logger *log.Logger

	synthesis      metric.Float64Histogram
	synthesisFails metric.Int64Counter
	discarded      metric.Int64Counter
	played         metric.Int64Counter
	playbackFails  metric.Int64Counter
	preemptions    metric.Int64Counter
}

// NewMetricsLogger creates a metrics logger writing to logger and the
// global meter provider.
func NewMetricsLogger(logger *log.Logger) *MetricsLogger {
	meter := telemetry.Meter("speech")
	return &MetricsLogger{
		logger:         logger,
		synthesis:      telemetry.Histogram(meter, "glasscast.speech.synthesis.duration", "Time spent generating an utterance"),
		synthesisFails: telemetry.Counter(meter, "glasscast.speech.synthesis.failures", "Failed generation jobs"),
		discarded:      telemetry.Counter(meter, "glasscast.speech.discarded", "Utterances dropped because they were superseded"),
		played:         telemetry.Counter(meter, "glasscast.speech.played", "Utterances played to completion"),
		playbackFails:  telemetry.Counter(meter, "glasscast.speech.playback.failures", "Sink write failures"),
		preemptions:    telemetry.Counter(meter, "glasscast.speech.preemptions", "Flush-mode interruptions"),
	}
}

// Synthesis holds the metrics of one generation job.
type Synthesis struct {
	m          *MetricsLogger
	Engine     string
	TextLength int
	Start      time.Time
	Duration   time.Duration
	AudioBytes int
}

// StartSynthesis starts tracking a generation job.
func (m *MetricsLogger) StartSynthesis(engine, text string) *Synthesis {
	s := &Synthesis{
		m:          m,
		Engine:     engine,
		TextLength: len(text),
		Start:      time.Now(),
	}
	m.logger.Debug("Synthesis started", "engine", engine, "textLength", len(text))
	return s
}

// End completes tracking of the generation job.
func (s *Synthesis) End(audioBytes int, err error) {
	s.Duration = time.Since(s.Start)
	s.AudioBytes = audioBytes

	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("engine", s.Engine))
	s.m.synthesis.Record(ctx, s.Duration.Seconds(), attrs)

	if err != nil {
		s.m.synthesisFails.Add(ctx, 1, attrs)
		s.m.logger.Error("Synthesis failed",
			"engine", s.Engine,
			"duration", s.Duration,
			"error", err)
		return
	}
	s.m.logger.Debug("Synthesis completed",
		"engine", s.Engine,
		"textLength", s.TextLength,
		"audioBytes", audioBytes,
		"duration", s.Duration,
		"bytesPerSecond", calculateBytesPerSecond(audioBytes, s.Duration))
}

// calculateBytesPerSecond calculates synthesis throughput
func calculateBytesPerSecond(bytes int, duration time.Duration) string {
	if duration == 0 {
		return "N/A"
	}
	bps := float64(bytes) / duration.Seconds()
	return fmt.Sprintf("%.2f bytes/sec", bps)
}

// LogDiscarded records an utterance dropped because a flush superseded it.
func (m *MetricsLogger) LogDiscarded(reason string) {
	m.discarded.Add(context.Background(), 1)
	m.logger.Debug("Utterance discarded", "reason", reason)
}

// LogPlayed records an utterance that played to completion.
func (m *MetricsLogger) LogPlayed(bytes int, d time.Duration) {
	m.played.Add(context.Background(), 1)
	m.logger.Debug("Playback completed", "bytes", bytes, "duration", d)
}

// LogPlaybackFailure records a sink failure.
func (m *MetricsLogger) LogPlaybackFailure(op string, err error) {
	m.playbackFails.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
	m.logger.Error("Playback failed", "op", op, "error", err)
}

// LogPreemption records a flush-mode interruption.
func (m *MetricsLogger) LogPreemption(wasSpeaking bool) {
	m.preemptions.Add(context.Background(), 1)
	m.logger.Debug("Playback preempted", "wasSpeaking", wasSpeaking)
}
