package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"

	"github.com/glasscast/glasscast/internal/capture"
	"github.com/glasscast/glasscast/internal/speech"
)

// meterFloor is the lowest level the meter bar shows, in dBFS.
const meterFloor = -60.0

// StatusDisplay renders pipeline and capture status for the monitor.
type StatusDisplay struct {
	speech       speech.Stats
	capture      capture.Stats
	reading      capture.Reading
	errorMessage string
}

// NewStatusDisplay creates a new status display.
func NewStatusDisplay() *StatusDisplay {
	return &StatusDisplay{}
}

// Update replaces the displayed snapshot.
func (s *StatusDisplay) Update(sp speech.Stats, cs capture.Stats, r capture.Reading) {
	s.speech = sp
	s.capture = cs
	s.reading = r
}

// SetError shows err until it is cleared with a nil error.
func (s *StatusDisplay) SetError(err error) {
	if err == nil {
		s.errorMessage = ""
		return
	}
	s.errorMessage = err.Error()
}

// CompactStatus returns a one-line status for the status bar.
func (s *StatusDisplay) CompactStatus() string {
	speechStyle := lipgloss.NewStyle().Foreground(s.getStateColor())
	status := speechStyle.Render(fmt.Sprintf("%s %s", s.getStateIcon(), "Speech"))

	micText := "● Mic"
	micColor := lipgloss.Color("#00FF00") // Green
	switch {
	case s.capture.State != capture.StateRunning:
		micText = "○ Mic"
		micColor = lipgloss.Color("#666666") // Dark gray
	case s.capture.Muted:
		micText = "◌ Mic muted"
		micColor = lipgloss.Color("#FFFF00") // Yellow
	}
	status += "  " + lipgloss.NewStyle().Foreground(micColor).Render(micText)

	if s.speech.Played > 0 {
		counterStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
		status += counterStyle.Render(fmt.Sprintf("  %d played", s.speech.Played))
	}
	return status
}

// DetailedStatus returns a multi-line status for the monitor body.
func (s *StatusDisplay) DetailedStatus(width int) string {
	var lines []string

	headerStyle := lipgloss.NewStyle().Bold(true)
	lines = append(lines, headerStyle.Render("Speech"))

	stateStyle := lipgloss.NewStyle().Foreground(s.getStateColor())
	stateLine := fmt.Sprintf("State: %s %s", s.getStateIcon(), s.speech.State)
	if s.speech.Speaking {
		stateLine += " (speaking)"
	}
	lines = append(lines, stateStyle.Render(stateLine))
	lines = append(lines, fmt.Sprintf("Requests: %d  Played: %d  Discarded: %d  Failed: %d",
		s.speech.Requests, s.speech.Played, s.speech.Discarded, s.speech.GenerationFailures))

	lines = append(lines, "", headerStyle.Render("Microphone"))
	capLine := fmt.Sprintf("State: %s", s.capture.State)
	if s.capture.Muted {
		capLine += " (muted)"
	}
	lines = append(lines, capLine)
	lines = append(lines, fmt.Sprintf("Frames: %s  Muted: %s  Read errors: %d  Captured: %s",
		humanize.Comma(s.capture.Frames),
		humanize.Comma(s.capture.MutedFrames),
		s.capture.ReadErrors,
		humanize.Bytes(uint64(max(s.capture.Bytes, 0)))))

	if width > 20 {
		lines = append(lines, s.renderMeterBar(width-16)+fmt.Sprintf(" %6.1f dBFS", s.reading.Level.RMS))
	}

	if s.errorMessage != "" {
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
		errorLine := truncate.StringWithTail(s.errorMessage, uint(max(width-9, 1)), "...")
		lines = append(lines, "", errorStyle.Render("Error: "+errorLine))
	}

	return strings.Join(lines, "\n")
}

// MeterBar returns a level meter of the given width.
func (s *StatusDisplay) MeterBar(width int) string {
	if width < 10 {
		return ""
	}
	return s.renderMeterBar(width)
}

// renderMeterBar draws the RMS level with the peak hold as a marker.
func (s *StatusDisplay) renderMeterBar(width int) string {
	if width < 10 {
		return ""
	}

	filledWidth := meterPosition(s.reading.Level.RMS, width)
	holdAt := meterPosition(s.reading.PeakHold, width)

	var empty strings.Builder
	for i := filledWidth; i < width; i++ {
		if i == holdAt && holdAt > 0 {
			empty.WriteString("│")
			continue
		}
		empty.WriteString("░")
	}

	filledStyle := lipgloss.NewStyle().Foreground(levelColor(s.reading.Level.RMS))
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#333333"))

	return filledStyle.Render(strings.Repeat("█", filledWidth)) + emptyStyle.Render(empty.String())
}

// meterPosition maps a dBFS level onto [0, width].
func meterPosition(db float64, width int) int {
	if db <= meterFloor {
		return 0
	}
	if db >= 0 {
		return width
	}
	return int((db - meterFloor) / -meterFloor * float64(width))
}

func levelColor(db float64) lipgloss.Color {
	switch {
	case db > -6:
		return lipgloss.Color("#FF0000") // Red
	case db > -18:
		return lipgloss.Color("#FFFF00") // Yellow
	default:
		return lipgloss.Color("#00FF00") // Green
	}
}

// getStateColor returns the appropriate color for the speech state.
func (s *StatusDisplay) getStateColor() lipgloss.Color {
	switch s.speech.State {
	case speech.StateReady:
		if s.speech.Speaking {
			return lipgloss.Color("#00FF00") // Green
		}
		return lipgloss.Color("#888888") // Gray
	case speech.StateInitializing:
		return lipgloss.Color("#00AAFF") // Blue
	case speech.StateFailed:
		return lipgloss.Color("#FF0000") // Red
	case speech.StateShuttingDown:
		return lipgloss.Color("#FF8800") // Orange
	default:
		return lipgloss.Color("#666666") // Dark gray
	}
}

// getStateIcon returns an icon for the speech state.
func (s *StatusDisplay) getStateIcon() string {
	switch s.speech.State {
	case speech.StateReady:
		if s.speech.Speaking {
			return "▶"
		}
		return "■"
	case speech.StateInitializing:
		return "⟳"
	case speech.StateFailed:
		return "✗"
	case speech.StateShuttingDown:
		return "◼"
	default:
		return "○"
	}
}

// IsActive returns true while speech is playing.
func (s *StatusDisplay) IsActive() bool {
	return s.speech.State == speech.StateReady && s.speech.Speaking
}
