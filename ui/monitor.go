// Package ui provides the interactive monitor for glasscast.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"

	"github.com/glasscast/glasscast/internal/capture"
	"github.com/glasscast/glasscast/internal/speech"
)

const (
	refreshInterval      = 100 * time.Millisecond
	statusMessageTimeout = time.Second * 3 // how long to show messages like "muted"
	ellipsis             = "…"
)

// Controller is what the monitor drives.
type Controller interface {
	SpeechStats() speech.Stats
	CaptureStats() capture.Stats
	Reading() capture.Reading

	// ToggleMute flips the mute gate and returns the new value.
	ToggleMute() bool
	// ToggleCapture stops a running capture or starts a stopped one.
	ToggleCapture() error
	// AnnounceStatus speaks the status announcement.
	AnnounceStatus()
}

// Config contains monitor settings shown in the header.
type Config struct {
	Engine  string
	Backend string
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, ctrl Controller) *tea.Program {
	log.Debug("Starting monitor", "engine", cfg.Engine, "backend", cfg.Backend)
	return tea.NewProgram(newModel(cfg, ctrl), tea.WithAltScreen())
}

type (
	tickMsg                 time.Time
	statusMessageTimeoutMsg struct{}
	captureToggledMsg       struct{ err error }
)

type model struct {
	cfg     Config
	ctrl    Controller
	display *StatusDisplay
	spinner spinner.Model

	width  int
	height int

	statusMessage      string
	statusMessageTimer *time.Timer
}

func newModel(cfg Config, ctrl Controller) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))

	m := model{
		cfg:     cfg,
		ctrl:    ctrl,
		display: NewStatusDisplay(),
		spinner: sp,
		width:   80,
	}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *model) refresh() {
	m.display.Update(m.ctrl.SpeechStats(), m.ctrl.CaptureStats(), m.ctrl.Reading())
}

func (m *model) showStatusMessage(msg string) tea.Cmd {
	m.statusMessage = msg
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit

		case "m":
			if m.ctrl.ToggleMute() {
				return m, m.showStatusMessage("Microphone muted")
			}
			return m, m.showStatusMessage("Microphone live")

		case "c":
			ctrl := m.ctrl
			return m, func() tea.Msg {
				return captureToggledMsg{err: ctrl.ToggleCapture()}
			}

		case "s":
			m.ctrl.AnnounceStatus()
			return m, m.showStatusMessage("Announcing status")
		}

	case captureToggledMsg:
		m.refresh()
		m.display.SetError(msg.err)
		if msg.err != nil {
			return m, nil
		}
		return m, m.showStatusMessage("Capture " + m.ctrl.CaptureStats().State.String())

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.refresh()
		return m, tick()

	case statusMessageTimeoutMsg:
		m.statusMessage = ""

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	header := fmt.Sprintf("glasscast  engine %s  audio %s", m.cfg.Engine, m.cfg.Backend)
	if m.display.IsActive() {
		header = m.spinner.View() + " " + header
	} else {
		header = "  " + header
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(fitWidth(header, m.width)))
	b.WriteString("\n\n")

	for _, line := range strings.Split(m.display.DetailedStatus(m.width-2), "\n") {
		b.WriteString(indent(line, 2))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.statusBarView())
	b.WriteString("\n")
	b.WriteString(helpView(m.width))
	return b.String()
}

func (m model) statusBarView() string {
	left := m.display.CompactStatus()
	if m.statusMessage == "" {
		return indent(left, 2)
	}
	msg := lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render(m.statusMessage)
	return indent(left+"  "+msg, 2)
}

func helpView(width int) string {
	help := "m mute • c capture on/off • s status • q quit"
	style := lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"})
	return indent(style.Render(fitWidth(help, width-2)), 2)
}

// fitWidth truncates s to width cells and pads it so lines keep a stable
// width as values change.
func fitWidth(s string, width int) string {
	if width <= 0 {
		return s
	}
	s = truncate.StringWithTail(s, uint(width), ellipsis)
	if w := runewidth.StringWidth(s); w < width {
		s += strings.Repeat(" ", width-w)
	}
	return s
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}

func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	return strings.Repeat(" ", n) + s
}
