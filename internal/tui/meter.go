// SPDX-License-Identifier: MIT
package tui

import (
	"doppler/internal/transport"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultBarWidth = 40
	labelWidth      = 8
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5C5C5C"))
)

// StatusMsg replaces the status line, e.g. while calibrating.
type StatusMsg string

type readingMsg transport.Reading

// closedMsg is sent once the readings channel is closed.
type closedMsg struct{}

type keyMap struct {
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// MeterModel is the Bubble Tea model showing live bandwidth readings as two
// bars, left and right of the tone.
type MeterModel struct {
	readings <-chan transport.Reading
	window   int // Largest reportable bandwidth, the full bar length.
	barWidth int
	status   string
	latest   transport.Reading
	received bool
	stopped  bool
	keys     keyMap
	help     help.Model
}

// NewMeterModel creates a meter reading from readings. window is the maximum
// bandwidth in bins.
func NewMeterModel(readings <-chan transport.Reading, window int) MeterModel {
	return MeterModel{
		readings: readings,
		window:   max(window, 1),
		barWidth: defaultBarWidth,
		status:   "Starting...",
		keys: keyMap{
			Quit: key.NewBinding(
				key.WithKeys("q", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
		help: help.New(),
	}
}

// Init starts listening for readings.
func (m MeterModel) Init() tea.Cmd {
	return waitForReading(m.readings)
}

func waitForReading(readings <-chan transport.Reading) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-readings
		if !ok {
			return closedMsg{}
		}
		return readingMsg(r)
	}
}

func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.barWidth = max(msg.Width-labelWidth-8, 10)
		m.help.Width = msg.Width

	case readingMsg:
		m.latest = transport.Reading(msg)
		m.received = true
		m.status = "Sensing"
		return m, waitForReading(m.readings)

	case StatusMsg:
		m.status = string(msg)

	case closedMsg:
		m.stopped = true
		m.status = "Sensor stopped"

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
	}

	return m, nil
}

// View renders the UI
func (m MeterModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Doppler Sensor"))
	sb.WriteString("\n\n")
	sb.WriteString(infoStyle.Render(m.status))
	sb.WriteString("\n\n")

	if !m.received {
		sb.WriteString(dimStyle.Render("Waiting for the first reading..."))
	} else {
		sb.WriteString(fmt.Sprintf("Tone: %s   Reading #%d\n\n",
			highlightStyle.Render(fmt.Sprintf("%.1f Hz", m.latest.ToneHz)), m.latest.Sequence))
		sb.WriteString(m.renderBar("Left", m.latest.Left))
		sb.WriteString("\n")
		sb.WriteString(m.renderBar("Right", m.latest.Right))
	}

	sb.WriteString("\n\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

// renderBar draws value as a proportion of the window.
func (m MeterModel) renderBar(label string, value int) string {
	filled := min(max(value, 0), m.window) * m.barWidth / m.window
	bar := highlightStyle.Render(strings.Repeat("█", filled)) +
		dimStyle.Render(strings.Repeat("░", m.barWidth-filled))
	return fmt.Sprintf("%-*s%s %d", labelWidth, label, bar, value)
}

// NewMeterProgram creates the Bubble Tea program for the meter. Callers can
// push StatusMsg values with Send before and while it runs.
func NewMeterProgram(readings <-chan transport.Reading, window int) *tea.Program {
	return tea.NewProgram(
		NewMeterModel(readings, window),
		tea.WithAltScreen(),
	)
}
