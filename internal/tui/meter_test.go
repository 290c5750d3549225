// SPDX-License-Identifier: MIT
package tui

import (
	"doppler/internal/transport"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestMeterWaitsForReading(t *testing.T) {
	readings := make(chan transport.Reading, 1)
	m := NewMeterModel(readings, 33)

	readings <- transport.Reading{Sequence: 1, Left: 2, Right: 3}
	msg := m.Init()()
	if got, ok := msg.(readingMsg); !ok || got.Sequence != 1 {
		t.Fatalf("Init command produced %#v, want the queued reading", msg)
	}

	close(readings)
	if _, ok := m.Init()().(closedMsg); !ok {
		t.Error("expected closedMsg once the channel is closed")
	}
}

func TestMeterUpdateReading(t *testing.T) {
	m := NewMeterModel(make(chan transport.Reading), 33)

	if !strings.Contains(m.View(), "Waiting for the first reading") {
		t.Error("initial view should wait for a reading")
	}

	updated, cmd := m.Update(readingMsg{Sequence: 9, ToneHz: 20003.9, Left: 4, Right: 33})
	if cmd == nil {
		t.Error("expected a command to wait for the next reading")
	}

	view := updated.View()
	for _, want := range []string{"20003.9 Hz", "#9", "Left", "Right", "Sensing"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestMeterStatusAndClose(t *testing.T) {
	var m tea.Model = NewMeterModel(make(chan transport.Reading), 33)

	m, _ = m.Update(StatusMsg("Calibrating 19000-22000 Hz"))
	if !strings.Contains(m.View(), "Calibrating 19000-22000 Hz") {
		t.Error("status message not shown")
	}

	m, _ = m.Update(closedMsg{})
	if !m.(MeterModel).stopped || !strings.Contains(m.View(), "Sensor stopped") {
		t.Error("closed channel should mark the sensor stopped")
	}
}

func TestMeterQuitKeys(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMeterModel(make(chan transport.Reading), 33)
			_, cmd := m.Update(tt.msg)
			if cmd == nil {
				t.Fatal("expected quit command")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Error("expected tea.QuitMsg")
			}
		})
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		name       string
		value      int
		wantFilled int
	}{
		{"Empty", 0, 0},
		{"Half", 10, 5},
		{"Full", 20, 10},
		{"Clamped", 50, 10},
		{"Negative", -3, 0},
	}

	m := NewMeterModel(nil, 20)
	m.barWidth = 10

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := m.renderBar("Left", tt.value)
			if got := strings.Count(bar, "█"); got != tt.wantFilled {
				t.Errorf("renderBar(%d) filled %d cells, want %d", tt.value, got, tt.wantFilled)
			}
			if got := strings.Count(bar, "░"); got != 10-tt.wantFilled {
				t.Errorf("renderBar(%d) left %d empty cells, want %d", tt.value, got, 10-tt.wantFilled)
			}
		})
	}
}

func TestMeterWindowResize(t *testing.T) {
	m := NewMeterModel(nil, 33)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	if got := updated.(MeterModel).barWidth; got != 100-labelWidth-8 {
		t.Errorf("barWidth = %d, want %d", got, 100-labelWidth-8)
	}
}
