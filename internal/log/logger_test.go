// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   LogLevel
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	SetLevel(LevelWarn)
	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warnf("warn %d", 3)
	Errorf("error %d", 4)

	out := buf.String()
	for _, unwanted := range []string{"debug 1", "info 2"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("output contains filtered message %q: %s", unwanted, out)
		}
	}
	for _, wanted := range []string{"[WARN]  warn 3", "[ERROR] error 4"} {
		if !strings.Contains(out, wanted) {
			t.Errorf("output missing %q: %s", wanted, out)
		}
	}
}

func TestConfigure(t *testing.T) {
	t.Cleanup(func() { SetLevel(LevelInfo) })

	if err := Configure("error", false); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if GetLevel() != LevelError {
		t.Errorf("GetLevel() = %v, want ERROR", GetLevel())
	}

	if err := Configure("error", true); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if GetLevel() != LevelDebug {
		t.Errorf("debug flag: GetLevel() = %v, want DEBUG", GetLevel())
	}

	if err := Configure("loud", false); err == nil {
		t.Error("expected error for unknown level")
	}
	if GetLevel() != LevelInfo {
		t.Errorf("unknown level: GetLevel() = %v, want INFO", GetLevel())
	}
}
