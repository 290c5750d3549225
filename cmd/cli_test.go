// SPDX-License-Identifier: MIT
package cmd

import (
	"doppler/internal/config"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseArgsDefaults(t *testing.T) {
	cfg, err := ParseArgs(nil)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if cfg.Command != "" || cfg.TUI {
		t.Errorf("unexpected command %q / tui %v", cfg.Command, cfg.TUI)
	}
	if cfg.Doppler.SweepStart != config.DefaultSweepStart || cfg.Doppler.SweepEnd != config.DefaultSweepEnd {
		t.Errorf("sweep %v-%v, want defaults", cfg.Doppler.SweepStart, cfg.Doppler.SweepEnd)
	}
	if cfg.Recording.Enabled {
		t.Error("recording should be off by default")
	}
}

func TestParseArgsFlags(t *testing.T) {
	cfg, err := ParseArgs([]string{
		"--input", "3",
		"-o", "4",
		"--sweep-start", "18500",
		"--sweep-end", "21000",
		"--tui",
		"--ws", ":9001",
		"--udp", "127.0.0.1:7000",
		"-v",
	})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}

	if cfg.Audio.InputDevice != 3 || cfg.Audio.OutputDevice != 4 {
		t.Errorf("devices %d/%d, want 3/4", cfg.Audio.InputDevice, cfg.Audio.OutputDevice)
	}
	if cfg.Doppler.SweepStart != 18500 || cfg.Doppler.SweepEnd != 21000 {
		t.Errorf("sweep %v-%v, want 18500-21000", cfg.Doppler.SweepStart, cfg.Doppler.SweepEnd)
	}
	if !cfg.TUI {
		t.Error("--tui not applied")
	}
	if !cfg.Transport.WSEnabled || cfg.Transport.WSAddress != ":9001" {
		t.Errorf("unexpected WebSocket settings %+v", cfg.Transport)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "127.0.0.1:7000" {
		t.Errorf("unexpected UDP settings %+v", cfg.Transport)
	}
	if !cfg.Debug || cfg.LogLevel != "debug" {
		t.Errorf("--verbose should force debug logging, got %v %q", cfg.Debug, cfg.LogLevel)
	}
}

func TestParseArgsConfigFileWithOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doppler.yaml")
	content := "doppler:\n  sweep_start: 18000\n  sweep_end: 21500\naudio:\n  sample_rate: 48000\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseArgs([]string{"--config", path, "--sweep-end", "23000"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("SampleRate = %v, want 48000 from file", cfg.Audio.SampleRate)
	}
	if cfg.Doppler.SweepStart != 18000 {
		t.Errorf("SweepStart = %v, want 18000 from file", cfg.Doppler.SweepStart)
	}
	if cfg.Doppler.SweepEnd != 23000 {
		t.Errorf("SweepEnd = %v, want flag value 23000", cfg.Doppler.SweepEnd)
	}
}

func TestParseArgsInvalidOverride(t *testing.T) {
	// 23 kHz is above the nyquist frequency of the default sample rate.
	_, err := ParseArgs([]string{"--sweep-end", "23000"})
	if err == nil || !strings.Contains(err.Error(), "nyquist") {
		t.Errorf("expected nyquist validation error, got %v", err)
	}
}

func TestParseArgsRecordingDefaultsFileName(t *testing.T) {
	cfg, err := ParseArgs([]string{"--record"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if !cfg.Recording.Enabled {
		t.Fatal("--record not applied")
	}
	if !strings.HasPrefix(cfg.Recording.OutputFile, "recording-") || !strings.HasSuffix(cfg.Recording.OutputFile, ".wav") {
		t.Errorf("OutputFile = %q, want generated recording-*.wav", cfg.Recording.OutputFile)
	}
}

func TestParseArgsList(t *testing.T) {
	cfg, err := ParseArgs([]string{"list"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if cfg.Command != "list" {
		t.Errorf("Command = %q, want list", cfg.Command)
	}
}

func TestParseArgsUnknownFlag(t *testing.T) {
	if _, err := ParseArgs([]string{"--bogus"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}
