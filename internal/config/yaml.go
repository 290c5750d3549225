// SPDX-License-Identifier: MIT
package config

import (
	applog "doppler/internal/log"
	"doppler/pkg/bitint"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults and hardware limits. The doppler constants are empirical and may
// need retuning per speaker/microphone pair.
const (
	DefaultDeviceID        = MinDeviceID // System default device
	DefaultSampleRate      = 44100
	DefaultFramesPerBuffer = 512
	DefaultFFTSize         = 2048
	DefaultFFTWindow       = "Blackman"
	DefaultSmoothing       = 0.5
	DefaultMinDecibels     = -100
	DefaultMaxDecibels     = -30
	DefaultToneAmplitude   = 0.5
	DefaultInputChannels   = 1
	DefaultOutputChannels  = 2
	DefaultSilence         = 1e-4

	DefaultInitialFrequency   = 20000
	DefaultSweepStart         = 19000
	DefaultSweepEnd           = 22000
	DefaultMaxVolumeRatio     = 0.001
	DefaultRelevantFreqWindow = 33
	DefaultWarmUp             = 10 * time.Millisecond
	DefaultUDPInterval        = 16 * time.Millisecond

	MinDeviceID     = -1     // -1 represents the system default device
	MinSampleRate   = 8000   // Hz
	MaxSampleRate   = 192000 // Hz
	MaxBufferFrames = 8192
	MaxChannels     = 8
	MinFFTSize      = 32
	MaxFFTSize      = 32768
)

// Config is the application configuration, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`             // Forces debug logging.
	LogLevel  string          `yaml:"log_level"`         // "debug", "info", "warn" or "error".
	Command   string          `yaml:"command,omitempty"` // One-off command instead of sensing (e.g. "list").
	TUI       bool            `yaml:"tui"`               // Show the live meter instead of log output.
	Audio     AudioConfig     `yaml:"audio"`
	Doppler   DopplerConfig   `yaml:"doppler"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds device and analyser settings.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for the microphone (-1 for default).
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index for the speaker (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Shared by capture and tone output (Hz).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per PortAudio callback.
	InputChannels   int     `yaml:"input_channels"`    // Capture channels, the first one is analysed.
	OutputChannels  int     `yaml:"output_channels"`   // Tone output channels, all carry the same signal.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency from both devices.
	FFTSize         int     `yaml:"fft_size"`          // Analyser transform size, power of two.
	FFTWindow       string  `yaml:"fft_window"`        // Window function name (e.g. "Blackman", "Hann").
	Smoothing       float64 `yaml:"smoothing"`         // Frame to frame smoothing constant in [0, 1).
	MinDecibels     float64 `yaml:"min_decibels"`      // Level mapped to byte 0.
	MaxDecibels     float64 `yaml:"max_decibels"`      // Level mapped to byte 255.
	ToneAmplitude   float64 `yaml:"tone_amplitude"`    // Peak amplitude of the emitted tone in (0, 1].
	SilenceLevel    float64 `yaml:"silence_level"`     // Peak input level below which the microphone is reported silent.
}

// DopplerConfig holds the sensing constants.
type DopplerConfig struct {
	InitialFrequency   float64       `yaml:"initial_frequency"`    // Tone before calibration (Hz).
	SweepStart         float64       `yaml:"sweep_start"`          // Calibration band start (Hz).
	SweepEnd           float64       `yaml:"sweep_end"`            // Calibration band end (Hz).
	MaxVolumeRatio     float64       `yaml:"max_volume_ratio"`     // Sideband threshold relative to the tone.
	RelevantFreqWindow int           `yaml:"relevant_freq_window"` // Maximum reported sideband width (bins).
	WarmUp             time.Duration `yaml:"warm_up"`              // Delay between stream start and calibration.
	TickInterval       time.Duration `yaml:"tick_interval"`        // Minimum delay between polls, 0 for back-to-back.
}

// RecordingConfig controls WAV capture of the raw microphone input.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"` // Generated from the start time when empty.
	BitDepth   int    `yaml:"bit_depth"`   // 16, 24 or 32.
}

// TransportConfig controls where bandwidth readings are published.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"` // host:port
	UDPInterval      time.Duration `yaml:"udp_interval"`       // Minimum spacing between packets.
	WSEnabled        bool          `yaml:"ws_enabled"`
	WSAddress        string        `yaml:"ws_address"` // Listen address, e.g. ":8080".
	LogReadings      bool          `yaml:"log_readings"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			OutputDevice:    DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultInputChannels,
			OutputChannels:  DefaultOutputChannels,
			FFTSize:         DefaultFFTSize,
			FFTWindow:       DefaultFFTWindow,
			Smoothing:       DefaultSmoothing,
			MinDecibels:     DefaultMinDecibels,
			MaxDecibels:     DefaultMaxDecibels,
			ToneAmplitude:   DefaultToneAmplitude,
			SilenceLevel:    DefaultSilence,
		},
		Doppler: DopplerConfig{
			InitialFrequency:   DefaultInitialFrequency,
			SweepStart:         DefaultSweepStart,
			SweepEnd:           DefaultSweepEnd,
			MaxVolumeRatio:     DefaultMaxVolumeRatio,
			RelevantFreqWindow: DefaultRelevantFreqWindow,
			WarmUp:             DefaultWarmUp,
		},
		Recording: RecordingConfig{
			BitDepth: 16,
		},
		Transport: TransportConfig{
			UDPTargetAddress: "127.0.0.1:9090",
			UDPInterval:      DefaultUDPInterval,
			WSAddress:        ":8080",
		},
	}
}

// LoadConfig loads configuration from the YAML file at path. If path is empty
// it looks for "config.yaml" in the working directory and falls back to the
// built-in defaults. Environment overrides are applied last, then the result
// is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q is not a known level", c.LogLevel)
	}

	a := c.Audio
	if a.InputDevice < MinDeviceID || a.OutputDevice < MinDeviceID {
		return fmt.Errorf("device ids must be >= %d", MinDeviceID)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer %d outside [1, %d]", a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputChannels < 1 || a.InputChannels > MaxChannels {
		return fmt.Errorf("audio.input_channels %d outside [1, %d]", a.InputChannels, MaxChannels)
	}
	if a.OutputChannels < 1 || a.OutputChannels > MaxChannels {
		return fmt.Errorf("audio.output_channels %d outside [1, %d]", a.OutputChannels, MaxChannels)
	}
	if !bitint.IsPowerOfTwo(a.FFTSize) {
		return fmt.Errorf("audio.fft_size %d is not a power of 2 (try %d)", a.FFTSize, bitint.NextPowerOfTwo(a.FFTSize))
	}
	if a.FFTSize < MinFFTSize || a.FFTSize > MaxFFTSize {
		return fmt.Errorf("audio.fft_size %d outside [%d, %d]", a.FFTSize, MinFFTSize, MaxFFTSize)
	}
	if a.Smoothing < 0 || a.Smoothing >= 1 {
		return fmt.Errorf("audio.smoothing %v outside [0, 1)", a.Smoothing)
	}
	if a.MinDecibels >= a.MaxDecibels {
		return fmt.Errorf("audio.min_decibels (%v) must be below audio.max_decibels (%v)", a.MinDecibels, a.MaxDecibels)
	}
	if a.ToneAmplitude <= 0 || a.ToneAmplitude > 1 {
		return fmt.Errorf("audio.tone_amplitude %v outside (0, 1]", a.ToneAmplitude)
	}
	if a.SilenceLevel < 0 || a.SilenceLevel >= 1 {
		return fmt.Errorf("audio.silence_level %v outside [0, 1)", a.SilenceLevel)
	}

	d := c.Doppler
	nyquist := a.SampleRate / 2
	if d.SweepStart <= 0 || d.SweepStart >= d.SweepEnd {
		return fmt.Errorf("doppler.sweep_start (%v) must be positive and below doppler.sweep_end (%v)", d.SweepStart, d.SweepEnd)
	}
	if d.SweepEnd > nyquist {
		return fmt.Errorf("doppler.sweep_end %v is above the nyquist frequency %v", d.SweepEnd, nyquist)
	}
	if d.InitialFrequency <= 0 || d.InitialFrequency >= nyquist {
		return fmt.Errorf("doppler.initial_frequency %v outside (0, %v)", d.InitialFrequency, nyquist)
	}
	if d.MaxVolumeRatio <= 0 || d.MaxVolumeRatio >= 1 {
		return fmt.Errorf("doppler.max_volume_ratio %v outside (0, 1)", d.MaxVolumeRatio)
	}
	if d.RelevantFreqWindow < 1 {
		return fmt.Errorf("doppler.relevant_freq_window must be at least 1, got %d", d.RelevantFreqWindow)
	}
	if d.WarmUp < 0 || d.TickInterval < 0 {
		return fmt.Errorf("doppler.warm_up and doppler.tick_interval must not be negative")
	}

	if c.Recording.Enabled {
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			return fmt.Errorf("recording.bit_depth %d must be 16, 24 or 32", c.Recording.BitDepth)
		}
	}

	t := c.Transport
	if t.UDPEnabled {
		if _, _, err := net.SplitHostPort(t.UDPTargetAddress); err != nil {
			return fmt.Errorf("transport.udp_target_address %q: %w", t.UDPTargetAddress, err)
		}
	}
	if t.WSEnabled {
		if _, _, err := net.SplitHostPort(t.WSAddress); err != nil {
			return fmt.Errorf("transport.ws_address %q: %w", t.WSAddress, err)
		}
	}

	return nil
}

// applyEnvOverrides applies ENV_* variables on top of the file settings.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			applog.Debugf("configuration: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Debugf("configuration: Overriding log_level from env: %s", val)
	}

	// ENV_SWEEP_{START,END}
	if val, ok := os.LookupEnv("ENV_SWEEP_START"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			c.Doppler.SweepStart = fVal
			applog.Debugf("configuration: Overriding doppler.sweep_start from env: %v", fVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_SWEEP_END"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			c.Doppler.SweepEnd = fVal
			applog.Debugf("configuration: Overriding doppler.sweep_end from env: %v", fVal)
		}
	}

	// ENV_UDP_{...}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
			applog.Debugf("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Debugf("configuration: Overriding transport.udp_target_address from env: %s", val)
	}

	// ENV_WS_{...}
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.WSEnabled = bVal
			applog.Debugf("configuration: Overriding transport.ws_enabled from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WSAddress = val
		applog.Debugf("configuration: Overriding transport.ws_address from env: %s", val)
	}
}
