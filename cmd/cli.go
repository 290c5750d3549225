// SPDX-License-Identifier: MIT
package cmd

import (
	"doppler/internal/config"
	"doppler/pkg/build"
	"time"

	"github.com/spf13/cobra"
)

// flags holds command line values. They are applied on top of the loaded
// configuration only when set explicitly.
type flags struct {
	configPath   string
	inputDevice  int
	outputDevice int
	sampleRate   float64
	lowLatency   bool
	sweepStart   float64
	sweepEnd     float64
	tui          bool
	record       bool
	outputFile   string
	wsAddress    string
	udpTarget    string
	verbose      bool
}

// ParseArgs parses args (without the program name), loads the configuration
// file named by --config and applies explicit flags on top of it.
func ParseArgs(args []string) (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	var (
		f       flags
		options *config.Config
	)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(f.configPath)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			// Flags may have broken cross-field constraints.
			if err := cfg.Validate(); err != nil {
				return err
			}
			options = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	pf := rootCmd.PersistentFlags()

	pf.StringVarP(&f.configPath, "config", "c", "",
		"Path to a YAML configuration file (default: ./config.yaml if present)")

	// Audio Device Configuration
	pf.IntVarP(&f.inputDevice, "input", "i", config.DefaultDeviceID,
		"Microphone device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&f.outputDevice, "output", "o", config.DefaultDeviceID,
		"Speaker device ID. Use 'list' command to see available devices.")
	pf.Float64VarP(&f.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.BoolVarP(&f.lowLatency, "low-latency", "l", false,
		"Request low latency from both devices")

	// Calibration
	pf.Float64Var(&f.sweepStart, "sweep-start", config.DefaultSweepStart,
		"Lowest tone frequency tried during calibration (Hz)")
	pf.Float64Var(&f.sweepEnd, "sweep-end", config.DefaultSweepEnd,
		"Highest tone frequency tried during calibration (Hz)")

	// Output
	pf.BoolVarP(&f.tui, "tui", "t", false,
		"Show a live bandwidth meter instead of log output")
	pf.StringVar(&f.wsAddress, "ws", "",
		"Serve readings over WebSocket on this address (e.g. :8080)")
	pf.StringVar(&f.udpTarget, "udp", "",
		"Send readings as UDP packets to this host:port")

	// Recording Configuration
	pf.BoolVarP(&f.record, "record", "r", false,
		"Record the raw microphone input to a WAV file")
	pf.StringVarP(&f.outputFile, "file", "f", "",
		"Recording file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")

	// Debug Configuration
	pf.BoolVarP(&f.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	// options is nil after --help or --version, which skip the pre-run hook.
	return options, nil
}

// apply copies explicitly set flags into cfg.
func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("input") {
		cfg.Audio.InputDevice = f.inputDevice
	}
	if changed("output") {
		cfg.Audio.OutputDevice = f.outputDevice
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if changed("sweep-start") {
		cfg.Doppler.SweepStart = f.sweepStart
	}
	if changed("sweep-end") {
		cfg.Doppler.SweepEnd = f.sweepEnd
	}
	if changed("tui") {
		cfg.TUI = f.tui
	}
	if changed("ws") {
		cfg.Transport.WSEnabled = true
		cfg.Transport.WSAddress = f.wsAddress
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = f.udpTarget
	}
	if changed("record") {
		cfg.Recording.Enabled = f.record
	}
	if changed("file") {
		cfg.Recording.OutputFile = f.outputFile
	}
	if f.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	// Defaults
	if cfg.Recording.Enabled && cfg.Recording.OutputFile == "" {
		cfg.Recording.OutputFile = "recording-" +
			time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	}
}
