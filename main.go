// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"doppler/cmd"
	"doppler/internal/audio"
	"doppler/internal/config"
	"doppler/internal/doppler"
	applog "doppler/internal/log"
	"doppler/internal/transport"
	"doppler/internal/transport/udp"
	"doppler/internal/tui"
	"doppler/pkg/build"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"
)

// silenceCheckDelay is how long after start the microphone is checked for
// all-zero input.
const silenceCheckDelay = 500 * time.Millisecond

// main is the entry point for the Doppler sensor.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and configuration
//   - Configure logging and runtime settings
//   - Initialize PortAudio
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Start the tone output and microphone input streams
//   - Start recording if enabled
//   - Calibrate the tone and poll for bandwidth readings
//   - Publish readings to the transports and the meter
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals and sensor failures
//   - Stop the sensor, then the tone
//   - Stop recording if active and clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds lack ldflags; keep the defaults and say so later.
	buildErr := build.Initialize()

	cfg, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if cfg == nil {
		return // --help or --version
	}

	if err := applog.Configure(cfg.LogLevel, cfg.Debug); err != nil {
		applog.Fatalf("%v", err)
	}
	if buildErr != nil {
		applog.Debugf("Development build (%v)", buildErr)
	}
	applog.Debugf("%s", build.GetBuildFlags())

	// Limit OS threads:
	// - One thread for the audio callbacks (time-critical)
	// - One thread for sensing, transports and UI
	runtime.GOMAXPROCS(2)

	if err := audio.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}
	defer audio.Terminate()

	// One-off commands don't need the audio engine running.
	if cfg.Command != "" {
		if err := executeCommand(cfg.Command); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	if err := run(cfg); err != nil {
		applog.Errorf("%v", err)
		audio.Terminate()
		os.Exit(1)
	}
}

// run owns the concurrent and shutdown phases.
func run(cfg *config.Config) error {
	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := audio.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			applog.Errorf("Error closing audio engine: %v", err)
		}
	}()

	// The output stream starts muted; the sensor un-mutes the tone.
	if err := engine.StartOutputStream(); err != nil {
		return err
	}
	if err := engine.StartInputStream(); err != nil {
		if errors.Is(err, audio.ErrMicrophoneUnavailable) {
			return fmt.Errorf("%w (check the input device and microphone permissions)", err)
		}
		return err
	}

	if cfg.Recording.Enabled {
		if err := engine.StartRecording(cfg.Recording.OutputFile); err != nil {
			return err
		}
		defer func() {
			if err := engine.StopRecording(); err != nil {
				applog.Errorf("Error stopping recording: %v", err)
				return
			}
			fmt.Printf("\nRecording saved to: %s\n", cfg.Recording.OutputFile)
		}()
	}

	sink, err := openTransports(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			applog.Errorf("Error closing transports: %v", err)
		}
	}()

	mapper, err := doppler.NewMapper(cfg.Audio.SampleRate, cfg.Audio.FFTSize)
	if err != nil {
		return err
	}

	sensor := doppler.NewSensor(doppler.SensorConfig{
		Mapper:         mapper,
		SweepStart:     cfg.Doppler.SweepStart,
		SweepEnd:       cfg.Doppler.SweepEnd,
		MaxVolumeRatio: cfg.Doppler.MaxVolumeRatio,
		Window:         cfg.Doppler.RelevantFreqWindow,
		WarmUp:         cfg.Doppler.WarmUp,
		TickInterval:   cfg.Doppler.TickInterval,
		OnError: func(err error) {
			applog.Errorf("Sensor: %v", err)
			stop()
		},
	}, engine.Tone(), engine)

	// Readings for the meter; dropped while it is busy rendering.
	var readings chan transport.Reading
	if cfg.TUI {
		readings = make(chan transport.Reading, 1)
	}

	var sequence atomic.Uint64
	onBandwidth := func(b doppler.Bandwidth) {
		r := transport.Reading{
			Sequence:  sequence.Add(1),
			Timestamp: time.Now(),
			ToneHz:    engine.Tone().Frequency(),
			Left:      b.Left,
			Right:     b.Right,
		}
		if err := sink.Send(r); err != nil {
			applog.Debugf("Transport: %v", err)
		}
		if readings != nil {
			select {
			case readings <- r:
			default:
			}
		}
	}

	go warnIfSilent(ctx, engine)

	if cfg.TUI {
		err = runMeter(ctx, stop, cfg, sensor, onBandwidth, readings)
	} else {
		err = runHeadless(ctx, cfg, sensor, onBandwidth)
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	// The sensor stops polling and silences the tone before the streams close.
	if closeErr := sensor.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if readings != nil {
		close(readings)
	}

	return err
}

// runHeadless starts the sensor and blocks until a signal or a sensor failure.
func runHeadless(ctx context.Context, cfg *config.Config, sensor *doppler.Sensor, onBandwidth func(doppler.Bandwidth)) error {
	applog.Infof("Calibrating tone between %.0f and %.0f Hz", cfg.Doppler.SweepStart, cfg.Doppler.SweepEnd)
	if err := sensor.Start(ctx, onBandwidth); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	logCalibration(sensor.Calibration())
	fmt.Printf("Sensing. '%s --help' for usage information, Ctrl+C to stop.\n", build.GetBuildFlags().Name)

	select {
	case <-ctx.Done():
	case <-sensor.Done():
	}
	return nil
}

// runMeter shows the live meter; quitting it ends the session.
func runMeter(ctx context.Context, stop context.CancelFunc, cfg *config.Config, sensor *doppler.Sensor, onBandwidth func(doppler.Bandwidth), readings chan transport.Reading) error {
	// Log lines would tear the alternate screen.
	applog.SetOutput(io.Discard)
	defer applog.SetOutput(os.Stderr)

	program := tui.NewMeterProgram(readings, cfg.Doppler.RelevantFreqWindow)

	go func() {
		program.Send(tui.StatusMsg(fmt.Sprintf("Calibrating tone between %.0f and %.0f Hz...",
			cfg.Doppler.SweepStart, cfg.Doppler.SweepEnd)))

		if err := sensor.Start(ctx, onBandwidth); err != nil {
			program.Send(tui.StatusMsg(fmt.Sprintf("Sensor failed: %v (q to quit)", err)))
			return
		}
		program.Send(tui.StatusMsg(fmt.Sprintf("Tone calibrated to %.1f Hz", sensor.Calibration().Frequency)))

		select {
		case <-ctx.Done():
		case <-sensor.Done():
		}
		program.Quit()
	}()

	_, err := program.Run()
	stop()
	return err
}

// openTransports builds the configured reading sinks. Without any sink and
// without the meter, readings are logged so the sensor is observable.
func openTransports(cfg *config.Config) (transport.Multi, error) {
	var sinks transport.Multi

	if cfg.Transport.WSEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.Transport.WSAddress)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ws)
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		publisher, err := udp.NewUDPPublisher(cfg.Transport.UDPInterval, sender)
		if err != nil {
			sender.Close()
			sinks.Close()
			return nil, err
		}
		publisher.Start()
		sinks = append(sinks, publisher)
	}

	if cfg.Transport.LogReadings || (len(sinks) == 0 && !cfg.TUI) {
		sinks = append(sinks, transport.NewLoggingTransport())
	}

	return sinks, nil
}

func logCalibration(cal doppler.Calibration) {
	if cal.Degenerate {
		applog.Warnf("Calibration found no return in the sweep, keeping %.1f Hz", cal.Frequency)
		return
	}
	applog.Infof("Tone calibrated to %.1f Hz (bin %d, amplitude %.0f)", cal.Frequency, cal.Index, cal.Amplitude)
}

// warnIfSilent reports a microphone that delivers only silence shortly after
// start, which is how some hosts signal denied access.
func warnIfSilent(ctx context.Context, engine *audio.Engine) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(silenceCheckDelay):
	}
	if engine.IsSilent() {
		applog.Warnf("Microphone input is silent (peak %.6f); check permissions and the input device", engine.InputLevel())
	}
}

// executeCommand handles one-off commands that don't require the audio engine
// to be running, such as listing available audio devices.
func executeCommand(command string) error {
	switch command {
	case "list":
		return audio.ListDevices(os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
