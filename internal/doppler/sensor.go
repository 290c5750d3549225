// SPDX-License-Identifier: MIT
package doppler

import (
	"context"
	applog "doppler/internal/log"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle stage of a Sensor.
type State uint32

const (
	StateIdle State = iota
	StateCalibrating
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalibrating:
		return "calibrating"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SensorConfig holds the tunables of a Sensor.
type SensorConfig struct {
	Mapper         Mapper
	SweepStart     float64       // Calibration band start (Hz).
	SweepEnd       float64       // Calibration band end (Hz).
	MaxVolumeRatio float64       // Sideband threshold as a fraction of the tone amplitude.
	Window         int           // Maximum sideband width reported, in bins.
	WarmUp         time.Duration // Delay before calibrating, lets the input settle.
	TickInterval   time.Duration // Minimum delay between ticks, 0 for back-to-back polling.

	// OnError is invoked once, from the polling goroutine, if the session
	// ends because the frame source failed.
	OnError func(error)
}

// Sensor drives one sensing session: warm-up, calibration, then polling until
// stopped. A Sensor is single use.
type Sensor struct {
	cfg        SensorConfig
	tone       ToneEmitter
	frames     FrameSource
	estimator  Estimator
	calibrator Calibrator

	state atomic.Uint32

	mu          sync.Mutex
	cancel      context.CancelFunc // Owned handle for the pending tick, cleared by Stop.
	err         error
	calibration Calibration

	finishOnce sync.Once
	done       chan struct{}
}

// NewSensor creates an idle sensor around the given tone and frame source.
func NewSensor(cfg SensorConfig, tone ToneEmitter, frames FrameSource) *Sensor {
	return &Sensor{
		cfg:    cfg,
		tone:   tone,
		frames: frames,
		estimator: Estimator{
			MaxVolumeRatio: cfg.MaxVolumeRatio,
			Window:         cfg.Window,
		},
		calibrator: Calibrator{
			Mapper:     cfg.Mapper,
			SweepStart: cfg.SweepStart,
			SweepEnd:   cfg.SweepEnd,
		},
		done: make(chan struct{}),
	}
}

// Start starts the tone, waits for the warm-up delay, calibrates, and then
// polls in a background goroutine, handing every estimate to onBandwidth.
// Start returns once polling has begun, or with the error that prevented it.
// Calibration always completes before the first tick.
func (s *Sensor) Start(ctx context.Context, onBandwidth func(Bandwidth)) error {
	if onBandwidth == nil {
		return errors.New("sensor requires a bandwidth callback")
	}

	s.mu.Lock()
	if s.cancel != nil || s.State() != StateIdle {
		s.mu.Unlock()
		return ErrNotIdle
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.tone.Start(); err != nil {
		err = fmt.Errorf("starting tone: %w", err)
		s.finish(err)
		return err
	}

	if err := sleep(ctx, s.cfg.WarmUp); err != nil {
		s.finish(nil)
		return err
	}

	s.state.Store(uint32(StateCalibrating))
	cal, err := s.calibrator.Calibrate(ctx, s.tone, s.frames)
	if err != nil {
		if ctx.Err() != nil {
			s.finish(nil)
		} else {
			s.finish(err)
		}
		return err
	}

	s.mu.Lock()
	s.calibration = cal
	s.mu.Unlock()

	s.state.Store(uint32(StatePolling))
	go s.poll(ctx, s.cfg.Mapper.FreqToIndex(cal.Frequency), onBandwidth)

	return nil
}

// Stop requests the end of the session. No tick starts after Stop returns;
// a tick already running completes. Done is closed once the session has
// wound down and the tone is silent. Stop is safe to call more than once and
// from within the bandwidth callback.
func (s *Sensor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		s.finish(nil)
		return
	}
	cancel()
}

// Close stops the sensor and waits for it to wind down. It must not be called
// from the bandwidth callback.
func (s *Sensor) Close() error {
	s.Stop()
	<-s.done
	return s.Err()
}

// State returns the current lifecycle stage.
func (s *Sensor) State() State {
	return State(s.state.Load())
}

// Done is closed when the session has ended.
func (s *Sensor) Done() <-chan struct{} {
	return s.done
}

// Err returns the fatal error that ended the session, nil after a clean stop.
func (s *Sensor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Calibration returns the result of the calibration sweep.
func (s *Sensor) Calibration() Calibration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibration
}

func (s *Sensor) poll(ctx context.Context, toneBin int, onBandwidth func(Bandwidth)) {
	applog.Infof("Sensor: Polling started (tone bin %d)", toneBin)

	var ticks uint64
	for {
		if ctx.Err() != nil {
			break
		}

		frame, err := s.frames.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.finish(fmt.Errorf("reading spectral frame: %w", err))
			return
		}

		// A stop may have landed while waiting for the frame.
		if ctx.Err() != nil {
			break
		}

		onBandwidth(s.estimator.Estimate(frame, toneBin))
		ticks++

		if err := sleep(ctx, s.cfg.TickInterval); err != nil {
			break
		}
	}

	applog.Infof("Sensor: Polling stopped after %d ticks", ticks)
	s.finish(nil)
}

// finish moves the sensor to StateStopped exactly once.
func (s *Sensor) finish(err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.state.Store(uint32(StateStopped))

		if stopErr := s.tone.Stop(); stopErr != nil {
			applog.Errorf("Sensor: Error silencing tone: %v", stopErr)
		}

		if err != nil {
			applog.Errorf("Sensor: Session ended: %v", err)
			if s.cfg.OnError != nil {
				s.cfg.OnError(err)
			}
		}
		close(s.done)
	})
}

// sleep waits for d or until ctx is done. A non-positive d only checks ctx.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
