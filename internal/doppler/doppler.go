// SPDX-License-Identifier: MIT
/*
Package doppler implements an ultrasonic motion sensor built from a speaker
and a microphone:
- An inaudible sine tone is emitted continuously
- The tone frequency is calibrated once against the room by a bin sweep
- Every spectral frame is scanned for Doppler sidebands around the tone bin

Motion towards or away from the device spreads the tone's energy into
neighbouring bins. The sensor reports how many bins on each side remain
above a fraction of the tone's own amplitude; it does not classify gestures.

Concurrency:
- Calibration and polling never overlap
- The tone frequency is written only by the calibrator
- Frames are owned by the FrameSource and must not be retained across ticks
*/
package doppler

import (
	"context"
	"errors"
)

var (
	// ErrCalibrationDegenerate reports a sweep that found no positive return.
	ErrCalibrationDegenerate = errors.New("calibration found no bin with positive amplitude")

	// ErrNotIdle is returned by Sensor.Start when the sensor was already started.
	ErrNotIdle = errors.New("sensor is not idle")
)

// FrameSource provides byte magnitude spectra of the microphone input.
// Next blocks until a frame that was captured after the call is available, so
// callers that just changed the tone frequency observe its effect. The
// returned slice is reused by the source and is only valid until the next call.
type FrameSource interface {
	Next(ctx context.Context) ([]uint8, error)
}

// SettlingSource is a FrameSource that can also wait until the whole analysed
// window was captured after the call, with no smoothing history from earlier
// frames. The calibrator uses Settled when the source provides it, so each
// sweep step samples only the tone it just set.
type SettlingSource interface {
	FrameSource
	Settled(ctx context.Context) ([]uint8, error)
}

// ToneEmitter is a continuous sine oscillator with a controllable frequency.
// Frequency changes take effect on the next output buffer. Stop silences the
// output; the frequency is retained.
type ToneEmitter interface {
	Frequency() float64
	SetFrequency(freq float64)
	Start() error
	Stop() error
}

// Bandwidth is the number of bins on each side of the tone bin that still
// carry elevated energy. Both values lie in [1, window].
type Bandwidth struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}
