// SPDX-License-Identifier: MIT
package doppler

import (
	"context"
	applog "doppler/internal/log"
	"fmt"
)

// Calibration is the outcome of a frequency sweep.
type Calibration struct {
	Frequency  float64 // Frequency the tone was left at (Hz).
	Index      int     // Bin with the strongest return, 0 when degenerate.
	Amplitude  float64 // Amplitude measured at Index.
	Degenerate bool    // No bin returned a positive amplitude.
}

// Err returns ErrCalibrationDegenerate for a degenerate sweep, nil otherwise.
func (c Calibration) Err() error {
	if c.Degenerate {
		return ErrCalibrationDegenerate
	}
	return nil
}

// Calibrator sweeps the tone across [SweepStart, SweepEnd) and locks it to the
// bin with the strongest return.
type Calibrator struct {
	Mapper     Mapper
	SweepStart float64 // Hz
	SweepEnd   float64 // Hz
}

// Calibrate runs one sweep. Each step sets the tone to the bin frequency and
// waits for a fresh frame before sampling that bin, a settled one when frames
// is a SettlingSource. On a degenerate sweep the tone reverts to its prior
// frequency and the sensor carries on. On error the prior frequency is also
// restored.
func (c Calibrator) Calibrate(ctx context.Context, tone ToneEmitter, frames FrameSource) (Calibration, error) {
	oldFreq := tone.Frequency()

	next := frames.Next
	if s, ok := frames.(SettlingSource); ok {
		next = s.Settled
	}

	from := c.Mapper.FreqToIndex(c.SweepStart)
	to := c.Mapper.FreqToIndex(c.SweepEnd)
	applog.Infof("Calibrator: Sweeping bins %d..%d (%.0f-%.0f Hz)", from, to, c.SweepStart, c.SweepEnd)

	var maxAmp float64
	maxAmpIndex := 0
	for i := from; i < to; i++ {
		tone.SetFrequency(c.Mapper.IndexToFreq(i))

		frame, err := next(ctx)
		if err != nil {
			tone.SetFrequency(oldFreq)
			return Calibration{Frequency: oldFreq}, fmt.Errorf("calibration sweep at bin %d: %w", i, err)
		}

		if amp := at(frame, i); amp > maxAmp {
			maxAmp = amp
			maxAmpIndex = i
		}
	}

	if maxAmpIndex == 0 {
		tone.SetFrequency(oldFreq)
		applog.Warnf("Calibrator: %v, keeping %.1f Hz", ErrCalibrationDegenerate, oldFreq)
		return Calibration{Frequency: oldFreq, Degenerate: true}, nil
	}

	freq := c.Mapper.IndexToFreq(maxAmpIndex)
	tone.SetFrequency(freq)
	applog.Infof("Calibrator: Locked tone to %.1f Hz (bin %d, amplitude %.0f)", freq, maxAmpIndex, maxAmp)

	return Calibration{
		Frequency: freq,
		Index:     maxAmpIndex,
		Amplitude: maxAmp,
	}, nil
}
