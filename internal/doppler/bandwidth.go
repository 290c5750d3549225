// SPDX-License-Identifier: MIT
package doppler

// Magnitude is any sample type a spectral frame can carry.
type Magnitude interface {
	~uint8 | ~uint16 | ~uint32 | ~float32 | ~float64
}

// Estimator measures the spread of energy around the tone bin.
type Estimator struct {
	// MaxVolumeRatio is the fraction of the tone amplitude at or below which
	// a neighbouring bin no longer counts as elevated.
	MaxVolumeRatio float64
	// Window caps the scan on each side, in bins.
	Window int
}

// Estimate scans a byte frame outward from toneBin.
func (e Estimator) Estimate(frame []uint8, toneBin int) Bandwidth {
	return EstimateFrame(e, frame, toneBin)
}

// EstimateFrame scans frame left and right of toneBin. Each side advances at
// least one bin before testing, and stops at the first bin whose ratio to the
// tone amplitude is <= MaxVolumeRatio or when the window is reached.
//
// A zero tone amplitude gives no reference level: both sides resolve to 1
// without dividing. Bins outside the frame read as zero.
func EstimateFrame[M Magnitude](e Estimator, frame []M, toneBin int) Bandwidth {
	window := max(e.Window, 1)

	primary := at(frame, toneBin)
	if primary == 0 {
		return Bandwidth{Left: 1, Right: 1}
	}

	return Bandwidth{
		Left:  scan(frame, toneBin, -1, primary, e.MaxVolumeRatio, window),
		Right: scan(frame, toneBin, 1, primary, e.MaxVolumeRatio, window),
	}
}

func scan[M Magnitude](frame []M, toneBin, step int, primary, ratio float64, window int) int {
	offset := 0
	for {
		offset++
		if at(frame, toneBin+step*offset)/primary <= ratio || offset >= window {
			return offset
		}
	}
}

func at[M Magnitude](frame []M, i int) float64 {
	if i < 0 || i >= len(frame) {
		return 0
	}
	return float64(frame[i])
}
