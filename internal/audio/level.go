// SPDX-License-Identifier: MIT
package audio

import "math"

// InputLevel returns the peak absolute sample of the last captured buffer on
// the analysed channel.
func (e *Engine) InputLevel() float32 {
	return math.Float32frombits(e.peak.Load())
}

// IsSilent reports whether the last captured buffer stayed at or below the
// silence threshold. Some hosts deliver zeros instead of an error when
// microphone access is denied, so a silent input right after start is worth
// reporting.
func (e *Engine) IsSilent() bool {
	return e.InputLevel() <= e.SilenceThreshold()
}

// SetSilenceThreshold sets the level used by IsSilent, clamped to [0, 1].
func (e *Engine) SetSilenceThreshold(threshold float32) {
	threshold = max(0, min(threshold, 1))
	e.silenceThreshold.Store(math.Float32bits(threshold))
}

// SilenceThreshold returns the level used by IsSilent.
func (e *Engine) SilenceThreshold() float32 {
	return math.Float32frombits(e.silenceThreshold.Load())
}

func (e *Engine) storePeak(peak float32) {
	e.peak.Store(math.Float32bits(peak))
}
