// SPDX-License-Identifier: MIT
package utils

import (
	"cmp"
	"math"
)

// GenerateSineWave returns size samples of a sine at frequency Hz.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateDopplerWave returns a tone plus a weaker copy shifted by shift Hz,
// the way a reflection from a moving hand arrives at the microphone. ratio is
// the reflection amplitude relative to the tone.
func GenerateDopplerWave(size int, sampleRate, tone, shift, amplitude, ratio float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*tone*t) +
			ratio*math.Sin(2*math.Pi*(tone+shift)*t)
		buffer[i] = float32(amplitude * signal)
	}
	return buffer
}

// FindPeakBin returns the index of the largest value in
// magnitudes[startBin:endBin+1]. The range is clamped to the slice.
func FindPeakBin[T cmp.Ordered](magnitudes []T, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	if startBin > endBin {
		return startBin
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
