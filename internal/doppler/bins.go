// SPDX-License-Identifier: MIT
package doppler

import (
	"doppler/pkg/bitint"
	"fmt"
	"math"
)

// Mapper converts between frequencies in Hz and spectral bin indices for a
// fixed sample rate and FFT size. The zero value is not usable, construct
// one with NewMapper.
type Mapper struct {
	sampleRate float64
	fftSize    int
}

// NewMapper returns a Mapper for the given sample rate (Hz) and FFT size.
// The FFT size must be a power of two, matching the analyser.
func NewMapper(sampleRate float64, fftSize int) (Mapper, error) {
	if sampleRate <= 0 {
		return Mapper{}, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	if !bitint.IsPowerOfTwo(fftSize) || fftSize < 2 {
		return Mapper{}, fmt.Errorf("fft size must be a power of 2, got %d", fftSize)
	}
	return Mapper{sampleRate: sampleRate, fftSize: fftSize}, nil
}

// Nyquist returns half the sample rate.
func (m Mapper) Nyquist() float64 {
	return m.sampleRate / 2
}

// Bins returns the number of frequency bins in a frame (fftSize/2).
func (m Mapper) Bins() int {
	return m.fftSize / 2
}

// BinWidth returns the width of a single bin in Hz.
func (m Mapper) BinWidth() float64 {
	return m.Nyquist() / float64(m.Bins())
}

// FreqToIndex returns the bin nearest to freq.
func (m Mapper) FreqToIndex(freq float64) int {
	return int(math.Round(freq / m.Nyquist() * float64(m.Bins())))
}

// IndexToFreq returns the frequency represented by bin i. Round trips through
// FreqToIndex are exact to within one bin.
func (m Mapper) IndexToFreq(i int) float64 {
	return m.Nyquist() / float64(m.Bins()) * float64(i)
}
