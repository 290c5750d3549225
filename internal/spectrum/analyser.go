// SPDX-License-Identifier: MIT
/*
Package spectrum turns blocks of microphone samples into byte magnitude
frames, following the conventions of a browser AnalyserNode:
- Window the most recent fftSize samples and transform them
- Magnitude |X[k]| / fftSize for the first fftSize/2 bins
- Exponential smoothing against the previous frame
- Convert to dB and map [minDecibels, maxDecibels] onto [0, 255]

Analyse is the hot path: it allocates nothing and reuses all buffers.
*/
package spectrum

import (
	"doppler/pkg/bitint"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Config holds analyser parameters.
type Config struct {
	FFTSize     int        // Transform size, power of two.
	Window      WindowFunc // Window applied before the transform.
	Smoothing   float64    // Weight of the previous frame in [0, 1).
	MinDecibels float64    // Level mapped to 0.
	MaxDecibels float64    // Level mapped to 255.
}

// Pre-allocated buffers for the transform.
type workspace struct {
	input     []float64    // Windowed samples.
	fftOutput []complex128 // fftSize/2 + 1 coefficients.
	smoothed  []float64    // Smoothed magnitudes carried between frames.
	window    []float64    // Window coefficients.
}

// Analyser computes smoothed byte spectra. It is not safe for concurrent use.
type Analyser struct {
	cfg       Config
	fft       *fourier.FFT
	dbScale   float64 // 255 / (max - min)
	workspace workspace
}

// NewAnalyser validates cfg and pre-allocates every buffer Analyse needs.
func NewAnalyser(cfg Config) (*Analyser, error) {
	if !bitint.IsPowerOfTwo(cfg.FFTSize) || cfg.FFTSize < 2 {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", cfg.FFTSize)
	}
	if cfg.Smoothing < 0 || cfg.Smoothing >= 1 {
		return nil, fmt.Errorf("smoothing must be in [0, 1), got %v", cfg.Smoothing)
	}
	if cfg.MinDecibels >= cfg.MaxDecibels {
		return nil, fmt.Errorf("min decibels (%v) must be below max decibels (%v)", cfg.MinDecibels, cfg.MaxDecibels)
	}

	coeffs, err := windowCoefficients(cfg.FFTSize, cfg.Window)
	if err != nil {
		return nil, err
	}

	return &Analyser{
		cfg:     cfg,
		fft:     fourier.NewFFT(cfg.FFTSize),
		dbScale: 255 / (cfg.MaxDecibels - cfg.MinDecibels),
		workspace: workspace{
			input:     make([]float64, cfg.FFTSize),
			fftOutput: make([]complex128, cfg.FFTSize/2+1),
			smoothed:  make([]float64, cfg.FFTSize/2),
			window:    coeffs,
		},
	}, nil
}

// FFTSize returns the transform size.
func (a *Analyser) FFTSize() int {
	return a.cfg.FFTSize
}

// Bins returns the frame length, fftSize/2.
func (a *Analyser) Bins() int {
	return a.cfg.FFTSize / 2
}

// Analyse transforms samples (exactly fftSize, oldest first) and writes the
// byte spectrum into dst (exactly Bins long).
func (a *Analyser) Analyse(samples []float32, dst []uint8) error {
	if len(samples) != a.cfg.FFTSize {
		return fmt.Errorf("analyser needs %d samples, got %d", a.cfg.FFTSize, len(samples))
	}
	if len(dst) != a.Bins() {
		return fmt.Errorf("destination length %d does not match %d bins", len(dst), a.Bins())
	}

	ws := &a.workspace
	for i, s := range samples {
		ws.input[i] = float64(s) * ws.window[i]
	}

	a.fft.Coefficients(ws.fftOutput, ws.input)

	tau := a.cfg.Smoothing
	norm := 1 / float64(a.cfg.FFTSize)
	for k := range ws.smoothed {
		mag := cmplx.Abs(ws.fftOutput[k]) * norm
		ws.smoothed[k] = tau*ws.smoothed[k] + (1-tau)*mag
		dst[k] = a.toByte(ws.smoothed[k])
	}
	return nil
}

// Reset clears the smoothing history.
func (a *Analyser) Reset() {
	clear(a.workspace.smoothed)
}

// toByte maps a linear magnitude onto [0, 255] through the dB range.
func (a *Analyser) toByte(mag float64) uint8 {
	if mag <= 0 {
		return 0
	}
	scaled := (20*math.Log10(mag) - a.cfg.MinDecibels) * a.dbScale
	switch {
	case scaled <= 0:
		return 0
	case scaled >= 255:
		return 255
	default:
		return uint8(scaled)
	}
}
