// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

const twoPi = 2 * math.Pi

// Tone is a continuous sine oscillator feeding the output stream. Frequency
// and run state may be changed from any goroutine; Fill is called only from
// the output callback.
type Tone struct {
	sampleRate float64
	amplitude  float64
	freqBits   atomic.Uint64 // math.Float64bits of the frequency in Hz.
	running    atomic.Bool
	phase      float64 // Owned by the output callback.
}

// NewTone creates a stopped tone.
func NewTone(sampleRate, frequency, amplitude float64) *Tone {
	t := &Tone{
		sampleRate: sampleRate,
		amplitude:  amplitude,
	}
	t.SetFrequency(frequency)
	return t
}

// Frequency returns the current frequency in Hz.
func (t *Tone) Frequency() float64 {
	return math.Float64frombits(t.freqBits.Load())
}

// SetFrequency changes the frequency from the next output buffer on. The
// phase carries over so the change does not click.
func (t *Tone) SetFrequency(freq float64) {
	t.freqBits.Store(math.Float64bits(freq))
}

// Start un-mutes the tone.
func (t *Tone) Start() error {
	t.running.Store(true)
	return nil
}

// Stop mutes the tone. The frequency is kept.
func (t *Tone) Stop() error {
	t.running.Store(false)
	return nil
}

// Running reports whether the tone is audible.
func (t *Tone) Running() bool {
	return t.running.Load()
}

// Fill writes interleaved frames with the same sample on every channel.
// Performance Critical: runs in the output callback, no allocations.
func (t *Tone) Fill(out []float32, channels int) {
	if !t.running.Load() {
		clear(out)
		return
	}
	if channels < 1 {
		channels = 1
	}

	step := twoPi * t.Frequency() / t.sampleRate
	for i := 0; i+channels <= len(out); i += channels {
		s := float32(t.amplitude * math.Sin(t.phase))
		for c := range channels {
			out[i+c] = s
		}
		t.phase += step
		if t.phase >= twoPi {
			t.phase -= twoPi
		}
	}
}
