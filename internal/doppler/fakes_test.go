// SPDX-License-Identifier: MIT
package doppler

import (
	"context"
	"sync"
	"testing"
)

const (
	testSampleRate = 48000
	testFFTSize    = 2048
	testSweepStart = 19000
	testSweepEnd   = 22000
)

func newTestMapper(t *testing.T) Mapper {
	t.Helper()
	m, err := NewMapper(testSampleRate, testFFTSize)
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	return m
}

// fakeTone records every frequency it is set to.
type fakeTone struct {
	mu       sync.Mutex
	freq     float64
	running  bool
	starts   int
	stops    int
	history  []float64
	startErr error
}

func newFakeTone(freq float64) *fakeTone {
	return &fakeTone{freq: freq}
}

func (f *fakeTone) Frequency() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freq
}

func (f *fakeTone) SetFrequency(freq float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freq = freq
	f.history = append(f.history, freq)
}

func (f *fakeTone) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeTone) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return nil
}

func (f *fakeTone) isRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// responseSource synthesises a frame from the tone frequency at the moment
// Next is called: only the tone's own bin carries energy, scaled by gain.
type responseSource struct {
	tone   *fakeTone
	mapper Mapper
	gain   func(bin int) uint8
	frame  []uint8
	calls  int
	failAt int // 1-based call that fails, 0 for never
	err    error
}

func (r *responseSource) Next(ctx context.Context) ([]uint8, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.calls++
	if r.failAt > 0 && r.calls == r.failAt {
		return nil, r.err
	}
	if r.frame == nil {
		r.frame = make([]uint8, r.mapper.Bins())
	}
	clear(r.frame)
	bin := r.mapper.FreqToIndex(r.tone.Frequency())
	if bin >= 0 && bin < len(r.frame) {
		r.frame[bin] = r.gain(bin)
	}
	return r.frame, nil
}

// scriptedSource serves a fixed calibration frame for the first sweep calls,
// then frames pushed on the channel.
type scriptedSource struct {
	mu     sync.Mutex
	sweep  int
	calib  []uint8
	frames chan []uint8
	err    error // returned once the sweep is over, when set
	calls  int
}

func (s *scriptedSource) Next(ctx context.Context) ([]uint8, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	if n <= s.sweep {
		return s.calib, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	select {
	case f := <-s.frames:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// bumpFrame returns a frame with the tone at center and width-1 elevated bins
// on each side.
func bumpFrame(bins, center, width int) []uint8 {
	frame := make([]uint8, bins)
	frame[center] = 250
	for j := 1; j < width; j++ {
		frame[center-j] = 200
		frame[center+j] = 200
	}
	return frame
}

// laggingSource models a capture window that still holds the previous step:
// Next returns the response to the tone set before the latest change, while
// Settled returns the response to the current tone.
type laggingSource struct {
	response *responseSource
	lastFreq float64
	stale    []uint8
	nexts    int
	settles  int
}

func (l *laggingSource) Next(ctx context.Context) ([]uint8, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.nexts++
	if l.stale == nil {
		l.stale = make([]uint8, l.response.mapper.Bins())
	}
	clear(l.stale)
	if bin := l.response.mapper.FreqToIndex(l.lastFreq); bin >= 0 && bin < len(l.stale) {
		l.stale[bin] = l.response.gain(bin)
	}
	l.lastFreq = l.response.tone.Frequency()
	return l.stale, nil
}

func (l *laggingSource) Settled(ctx context.Context) ([]uint8, error) {
	l.settles++
	l.lastFreq = l.response.tone.Frequency()
	return l.response.Next(ctx)
}

// plainSource hides the Settled method of the wrapped source.
type plainSource struct {
	FrameSource
}
