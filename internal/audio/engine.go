// SPDX-License-Identifier: MIT
/*
Package audio implements the speaker and microphone side of the sensor:
- Tone output stream driven by an atomically tunable oscillator
- Input stream feeding a ring of the most recent fftSize mono samples
- Spectral frames on demand, computed from audio captured after the request
- Settled frames for calibration, reflecting only audio played after a tone change
- WAV recording of the raw input

Thread Safety:
- PortAudio callbacks touch only pre-allocated buffers
- The capture ring is guarded by a short mutex, frames are signalled on a channel
- Locks OS thread during audio processing
*/
package audio

import (
	"context"
	"doppler/internal/config"
	"doppler/internal/doppler"
	"doppler/internal/spectrum"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
)

var (
	// ErrMicrophoneUnavailable wraps failures to open or start the input stream.
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")

	// ErrStreamClosed is returned by Next once the engine is closed.
	ErrStreamClosed = errors.New("audio stream closed")
)

// Engine runs the tone and microphone streams and serves spectral frames.
type Engine struct {
	// Core configuration.
	config *config.Config

	// Devices and streams.
	inputDevice   *portaudio.DeviceInfo
	outputDevice  *portaudio.DeviceInfo
	inputLatency  time.Duration
	outputLatency time.Duration
	inputStream   *portaudio.Stream
	outputStream  *portaudio.Stream

	// Capture ring of the latest fftSize mono samples.
	mu       sync.Mutex
	ring     []float32
	pos      int    // Next write position, also the oldest sample.
	captured uint64 // Input buffers seen so far.
	ready    chan struct{}

	closed    chan struct{}
	closeOnce sync.Once

	// Frame production, serialised by nextMu.
	nextMu   sync.Mutex
	analyser *spectrum.Analyser
	snapshot []float32 // Ring unrolled oldest first.
	frame    []uint8

	tone *Tone

	// Peak absolute input level of the last buffer, math.Float32bits.
	peak             atomic.Uint32
	silenceThreshold atomic.Uint32

	// Recording state and buffers.
	recMu      sync.Mutex
	recording  bool
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer // Reusable buffer for format conversion.
	sampleMax  float32          // Full scale for the recording bit depth.
}

// NewEngine resolves the configured devices and prepares the analyser and
// tone. Streams are opened by StartInputStream and StartOutputStream.
func NewEngine(cfg *config.Config) (*Engine, error) {
	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}

	engine.inputDevice, err = InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMicrophoneUnavailable, err)
	}
	engine.outputDevice, err = OutputDevice(cfg.Audio.OutputDevice)
	if err != nil {
		return nil, err
	}

	if cfg.Audio.LowLatency {
		engine.inputLatency = engine.inputDevice.DefaultLowInputLatency
		engine.outputLatency = engine.outputDevice.DefaultLowOutputLatency
	} else {
		engine.inputLatency = engine.inputDevice.DefaultHighInputLatency
		engine.outputLatency = engine.outputDevice.DefaultHighOutputLatency
	}

	return engine, nil
}

// newEngine builds everything that does not need PortAudio.
func newEngine(cfg *config.Config) (*Engine, error) {
	window, err := spectrum.ParseWindowFunc(cfg.Audio.FFTWindow)
	if err != nil {
		return nil, err
	}

	analyser, err := spectrum.NewAnalyser(spectrum.Config{
		FFTSize:     cfg.Audio.FFTSize,
		Window:      window,
		Smoothing:   cfg.Audio.Smoothing,
		MinDecibels: cfg.Audio.MinDecibels,
		MaxDecibels: cfg.Audio.MaxDecibels,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:   cfg,
		ring:     make([]float32, cfg.Audio.FFTSize),
		ready:    make(chan struct{}, 1),
		closed:   make(chan struct{}),
		analyser: analyser,
		snapshot: make([]float32, cfg.Audio.FFTSize),
		frame:    make([]uint8, analyser.Bins()),
		tone:     NewTone(cfg.Audio.SampleRate, cfg.Doppler.InitialFrequency, cfg.Audio.ToneAmplitude),
	}
	e.SetSilenceThreshold(float32(cfg.Audio.SilenceLevel))

	return e, nil
}

// Tone returns the oscillator driving the output stream.
func (e *Engine) Tone() *Tone {
	return e.tone
}

// Bins returns the length of frames returned by Next.
func (e *Engine) Bins() int {
	return e.analyser.Bins()
}

// StartInputStream opens and starts the microphone stream. Any failure is
// wrapped in ErrMicrophoneUnavailable.
func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.config.Audio.InputChannels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.Audio.FramesPerBuffer,
		SampleRate:      e.config.Audio.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMicrophoneUnavailable, err)
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return fmt.Errorf("%w: %w", ErrMicrophoneUnavailable, err)
	}

	return nil
}

// StartOutputStream opens and starts the speaker stream carrying the tone.
// The tone itself stays muted until Tone().Start is called.
func (e *Engine) StartOutputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 0, // No input device
			Device:   nil,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: e.config.Audio.OutputChannels,
			Device:   e.outputDevice,
			Latency:  e.outputLatency,
		},
		FramesPerBuffer: e.config.Audio.FramesPerBuffer,
		SampleRate:      e.config.Audio.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processOutputStream)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	e.outputStream = stream

	if err := e.outputStream.Start(); err != nil {
		e.outputStream.Close()
		e.outputStream = nil
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	return nil
}

func (e *Engine) StopInputStream() error {
	return stopStream(&e.inputStream)
}

func (e *Engine) StopOutputStream() error {
	return stopStream(&e.outputStream)
}

func stopStream(s **portaudio.Stream) error {
	if *s == nil {
		return nil
	}
	if err := (*s).Stop(); err != nil {
		return err
	}
	if err := (*s).Close(); err != nil {
		return err
	}
	*s = nil
	return nil
}

// Next blocks until at least one input buffer has been captured after the
// call, then returns the spectrum of the latest fftSize samples. The frame is
// reused and valid until the next call.
func (e *Engine) Next(ctx context.Context) ([]uint8, error) {
	e.nextMu.Lock()
	defer e.nextMu.Unlock()

	if err := e.waitBuffers(ctx, 1); err != nil {
		return nil, err
	}
	return e.analyse()
}

// Settled blocks until the whole ring has been refilled with audio played
// after the call, then returns its spectrum with the smoothing history
// cleared. A tone change made before the call is the only tone in the frame.
func (e *Engine) Settled(ctx context.Context) ([]uint8, error) {
	e.nextMu.Lock()
	defer e.nextMu.Unlock()

	if err := e.waitBuffers(ctx, e.settleBuffers()); err != nil {
		return nil, err
	}
	e.analyser.Reset()
	return e.analyse()
}

// settleBuffers is the number of input buffers that pass before a tone
// change fills the whole ring: one for the output buffer already queued, the
// round trip through both device latencies, then fftSize fresh samples.
func (e *Engine) settleBuffers() int {
	fpb := max(e.config.Audio.FramesPerBuffer, 1)
	latency := (e.inputLatency + e.outputLatency).Seconds() * e.config.Audio.SampleRate
	return 1 + int(math.Ceil(latency/float64(fpb))) + (e.config.Audio.FFTSize+fpb-1)/fpb
}

// waitBuffers waits until n input buffers have been captured after the call
// and leaves the ring unrolled, oldest sample first, in the snapshot.
func (e *Engine) waitBuffers(ctx context.Context, n int) error {
	e.mu.Lock()
	target := e.captured + uint64(n)
	e.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.closed:
			return ErrStreamClosed
		case <-e.ready:
		}

		e.mu.Lock()
		if e.captured >= target {
			k := copy(e.snapshot, e.ring[e.pos:])
			copy(e.snapshot[k:], e.ring[:e.pos])
			e.mu.Unlock()
			return nil
		}
		// Stale signal, or not enough buffers yet.
		e.mu.Unlock()
	}
}

func (e *Engine) analyse() ([]uint8, error) {
	if err := e.analyser.Analyse(e.snapshot, e.frame); err != nil {
		return nil, err
	}
	return e.frame, nil
}

// processInputStream is the capture callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	channels := max(e.config.Audio.InputChannels, 1)

	var peak float32
	e.mu.Lock()
	for i := 0; i < len(in); i += channels {
		// The first channel is the mono analysis signal.
		s := in[i]
		e.ring[e.pos] = s
		e.pos++
		if e.pos == len(e.ring) {
			e.pos = 0
		}
		if s < 0 {
			s = -s
		}
		peak = max(peak, s)
	}
	e.captured++
	e.mu.Unlock()

	e.storePeak(peak)
	e.record(in)

	select {
	case e.ready <- struct{}{}:
	default:
	}
}

// processOutputStream is the playback callback.
func (e *Engine) processOutputStream(out []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.tone.Fill(out, e.config.Audio.OutputChannels)
}

// Ensure Engine satisfies the sensor interfaces at compile time.
var _ doppler.SettlingSource = (*Engine)(nil)

// Close mutes the tone, stops any recording, closes both streams and
// unblocks pending Next calls. Errors from every step are joined.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })

	return errors.Join(
		e.tone.Stop(),
		e.StopRecording(),
		e.StopOutputStream(),
		e.StopInputStream(),
	)
}
