// SPDX-License-Identifier: MIT
package audio

import (
	applog "doppler/internal/log"
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrAlreadyRecording is returned by StartRecording while a recording is open.
var ErrAlreadyRecording = errors.New("already recording")

// StartRecording writes the raw input, all channels interleaved, to a WAV
// file at the configured bit depth.
func (e *Engine) StartRecording(filename string) error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.recording {
		return ErrAlreadyRecording
	}

	bitDepth := e.config.Recording.BitDepth
	channels := e.config.Audio.InputChannels

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	e.outputFile = file

	e.wavEncoder = wav.NewEncoder(file, int(e.config.Audio.SampleRate),
		bitDepth, channels, 1)

	e.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  int(e.config.Audio.SampleRate),
		},
		SourceBitDepth: bitDepth,
		Data:           make([]int, e.config.Audio.FramesPerBuffer*channels),
	}
	e.sampleMax = float32(int64(1)<<(bitDepth-1) - 1)

	e.recording = true
	applog.Infof("Recording input to %s (%d-bit, %d channels)", filename, bitDepth, channels)

	return nil
}

// StopRecording finalises the WAV header and closes the file. It is a no-op
// when not recording.
func (e *Engine) StopRecording() error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if !e.recording {
		return nil
	}
	e.recording = false

	var errs []error
	if e.wavEncoder != nil {
		if err := e.wavEncoder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to finalise WAV file: %w", err))
		}
		e.wavEncoder = nil
	}

	if e.outputFile != nil {
		if err := e.outputFile.Close(); err != nil {
			errs = append(errs, err)
		}
		e.outputFile = nil
	}

	return errors.Join(errs...)
}

// IsRecording reports whether input is being written to a WAV file.
func (e *Engine) IsRecording() bool {
	e.recMu.Lock()
	defer e.recMu.Unlock()
	return e.recording
}

// record converts one input buffer and appends it to the open recording.
func (e *Engine) record(in []float32) {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if !e.recording || e.wavEncoder == nil {
		return
	}

	if cap(e.sampleBuf.Data) < len(in) {
		e.sampleBuf.Data = make([]int, len(in))
	}
	data := e.sampleBuf.Data[:len(in)]
	for i, s := range in {
		s = max(-1, min(s, 1))
		data[i] = int(s * e.sampleMax)
	}
	e.sampleBuf.Data = data

	if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
		applog.Errorf("Error writing to WAV file: %v", err)
	}
}
