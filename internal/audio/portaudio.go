// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     audio
// Description: Audio output using PortAudio
// Author:      Mike Stoffels with Claude
// Created:     2025-12-07
// License:     MIT
// ============================================================================

package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice plays buffers on the default output device
type PortAudioDevice struct {
	mu              sync.Mutex
	sampleRate      int
	channels        int
	framesPerBuffer int
	closed          bool
	gate            *gate
	streams         map[*streamCore]struct{}
}

// OpenPortAudio initializes PortAudio and checks for a default output device
func OpenPortAudio(cfg DeviceConfig) (*PortAudioDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize PortAudio: %v", ErrDeviceUnavailable, err)
	}

	if _, err := portaudio.DefaultOutputDevice(); err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: no default output device: %v", ErrDeviceUnavailable, err)
	}

	d := &PortAudioDevice{
		sampleRate:      cfg.SampleRate,
		channels:        cfg.Channels,
		framesPerBuffer: cfg.FramesPerBuffer,
		gate:            newGate(),
		streams:         make(map[*streamCore]struct{}),
	}
	if d.sampleRate <= 0 {
		d.sampleRate = SpeechSampleRate
	}
	if d.channels <= 0 {
		d.channels = SpeechChannels
	}
	if d.framesPerBuffer <= 0 {
		d.framesPerBuffer = 1024
	}
	return d, nil
}

// SampleRate returns the device rate in Hz
func (d *PortAudioDevice) SampleRate() int { return d.sampleRate }

// Suspended reports whether output is paused
func (d *PortAudioDevice) Suspended() bool { return d.gate.closed() }

// Resume continues output after Suspend
func (d *PortAudioDevice) Resume(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	d.gate.release()
	return ctx.Err()
}

// Suspend pauses all output. Open streams keep their position.
func (d *PortAudioDevice) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	d.gate.shut()
	return nil
}

// NewStream creates an unstarted stream bound to buf
func (d *PortAudioDevice) NewStream(buf *Buffer) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if buf.Channels() != d.channels {
		return nil, fmt.Errorf("buffer has %d channels, device expects %d", buf.Channels(), d.channels)
	}

	samples := buf.Interleaved()
	rate := float64(buf.SampleRate())

	var core *streamCore
	core = newStreamCore(func(stop <-chan struct{}) error {
		return d.play(samples, rate, stop)
	}, func() {
		d.mu.Lock()
		delete(d.streams, core)
		d.mu.Unlock()
	})

	d.streams[core] = struct{}{}
	return core, nil
}

// play writes interleaved samples to a fresh PortAudio stream
func (d *PortAudioDevice) play(samples []float32, sampleRate float64, stop <-chan struct{}) error {
	frameSize := d.framesPerBuffer * d.channels
	buffer := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(
		0,          // input channels (none)
		d.channels, // output channels
		sampleRate,
		d.framesPerBuffer,
		&buffer,
	)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	position := 0
	for position < len(samples) {
		select {
		case <-d.gate.wait():
		case <-stop:
			return stream.Abort()
		}

		select {
		case <-stop:
			return stream.Abort()
		default:
		}

		for i := 0; i < frameSize; i++ {
			if position+i < len(samples) {
				buffer[i] = samples[position+i]
			} else {
				buffer[i] = 0
			}
		}
		position += frameSize

		if err := stream.Write(); err != nil {
			_ = stream.Abort()
			return fmt.Errorf("failed to write to stream: %w", err)
		}
	}

	return stream.Stop()
}

// Close stops every stream and terminates PortAudio
func (d *PortAudioDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	streams := make([]*streamCore, 0, len(d.streams))
	for s := range d.streams {
		streams = append(streams, s)
	}
	d.mu.Unlock()

	for _, s := range streams {
		_ = s.Stop()
		if s.wasStarted() {
			<-s.Done()
		}
	}
	d.gate.release()

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}
