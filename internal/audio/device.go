// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     audio
// Description: Output device abstraction and the shared stream lifecycle
// Author:      Mike Stoffels with Claude
// Created:     2025-12-07
// License:     MIT
// ============================================================================

package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDeviceUnavailable is returned when no output device can be opened
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrDeviceClosed is returned by operations on a closed device
	ErrDeviceClosed = errors.New("audio device closed")

	// ErrStreamEnded is returned by Stop on a stream that already finished
	ErrStreamEnded = errors.New("audio stream already ended")

	// ErrStreamStarted is returned by a second Start
	ErrStreamStarted = errors.New("audio stream already started")
)

// Device is an audio output. A device may be suspended, in which case
// running streams hold their position until it is resumed.
type Device interface {
	// SampleRate returns the device rate in Hz
	SampleRate() int

	// Suspended reports whether output is paused
	Suspended() bool

	// Resume continues output after Suspend
	Resume(ctx context.Context) error

	// Suspend pauses all output
	Suspend() error

	// NewStream creates an unstarted stream bound to buf
	NewStream(buf *Buffer) (Stream, error)

	// Close stops every stream and releases the device
	Close() error
}

// Stream plays one buffer once.
//
// The ended callback fires exactly once after a started stream finishes,
// whether it ran to completion or was stopped.
type Stream interface {
	Start() error
	Stop() error
	SetOnEnded(fn func())
}

// DeviceConfig holds output device settings
type DeviceConfig struct {
	Backend         string
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// DefaultDeviceConfig returns settings matching the speech output format
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Backend:         "portaudio",
		SampleRate:      SpeechSampleRate,
		Channels:        SpeechChannels,
		FramesPerBuffer: 1024,
	}
}

// Open creates the configured device. Failures wrap ErrDeviceUnavailable.
func Open(cfg DeviceConfig) (Device, error) {
	switch cfg.Backend {
	case "null":
		return NewNullDevice(cfg), nil
	case "portaudio", "":
		return OpenPortAudio(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrDeviceUnavailable, cfg.Backend)
	}
}

// gate blocks writers while a device is suspended
type gate struct {
	mu   sync.Mutex
	open chan struct{}
}

func newGate() *gate {
	ch := make(chan struct{})
	close(ch)
	return &gate{open: ch}
}

func (g *gate) wait() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

func (g *gate) closed() bool {
	select {
	case <-g.wait():
		return false
	default:
		return true
	}
}

func (g *gate) shut() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.open:
		g.open = make(chan struct{})
	default:
	}
}

func (g *gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.open:
	default:
		close(g.open)
	}
}

// streamCore implements the start/stop/ended bookkeeping shared by backends.
// run is called on its own goroutine and must return when stop is closed.
type streamCore struct {
	mu       sync.Mutex
	onEnded  func()
	started  bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	err      error

	run     func(stop <-chan struct{}) error
	release func()
}

func newStreamCore(run func(stop <-chan struct{}) error, release func()) *streamCore {
	return &streamCore{
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		run:     run,
		release: release,
	}
}

// SetOnEnded registers or clears the ended callback
func (s *streamCore) SetOnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

// Start begins playback on a background goroutine
func (s *streamCore) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrStreamStarted
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		err := s.run(s.stop)

		s.mu.Lock()
		s.err = err
		fn := s.onEnded
		s.mu.Unlock()

		if s.release != nil {
			s.release()
		}
		close(s.done)

		if fn != nil {
			fn()
		}
	}()
	return nil
}

// Stop asks the stream to end. It does not wait for the ended callback.
func (s *streamCore) Stop() error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-s.done:
		return ErrStreamEnded
	default:
	}

	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *streamCore) wasStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Done is closed once the stream has finished
func (s *streamCore) Done() <-chan struct{} {
	return s.done
}

// Err returns the playback error, if any, after Done
func (s *streamCore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until s finishes or ctx ends
func Wait(ctx context.Context, s Stream) error {
	w, ok := s.(interface {
		Done() <-chan struct{}
		Err() error
	})
	if !ok {
		return fmt.Errorf("stream does not support waiting")
	}

	select {
	case <-w.Done():
		return w.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
