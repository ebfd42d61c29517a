// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     audio
// Description: Silent device that plays buffers in real time without output
// Author:      Mike Stoffels with Claude
// Created:     2025-12-09
// License:     MIT
// ============================================================================

package audio

import (
	"context"
	"sync"
	"time"
)

// NullDevice discards samples but keeps real-time playback timing.
// It backs headless servers and exports.
type NullDevice struct {
	mu         sync.Mutex
	sampleRate int
	closed     bool
	gate       *gate
	streams    map[*streamCore]struct{}

	// Speed divides playback time; 0 or 1 plays in real time
	Speed float64
}

// NewNullDevice creates a silent device
func NewNullDevice(cfg DeviceConfig) *NullDevice {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = SpeechSampleRate
	}
	return &NullDevice{
		sampleRate: rate,
		gate:       newGate(),
		streams:    make(map[*streamCore]struct{}),
	}
}

// SampleRate returns the device rate in Hz
func (d *NullDevice) SampleRate() int { return d.sampleRate }

// Suspended reports whether output is paused
func (d *NullDevice) Suspended() bool { return d.gate.closed() }

// Resume continues output after Suspend
func (d *NullDevice) Resume(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	d.gate.release()
	return ctx.Err()
}

// Suspend pauses all output
func (d *NullDevice) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	d.gate.shut()
	return nil
}

// NewStream creates an unstarted stream bound to buf
func (d *NullDevice) NewStream(buf *Buffer) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}

	length := buf.Duration()
	if d.Speed > 1 {
		length = time.Duration(float64(length) / d.Speed)
	}

	var core *streamCore
	core = newStreamCore(func(stop <-chan struct{}) error {
		remaining := length
		for remaining > 0 {
			select {
			case <-d.gate.wait():
			case <-stop:
				return nil
			}

			step := remaining
			if step > 50*time.Millisecond {
				step = 50 * time.Millisecond
			}
			timer := time.NewTimer(step)
			select {
			case <-timer.C:
				remaining -= step
			case <-stop:
				timer.Stop()
				return nil
			}
		}
		return nil
	}, func() {
		d.mu.Lock()
		delete(d.streams, core)
		d.mu.Unlock()
	})

	d.streams[core] = struct{}{}
	return core, nil
}

// Close stops every stream and releases the device
func (d *NullDevice) Close() error {
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
	}
	d.gate.release()
	return nil
}
