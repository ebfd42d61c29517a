// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     player
// Description: Personalized audio controller - request/playback state machine
// Author:      Mike Stoffels with Claude
// Created:     2025-12-07
// License:     MIT
// ============================================================================

package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msto63/spiritflow/internal/audio"
	"github.com/msto63/spiritflow/internal/meditation"
	"github.com/msto63/spiritflow/pkg/core/logging"
)

// DeviceOpener creates the output device on first use
type DeviceOpener func() (audio.Device, error)

// Config holds controller configuration
type Config struct {
	Flow       meditation.Flow
	Intentions meditation.IntentionSet
	Catalog    *meditation.Catalog
	Generator  Generator
	OpenDevice DeviceOpener
	Logger     *logging.Logger
}

// Controller produces and plays one personalized recording per distinct
// intention set. All exported methods are safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	// outMu guards outbox, dispatching and listeners. It is never held
	// while a listener runs or while waiting for mu.
	outMu       sync.Mutex
	outbox      []Event
	dispatching bool

	flow       meditation.Flow
	pipeline   *Pipeline
	openDevice DeviceOpener
	logger     *logging.Logger
	listeners  []Listener

	// guarded by mu
	intentions meditation.IntentionSet
	state      State
	generating bool
	generation uint64
	disabled   bool
	closed     bool
	device     audio.Device
	script     string
	buffer     *audio.Buffer
	stream     audio.Stream
	token      uuid.UUID
	seq        uint64
	pending    []Event
}

// Snapshot is a consistent view of the controller
type Snapshot struct {
	Flow       meditation.Flow         `json:"flow"`
	State      State                   `json:"state"`
	Intentions meditation.IntentionSet `json:"intentions"`
	Script     string                  `json:"script,omitempty"`
	HasAudio   bool                    `json:"has_audio"`
	Duration   time.Duration           `json:"duration"`
	Disabled   bool                    `json:"disabled"`
}

// New creates a controller. The device is opened on the first toggle.
func New(cfg Config) (*Controller, error) {
	if !cfg.Flow.Valid() {
		return nil, fmt.Errorf("invalid flow %q", cfg.Flow)
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if cfg.OpenDevice == nil {
		return nil, errors.New("device opener is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.New("player")
	}

	intentions := cfg.Intentions
	intentions.Flow = cfg.Flow

	c := &Controller{
		flow:       cfg.Flow,
		pipeline:   NewPipeline(cfg.Catalog, cfg.Generator),
		openDevice: cfg.OpenDevice,
		logger:     logger.WithField("flow", cfg.Flow.String()),
		intentions: intentions,
		state:      StateLocked,
	}
	if intentions.Complete() {
		c.state = StateIdle
	}
	return c, nil
}

// AddListener registers a listener for controller events
func (c *Controller) AddListener(l Listener) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Flow returns the controller's flow direction
func (c *Controller) Flow() meditation.Flow {
	return c.flow
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Intentions returns the current intention set
func (c *Controller) Intentions() meditation.IntentionSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intentions
}

// Snapshot returns the controller's current view
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Flow:       c.flow,
		State:      c.state,
		Intentions: c.intentions,
		Script:     c.script,
		HasAudio:   c.buffer != nil,
		Disabled:   c.disabled,
	}
	if c.buffer != nil {
		s.Duration = c.buffer.Duration()
	}
	return s
}

// Toggle is the single user action. Depending on the state it starts
// generation, starts playback or stops playback. It is a no-op while
// locked, generating, disabled or closed. Failures are reported to
// listeners as notices and also returned.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()

	if c.closed || c.disabled || c.generating || !c.intentions.Complete() {
		c.mu.Unlock()
		return nil
	}

	switch c.state {
	case StatePlaying:
		c.stopLocked()
		c.setStateLocked(StateReady)
		c.unlock()
		return nil

	case StateReady:
		err := c.playLocked(ctx)
		c.unlock()
		return err

	case StateIdle:
		return c.generate(ctx)

	default:
		c.mu.Unlock()
		return nil
	}
}

// generate runs the pipeline from StateIdle. Called with mu held; returns with it released.
func (c *Controller) generate(ctx context.Context) error {
	if err := c.pipeline.CheckCredential(); err != nil {
		c.reportLocked(err)
		c.unlock()
		return err
	}
	if err := c.ensureDeviceLocked(); err != nil {
		c.unlock()
		return err
	}

	c.generating = true
	c.setStateLocked(StateGenerating)
	generation := c.generation
	set := c.intentions
	c.unlock()

	c.logger.Info("Generating personalized audio")
	result, err := c.pipeline.Run(ctx, set)

	c.mu.Lock()
	c.generating = false

	if c.closed {
		c.unlock()
		return nil
	}

	stale := generation != c.generation
	if stale {
		// Intentions changed while generating; the result belongs to the old set.
		c.logger.Info("Discarding audio for outdated intentions")
		c.setStateLocked(StateIdle)
		c.unlock()
		return nil
	}

	if err != nil {
		c.setStateLocked(StateIdle)
		c.reportLocked(err)
		c.unlock()
		return err
	}

	c.script = result.Script
	c.buffer = result.Buffer
	c.setStateLocked(StateReady)
	c.emitLocked(Event{
		Type: EventGenerated,
		Generation: &Generation{
			Intentions: set,
			Script:     result.Script,
			Voice:      result.Voice,
			Duration:   result.Buffer.Duration(),
			Elapsed:    result.Elapsed,
		},
	})
	c.logger.Info("Personalized audio ready",
		"duration", result.Buffer.Duration().Round(time.Millisecond),
		"elapsed", result.Elapsed.Round(time.Millisecond),
	)

	err = c.playLocked(ctx)
	c.unlock()
	return err
}

// SetIntentions applies a new intention set. Any change discards the
// cached script and audio and stops playback.
func (c *Controller) SetIntentions(set meditation.IntentionSet) {
	set.Flow = c.flow

	c.mu.Lock()
	if c.closed || set == c.intentions {
		c.mu.Unlock()
		return
	}

	c.intentions = set
	c.generation++
	c.stopLocked()
	c.script = ""
	c.buffer = nil

	switch c.state {
	case StateGenerating:
		// settles in StateIdle once the running pipeline returns
	case StateLocked:
		if set.Complete() {
			c.setStateLocked(StateIdle)
		}
	default:
		c.setStateLocked(StateIdle)
	}
	c.unlock()
}

// Stop halts playback if any. It is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopLocked()
	if c.state == StatePlaying {
		c.setStateLocked(StateReady)
	}
	c.unlock()
}

// Buffer returns the cached audio, or nil
func (c *Controller) Buffer() *audio.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer
}

// Close stops playback and releases the device
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopLocked()
	dev := c.device
	c.device = nil
	c.mu.Unlock()

	if dev != nil {
		if err := dev.Close(); err != nil {
			return fmt.Errorf("failed to close audio device: %w", err)
		}
	}
	return nil
}

// ensureDeviceLocked opens the device once. A failure disables the controller.
func (c *Controller) ensureDeviceLocked() error {
	if c.device != nil {
		return nil
	}

	dev, err := c.openDevice()
	if err != nil {
		c.disabled = true
		perr := &Error{Kind: KindDeviceUnavailable, Op: "open audio device", Err: err}
		c.reportLocked(perr)
		return perr
	}
	c.device = dev
	return nil
}

// playLocked starts a new stream over the cached buffer
func (c *Controller) playLocked(ctx context.Context) error {
	if c.buffer == nil {
		return nil
	}
	if err := c.ensureDeviceLocked(); err != nil {
		return err
	}

	if c.device.Suspended() {
		if err := c.device.Resume(ctx); err != nil {
			perr := &Error{Kind: KindPlaybackFailed, Op: "resume audio device", Err: err}
			c.reportLocked(perr)
			return perr
		}
	}

	c.stopLocked()

	stream, err := c.device.NewStream(c.buffer)
	if err != nil {
		perr := &Error{Kind: KindPlaybackFailed, Op: "create stream", Err: err}
		c.reportLocked(perr)
		return perr
	}

	token := uuid.New()
	stream.SetOnEnded(func() { c.streamEnded(token) })
	c.stream = stream
	c.token = token

	if err := stream.Start(); err != nil {
		stream.SetOnEnded(nil)
		c.stream = nil
		c.token = uuid.Nil
		perr := &Error{Kind: KindPlaybackFailed, Op: "start stream", Err: err}
		c.reportLocked(perr)
		return perr
	}

	c.setStateLocked(StatePlaying)
	return nil
}

// stopLocked detaches and stops the current stream
func (c *Controller) stopLocked() {
	if c.stream == nil {
		return
	}

	c.stream.SetOnEnded(nil)
	if err := c.stream.Stop(); err != nil {
		c.logger.Debug("Audio stream already stopped", "error", err)
	}
	c.stream = nil
	c.token = uuid.Nil
}

// streamEnded handles the end of a stream. Only the current stream may
// change state; callbacks from replaced streams are ignored.
func (c *Controller) streamEnded(token uuid.UUID) {
	c.mu.Lock()
	if c.stream == nil || c.token != token {
		c.mu.Unlock()
		return
	}

	c.stream = nil
	c.token = uuid.Nil
	if c.state == StatePlaying {
		c.setStateLocked(StateReady)
	}
	c.unlock()
}

// setStateLocked performs a validated transition and queues an event
func (c *Controller) setStateLocked(to State) bool {
	from := c.state
	if from == to {
		return false
	}
	if !isValidTransition(from, to) {
		c.logger.Warn("Invalid state transition", "from", from, "to", to)
		return false
	}

	c.state = to
	c.logger.Debug("State changed", "from", from, "to", to)
	c.emitLocked(Event{Type: EventStateChanged, From: from, To: to})
	return true
}

// reportLocked logs err and queues it as a user notice
func (c *Controller) reportLocked(err error) {
	kind := KindOf(err)
	c.logger.Error("Audio request failed", "kind", kind, "error", err)
	c.emitLocked(Event{
		Type: EventNotice,
		Notice: &Notice{
			Kind:    kind,
			Message: kind.Message(),
			Detail:  err.Error(),
		},
	})
}

func (c *Controller) emitLocked(e Event) {
	c.seq++
	e.Seq = c.seq
	e.Flow = c.flow
	if e.Type != EventStateChanged {
		e.From, e.To = c.state, c.state
	}
	e.Time = time.Now()
	c.pending = append(c.pending, e)
}

// unlock releases mu and delivers queued events with no lock held.
// Only one goroutine drains the outbox at a time, so listeners see events
// in Seq order. Events raised by a listener that calls back into the
// controller are delivered after that listener returns.
func (c *Controller) unlock() {
	events := c.pending
	c.pending = nil
	c.outMu.Lock()
	c.outbox = append(c.outbox, events...)
	c.mu.Unlock()

	if c.dispatching {
		c.outMu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.outbox) > 0 {
		batch := c.outbox
		c.outbox = nil
		listeners := c.listeners
		c.outMu.Unlock()

		for _, e := range batch {
			for _, l := range listeners {
				l(e)
			}
		}

		c.outMu.Lock()
	}
	c.dispatching = false
	c.outMu.Unlock()
}
