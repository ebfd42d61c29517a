// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     player
// Description: Personalized audio player - states and events
// Author:      Mike Stoffels with Claude
// Created:     2025-12-07
// License:     MIT
// ============================================================================

package player

import (
	"time"

	"github.com/msto63/spiritflow/internal/meditation"
)

// State represents the current state of an audio controller
type State int

const (
	// StateLocked - Intentions not yet complete, playback unavailable
	StateLocked State = iota

	// StateIdle - Intentions complete, no audio cached
	StateIdle

	// StateGenerating - Script and speech are being produced
	StateGenerating

	// StateReady - Audio cached, not playing
	StateReady

	// StatePlaying - Audio is playing
	StatePlaying
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Icon returns an icon for the state
func (s State) Icon() string {
	switch s {
	case StateLocked:
		return "🔒"
	case StateIdle:
		return "▶"
	case StateGenerating:
		return "⚙️"
	case StateReady:
		return "▶"
	case StatePlaying:
		return "⏸"
	default:
		return "?"
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// validTransitions lists the permitted state changes
var validTransitions = map[State][]State{
	StateLocked:     {StateIdle},
	StateIdle:       {StateGenerating},
	StateGenerating: {StateReady, StateIdle},
	StateReady:      {StatePlaying, StateIdle},
	StatePlaying:    {StateReady, StateIdle},
}

// isValidTransition checks if a state transition is valid
func isValidTransition(from, to State) bool {
	for _, valid := range validTransitions[from] {
		if valid == to {
			return true
		}
	}
	return false
}

// EventType distinguishes controller events
type EventType int

const (
	// EventStateChanged is sent on every state transition
	EventStateChanged EventType = iota

	// EventNotice carries a user-visible failure notice
	EventNotice

	// EventGenerated is sent once per successful generation
	EventGenerated
)

// String returns the wire name of the event type
func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state"
	case EventNotice:
		return "notice"
	case EventGenerated:
		return "generated"
	default:
		return "unknown"
	}
}

// MarshalText encodes the event type by name
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Notice is a failure surfaced to the user
type Notice struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Generation describes freshly generated audio
type Generation struct {
	Intentions meditation.IntentionSet `json:"intentions"`
	Script     string                  `json:"script"`
	Voice      string                  `json:"voice"`
	Duration   time.Duration           `json:"duration"`
	Elapsed    time.Duration           `json:"elapsed"`
}

// Event is delivered to listeners with no controller lock held.
// Seq increases monotonically per controller.
type Event struct {
	Seq        uint64          `json:"seq"`
	Type       EventType       `json:"type"`
	Flow       meditation.Flow `json:"flow"`
	From       State           `json:"from"`
	To         State           `json:"to"`
	Notice     *Notice         `json:"notice,omitempty"`
	Generation *Generation     `json:"generation,omitempty"`
	Time       time.Time       `json:"time"`
}

// Listener is called for every controller event
type Listener func(Event)

// Notifier receives user-visible failure notices
type Notifier interface {
	Notify(Notice)
}

// NotifyListener adapts a Notifier to a Listener that forwards notices only
func NotifyListener(n Notifier) Listener {
	return func(e Event) {
		if e.Type == EventNotice && e.Notice != nil {
			n.Notify(*e.Notice)
		}
	}
}
