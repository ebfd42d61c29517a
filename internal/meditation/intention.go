// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     meditation
// Description: Flow directions and the user's intention pairs
// Author:      Mike Stoffels with Claude
// Created:     2025-12-07
// License:     MIT
// ============================================================================

package meditation

import (
	"fmt"
	"strings"
)

// Flow is the direction of a daily session
type Flow string

const (
	// FlowRise is the morning flow (energy + emotion)
	FlowRise Flow = "rise"

	// FlowRest is the evening flow (victory + release)
	FlowRest Flow = "rest"
)

// Flows lists every known flow in display order
var Flows = []Flow{FlowRise, FlowRest}

// ParseFlow converts user input to a Flow
func ParseFlow(s string) (Flow, error) {
	switch Flow(strings.ToLower(strings.TrimSpace(s))) {
	case FlowRise, "morning":
		return FlowRise, nil
	case FlowRest, "evening":
		return FlowRest, nil
	default:
		return "", fmt.Errorf("unknown flow %q (want rise or rest)", s)
	}
}

// String returns the flow identifier
func (f Flow) String() string {
	return string(f)
}

// Valid reports whether f is a known flow
func (f Flow) Valid() bool {
	return f == FlowRise || f == FlowRest
}

// IntentionSet is the pair of user-entered strings that personalize a script.
// For FlowRise Primary is the energy and Secondary the emotion; for FlowRest
// they are the victory and the thing to release.
type IntentionSet struct {
	Flow      Flow   `json:"flow"`
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// Rise builds the morning intention set
func Rise(energy, emotion string) IntentionSet {
	return IntentionSet{Flow: FlowRise, Primary: energy, Secondary: emotion}
}

// Rest builds the evening intention set
func Rest(victory, release string) IntentionSet {
	return IntentionSet{Flow: FlowRest, Primary: victory, Secondary: release}
}

// Complete reports whether both intentions are present
func (s IntentionSet) Complete() bool {
	return strings.TrimSpace(s.Primary) != "" && strings.TrimSpace(s.Secondary) != ""
}

// Normalized returns the set with surrounding whitespace removed
func (s IntentionSet) Normalized() IntentionSet {
	return IntentionSet{
		Flow:      s.Flow,
		Primary:   strings.TrimSpace(s.Primary),
		Secondary: strings.TrimSpace(s.Secondary),
	}
}

// Named returns the intentions keyed by their flow-specific names
// (energy/emotion or victory/release).
func (s IntentionSet) Named() map[string]string {
	switch s.Flow {
	case FlowRest:
		return map[string]string{"victory": s.Primary, "release": s.Secondary}
	default:
		return map[string]string{"energy": s.Primary, "emotion": s.Secondary}
	}
}

// FromNamed builds a set for flow from flow-specific keys. Unknown keys are ignored.
func FromNamed(flow Flow, named map[string]string) IntentionSet {
	set := IntentionSet{Flow: flow}
	switch flow {
	case FlowRest:
		set.Primary, set.Secondary = named["victory"], named["release"]
	default:
		set.Primary, set.Secondary = named["energy"], named["emotion"]
	}
	return set
}
