// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     version
// Description: Central version management for all components
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package version

// Version constants for SpiritFlow components
const (
	// Application version
	App = "0.4.0"

	// Component versions
	Player  = "0.4.0"
	Server  = "0.2.0"
	Journal = "0.1.0"
	TUI     = "0.3.0"
)

// ComponentVersion returns the version for a given component name
func ComponentVersion(name string) string {
	switch name {
	case "player":
		return Player
	case "server":
		return Server
	case "journal":
		return Journal
	case "tui":
		return TUI
	default:
		return App
	}
}

// UserAgent returns the User-Agent header sent to remote APIs
func UserAgent() string {
	return "spiritflow/" + App
}
