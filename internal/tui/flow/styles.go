// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     flow
// Description: Styles for the flow TUI
// Author:      Mike Stoffels with Claude
// Created:     2025-12-09
// License:     MIT
// ============================================================================

package flow

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/msto63/spiritflow/internal/meditation"
)

// Color Palette
var (
	ColorRise    = lipgloss.Color("#F59E0B") // Amber
	ColorRest    = lipgloss.Color("#6366F1") // Indigo
	ColorSuccess = lipgloss.Color("#10B981") // Emerald
	ColorError   = lipgloss.Color("#EF4444") // Red
	ColorMuted   = lipgloss.Color("#6B7280") // Gray
	ColorDimmed  = lipgloss.Color("#374151") // Dark Gray

	ColorText      = lipgloss.Color("#F8FAFC") // Slate 50
	ColorTextMuted = lipgloss.Color("#94A3B8") // Slate 400
)

var (
	LogoStyle = lipgloss.NewStyle().
			Foreground(ColorRest).
			Bold(true)

	SubHeaderStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Italic(true)

	PaneStyle = lipgloss.NewStyle().
			Padding(1, 2).
			MarginRight(1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorDimmed)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	ButtonStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorDimmed)

	LockedBadgeStyle = lipgloss.NewStyle().
				Foreground(ColorMuted).
				Italic(true)

	DynamicBadgeStyle = lipgloss.NewStyle().
				Foreground(ColorSuccess).
				Bold(true)

	ScriptStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Italic(true)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorRise)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Bold(true)

	HelpDescStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)
)

// Logo
const Logo = "SpiritFlow"

// flowColor returns the accent color of a flow
func flowColor(f meditation.Flow) lipgloss.Color {
	if f == meditation.FlowRest {
		return ColorRest
	}
	return ColorRise
}

// RenderKeyHint renders a keyboard shortcut hint
func RenderKeyHint(key, description string) string {
	return HelpKeyStyle.Render(key) + " " + HelpDescStyle.Render(description)
}
