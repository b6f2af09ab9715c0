package cmd

import (
	"github.com/charmbracelet/lipgloss"

	"grimm.is/repeater/internal/extender"
)

// Palette
var (
	colorAccent = lipgloss.Color("#A8D8EA")
	colorGood   = lipgloss.Color("#4ECDC4")
	colorWarn   = lipgloss.Color("#FFE66D")
	colorAlert  = lipgloss.Color("#FF6B6B")
	colorMuted  = lipgloss.Color("#6c757d")
)

var (
	styleTitle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleGood  = lipgloss.NewStyle().Foreground(colorGood).Bold(true)
	styleWarn  = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	styleBad   = lipgloss.NewStyle().Foreground(colorAlert).Bold(true)
	styleMuted = lipgloss.NewStyle().Foreground(colorMuted)
)

// stateStyle colors a lifecycle state by severity.
func stateStyle(s extender.State) lipgloss.Style {
	switch s {
	case extender.StateRunning:
		return styleGood
	case extender.StateDegraded, extender.StateInitializing, extender.StateStopping:
		return styleWarn
	case extender.StateFailed:
		return styleBad
	}
	return styleMuted
}
