// Package term is the blocking terminal surface: a lipgloss/glamour
// renderer for display events, a readline-backed input reader, and a
// Bubble Tea menu navigator.
package term

import "github.com/charmbracelet/lipgloss"

// Palette adapts to terminal capabilities via lipgloss.
var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Padding(0, 1)

	crumbStyle = lipgloss.NewStyle().
			Faint(true).
			Foreground(colorDim)

	promptStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	optionNormal = lipgloss.NewStyle().
			Foreground(colorWhite)

	optionCurrent = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	keyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	keyDescStyle = lipgloss.NewStyle().
			Faint(true)

	errHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)

	errHintStyle = lipgloss.NewStyle().
			Faint(true).
			Foreground(colorGreen)

	menuBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)
