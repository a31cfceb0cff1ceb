// Package tui renders deployment progress in the terminal, either as a
// bubbletea program or as plain lines for non-interactive output.
package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette - CloudStation brand theme (Orange, Black, White)
var (
	// Primary brand color - Orange #ff8700
	ColorPrimary = lipgloss.Color("208")

	// Secondary brand color - Light Orange #ffaf00
	ColorSecondary = lipgloss.Color("214")

	// White for high contrast text #eeeeee
	ColorWhite = lipgloss.Color("255")

	// Success indicator - Green
	ColorSuccess = lipgloss.Color("42")

	// Error indicator - Red
	ColorError = lipgloss.Color("196")

	// Warning indicator - Orange (same as secondary for brand consistency)
	ColorWarning = lipgloss.Color("214")

	// Muted/subtle text - Gray
	ColorMuted = lipgloss.Color("240")
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	LinkStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Underline(true)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	InputLabelStyle = lipgloss.NewStyle().
			Foreground(ColorWhite).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary)
)

// Panels
var (
	ErrorBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorError).
			Padding(1, 2)

	SuccessBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSuccess).
			Padding(1, 2)
)

// Status markers
const (
	StatusSuccess = "[OK]"
	StatusError   = "[ERR]"
	StatusWarning = "[WARN]"
	StatusInfo    = "[INFO]"
)

// RenderSuccess renders a success message with its marker
func RenderSuccess(text string) string {
	return SuccessStyle.Render(StatusSuccess + " " + text)
}

// RenderError renders an error message with its marker
func RenderError(text string) string {
	return ErrorStyle.Render(StatusError + " " + text)
}

// RenderWarning renders a warning message with its marker
func RenderWarning(text string) string {
	return WarningStyle.Render(StatusWarning + " " + text)
}

// RenderInfo renders an info message with its marker
func RenderInfo(text string) string {
	return MutedStyle.Render(StatusInfo + " " + text)
}

// RenderMuted renders text with the muted style
func RenderMuted(text string) string {
	return MutedStyle.Render(text)
}

// RenderStatusLine renders "label: value", coloring value by status
// ("success", "error", "warning" or "" for none)
func RenderStatusLine(label, value string, status string) string {
	labelStyled := InputLabelStyle.Render(label + ":")
	var valueStyled string

	switch status {
	case "success":
		valueStyled = SuccessStyle.Render(value)
	case "error":
		valueStyled = ErrorStyle.Render(value)
	case "warning":
		valueStyled = WarningStyle.Render(value)
	default:
		valueStyled = value
	}

	return labelStyled + " " + valueStyled
}
