// Package styles holds the lipgloss styles used by the terminal UI.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937") // Dark surface
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	// Connection state colors
	StateAttempting = lipgloss.Color("#60A5FA") // Blue
	StateAwaiting   = lipgloss.Color("#F59E0B") // Amber
	StateReady      = lipgloss.Color("#10B981") // Green
	StateFailed     = lipgloss.Color("#F87171") // Red
	StateTimeout    = lipgloss.Color("#FB923C") // Orange

	Header = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor).MarginBottom(1)

	Spinner = lipgloss.NewStyle().Foreground(PrimaryColor)

	Ready = lipgloss.NewStyle().Bold(true).Foreground(SecondaryColor)

	// Dismissable errors
	ErrorCard = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(WarningColor).Padding(0, 1)

	// Errors the user cannot dismiss
	FatalCard = lipgloss.NewStyle().Border(lipgloss.ThickBorder()).BorderForeground(ErrorColor).Padding(0, 1)

	CardTitle = lipgloss.NewStyle().Bold(true)

	PromptLabel = lipgloss.NewStyle().Bold(true).Foreground(WarningColor)

	HelpBar = lipgloss.NewStyle().Foreground(MutedColor).MarginTop(1)
	HelpKey = lipgloss.NewStyle().Bold(true).Foreground(SecondaryColor)
)

// StateColor returns the color for a connection state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "attempting":
		return StateAttempting
	case "awaiting_pairing":
		return StateAwaiting
	case "ready":
		return StateReady
	case "failed":
		return StateFailed
	case "timeout":
		return StateTimeout
	default:
		return MutedColor
	}
}

// StateIcon returns an icon for a connection state name.
func StateIcon(state string) string {
	switch state {
	case "attempting":
		return "●"
	case "awaiting_pairing":
		return "?"
	case "ready":
		return "✓"
	case "failed":
		return "✗"
	case "timeout":
		return "⏰"
	default:
		return "○"
	}
}
