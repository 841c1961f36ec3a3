package ui

import "github.com/charmbracelet/lipgloss"

// Palette. One accent color, everything else in grays.
const (
	ColorAccent   = "154" // lime
	ColorAccentLo = "106"
	ColorGray     = "245"
	ColorDarkGray = "238"
	ColorRed      = "196"
	ColorYellow   = "220"
)

// Styles holds the lipgloss styles used by the renderers.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Active  lipgloss.Style
	Label   lipgloss.Style
	Score   lipgloss.Style
	Panel   lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentLo)),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorDarkGray)).
			Padding(0, 1),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:  plain,
		Success: plain,
		Warning: plain,
		Error:   plain,
		Dim:     plain,
		Active:  plain,
		Label:   plain,
		Score:   plain,
		Panel:   plain,
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
