// Package theme holds the colors of the session view.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme defines the color scheme of the status view
type Theme struct {
	Name string

	Foreground lipgloss.Color
	Bar        lipgloss.Color
	BarText    lipgloss.Color
	Muted      lipgloss.Color

	Error  lipgloss.Color
	Prompt lipgloss.Color

	TableHeader lipgloss.Color
}

// DefaultTheme returns the default dark theme
func DefaultTheme() Theme {
	return Theme{
		Name:        "default",
		Foreground:  lipgloss.Color("252"),
		Bar:         lipgloss.Color("62"),
		BarText:     lipgloss.Color("230"),
		Muted:       lipgloss.Color("245"),
		Error:       lipgloss.Color("196"),
		Prompt:      lipgloss.Color("214"),
		TableHeader: lipgloss.Color("75"),
	}
}

// CatppuccinMochaTheme returns the Catppuccin Mocha palette
func CatppuccinMochaTheme() Theme {
	return Theme{
		Name:        "catppuccin-mocha",
		Foreground:  lipgloss.Color("#cdd6f4"), // Text
		Bar:         lipgloss.Color("#89b4fa"), // Blue
		BarText:     lipgloss.Color("#1e1e2e"), // Base
		Muted:       lipgloss.Color("#6c7086"), // Overlay0
		Error:       lipgloss.Color("#f38ba8"), // Red
		Prompt:      lipgloss.Color("#f9e2af"), // Yellow
		TableHeader: lipgloss.Color("#cba6f7"), // Mauve
	}
}

// GetTheme returns a theme by name, falling back to the default one
func GetTheme(name string) Theme {
	switch name {
	case "catppuccin-mocha", "catppuccin":
		return CatppuccinMochaTheme()
	default:
		return DefaultTheme()
	}
}
