// Package ui provides the visual styling for the tasknerd interactive CLI.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	LightBackground = lipgloss.Color("#f4f5f6")
	LightForeground = lipgloss.Color("#101F38")
	LightPrimary    = lipgloss.Color("#101F38")
	LightAccent     = lipgloss.Color("#5E8C31")
	LightMuted      = lipgloss.Color("#6b7280")
	LightBorder     = lipgloss.Color("#dce0e5")

	DarkBackground = lipgloss.Color("#141d2b")
	DarkForeground = lipgloss.Color("#f2f2f2")
	DarkPrimary    = lipgloss.Color("#8BC34A")
	DarkAccent     = lipgloss.Color("#8BC34A")
	DarkMuted      = lipgloss.Color("#8b95a7")
	DarkBorder     = lipgloss.Color("#2a3850")

	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
)

// Theme holds the current color scheme
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme
func LightTheme() Theme {
	return Theme{
		Background: LightBackground,
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
	}
}

// DarkTheme returns the dark mode theme
func DarkTheme() Theme {
	return Theme{
		Background: DarkBackground,
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		IsDark:     true,
	}
}

// DetectTheme picks dark mode from COLORFGBG or TASKNERD_DARK_MODE=1,
// light otherwise.
func DetectTheme() Theme {
	if colorTerm := os.Getenv("COLORFGBG"); colorTerm != "" {
		// "foreground;background"; ANSI 0-6 and 8 are dark backgrounds.
		parts := strings.Split(colorTerm, ";")
		if bgIdx, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			if (bgIdx >= 0 && bgIdx <= 6) || bgIdx == 8 {
				return DarkTheme()
			}
		}
	}
	if os.Getenv("TASKNERD_DARK_MODE") == "1" {
		return DarkTheme()
	}
	return LightTheme()
}

// Styles holds all the styled components
type Styles struct {
	Theme Theme

	Header lipgloss.Style
	Footer lipgloss.Style
	Muted  lipgloss.Style

	Prompt        lipgloss.Style
	UserInput     lipgloss.Style
	UserMessage   lipgloss.Style
	AgentResponse lipgloss.Style
	Confirmation  lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Spinner lipgloss.Style
	Badge   lipgloss.Style
}

// NewStyles creates a new Styles instance with the given theme
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 2),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Prompt: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		UserInput: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		UserMessage: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		AgentResponse: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(theme.Accent),

		Confirmation: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(Warning),

		Success: lipgloss.NewStyle().
			Foreground(Success).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(Info),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Badge: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),
	}
}

// DefaultStyles returns styles for the detected theme.
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// ForKind returns the style used for a response of the given outcome kind.
func (s Styles) ForKind(kind string) lipgloss.Style {
	switch kind {
	case "confirmation":
		return s.Confirmation
	case "mutation_performed":
		return s.AgentResponse.BorderForeground(Success)
	case "error":
		return s.AgentResponse.BorderForeground(Destructive)
	default:
		return s.AgentResponse
	}
}
