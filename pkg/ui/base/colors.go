// Package base holds the palette and string helpers shared by the terminal
// tools.
package base

import "github.com/charmbracelet/lipgloss"

// ColorPalette is one theme of the tools.
type ColorPalette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color
	Text      lipgloss.Color
}

var DarkPalette = ColorPalette{
	Primary:   lipgloss.Color("#7C3AED"),
	Secondary: lipgloss.Color("#06B6D4"),
	Error:     lipgloss.Color("#EF4444"),
	Muted:     lipgloss.Color("#94A3B8"),
	Text:      lipgloss.Color("#CDD6F4"),
}

var LightPalette = ColorPalette{
	Primary:   lipgloss.Color("#5A56E0"),
	Secondary: lipgloss.Color("#0E7490"),
	Error:     lipgloss.Color("#FF5F56"),
	Muted:     lipgloss.Color("#9B9B9B"),
	Text:      lipgloss.Color("#1E1E2E"),
}

func adaptive(pick func(ColorPalette) lipgloss.Color) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: string(pick(LightPalette)), Dark: string(pick(DarkPalette))}
}

// Adaptive colors follow the terminal background.
var (
	AdaptivePrimary   = adaptive(func(p ColorPalette) lipgloss.Color { return p.Primary })
	AdaptiveSecondary = adaptive(func(p ColorPalette) lipgloss.Color { return p.Secondary })
	AdaptiveError     = adaptive(func(p ColorPalette) lipgloss.Color { return p.Error })
	AdaptiveMuted     = adaptive(func(p ColorPalette) lipgloss.Color { return p.Muted })
	AdaptiveText      = adaptive(func(p ColorPalette) lipgloss.Color { return p.Text })
)
