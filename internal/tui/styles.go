package tui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha, trimmed to what the views use.
const (
	colorPink     lipgloss.Color = "#f5c2e7"
	colorRed      lipgloss.Color = "#f38ba8"
	colorYellow   lipgloss.Color = "#f9e2af"
	colorGreen    lipgloss.Color = "#a6e3a1"
	colorTeal     lipgloss.Color = "#94e2d5"
	colorLavender lipgloss.Color = "#b4befe"
	colorText     lipgloss.Color = "#cdd6f4"
	colorOverlay1 lipgloss.Color = "#7f849c"
	colorSurface1 lipgloss.Color = "#45475a"
	colorMantle   lipgloss.Color = "#181825"
)

const (
	colorBrand   = colorPink
	colorFocus   = colorLavender
	colorSuccess = colorGreen
	colorError   = colorRed
	colorWarning = colorYellow
	colorInfo    = colorTeal
)

var (
	menuBarStyle  = lipgloss.NewStyle().Background(colorMantle).Foreground(colorText).Padding(0, 1)
	menuItemStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBrand)
	menuHintStyle = lipgloss.NewStyle().Foreground(colorOverlay1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface1).
			Padding(0, 1)
	focusedPanelStyle = panelStyle.BorderForeground(colorFocus)

	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBrand)
	labelStyle   = lipgloss.NewStyle().Foreground(colorOverlay1)
	linkStyle    = lipgloss.NewStyle().Underline(true).Foreground(colorInfo)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	okStyle      = lipgloss.NewStyle().Foreground(colorSuccess)
	rowStyle     = lipgloss.NewStyle().Foreground(colorText)
	numberStyle  = lipgloss.NewStyle().Foreground(colorLavender)
	scrollStyle  = lipgloss.NewStyle().Foreground(colorSurface1)
	sparkStyle   = lipgloss.NewStyle().Foreground(colorInfo)
)
