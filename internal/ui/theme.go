package ui

import (
	"log/slog"

	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/snretrieve/internal/config"
)

// Level tag colors. Mutable so the config file can override them.
var (
	ColorDebug   = lipgloss.Color("#5a6278")
	ColorInfo    = lipgloss.Color("#89b4fa")
	ColorSuccess = lipgloss.Color("#a6e3a1")
	ColorWarn    = lipgloss.Color("#f9e2af")
	ColorError   = lipgloss.Color("#f38ba8")
)

func levelColor(l slog.Level) lipgloss.Color {
	switch {
	case l < slog.LevelInfo:
		return ColorDebug
	case l < LevelSuccess:
		return ColorInfo
	case l < slog.LevelWarn:
		return ColorSuccess
	case l < slog.LevelError:
		return ColorWarn
	default:
		return ColorError
	}
}

// ApplyTheme overrides level colors from the config file.
func ApplyTheme(tc config.ThemeConfig) {
	if tc.Debug != nil {
		ColorDebug = lipgloss.Color(*tc.Debug)
	}
	if tc.Info != nil {
		ColorInfo = lipgloss.Color(*tc.Info)
	}
	if tc.Success != nil {
		ColorSuccess = lipgloss.Color(*tc.Success)
	}
	if tc.Warn != nil {
		ColorWarn = lipgloss.Color(*tc.Warn)
	}
	if tc.Error != nil {
		ColorError = lipgloss.Color(*tc.Error)
	}
}
