package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ade80"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af")).Width(8)
	focusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f9fafb")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ade80"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fbbf24"))
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#1a3a24")).
			Padding(1, 2)
	codeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f9fafb")).Background(lipgloss.Color("#1a3a24")).Padding(0, 1)
)
