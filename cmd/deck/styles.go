package main

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	dividerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3C3C3C"))
	lightOnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	lightOffStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	modeStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD75F"))
	partialStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#8A8A8A"))
	captionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E4E4E4"))
	cardKeyStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FAFFF"))
	cardLineStyle  = lipgloss.NewStyle().Bold(true)
	selectedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#5F00AF"))
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F"))
	footerKeyStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FAFFF"))
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
)
