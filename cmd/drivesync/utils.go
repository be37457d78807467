package main

import "github.com/charmbracelet/lipgloss"

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	highlight = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

func okMark() string {
	return okStyle.Render("✓")
}

func failMark() string {
	return errStyle.Render("✗")
}
