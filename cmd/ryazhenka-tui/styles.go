package main

import "github.com/charmbracelet/lipgloss"

// styles holds the lipgloss styles for the chat screen.
type styles struct {
	header     lipgloss.Style
	timestamp  lipgloss.Style
	ownName    lipgloss.Style
	peerName   lipgloss.Style
	pending    lipgloss.Style
	failed     lipgloss.Style
	attachment lipgloss.Style
	statusOK   lipgloss.Style
	statusBad  lipgloss.Style
}

func newStyles() styles {
	return styles{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")),
		timestamp:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		ownName:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		peerName:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		pending:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true),
		failed:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		attachment: lipgloss.NewStyle().Foreground(lipgloss.Color("110")),
		statusOK:   lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		statusBad:  lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	}
}
