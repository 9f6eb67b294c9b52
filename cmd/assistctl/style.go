package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/fyrsmithlabs/assistd/internal/diagnosis"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	replyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231"))

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Underline(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

func urgencyStyle(u diagnosis.Urgency) lipgloss.Style {
	switch u {
	case diagnosis.UrgencyCritical, diagnosis.UrgencyHigh:
		return errStyle
	case diagnosis.UrgencyModerate:
		return warnStyle
	default:
		return okStyle
	}
}
