// Package tui renders the live terminal dashboard for the run command.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"healthwatch/internal/models"
)

var (
	// Colors
	green  = lipgloss.Color("#10B981")
	red    = lipgloss.Color("#EF4444")
	yellow = lipgloss.Color("#F59E0B")
	dim    = lipgloss.Color("#6B7280")
	white  = lipgloss.Color("#F9FAFB")
	accent = lipgloss.Color("#06B6D4")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent)

	boldStyle = lipgloss.NewStyle().Bold(true).Foreground(white)

	okStyle       = lipgloss.NewStyle().Foreground(green).Bold(true)
	degradedStyle = lipgloss.NewStyle().Foreground(yellow).Bold(true)
	downStyle     = lipgloss.NewStyle().Foreground(red).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(dim)

	selectedStyle = lipgloss.NewStyle().Foreground(white).Background(lipgloss.Color("#374151"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#374151")).
			Padding(0, 1)

	dotOK       = okStyle.Render("●")
	dotDegraded = degradedStyle.Render("●")
	dotDown     = downStyle.Render("●")
	dotNoData   = dimStyle.Render("·")
)

func statusDot(s models.Status) string {
	switch s {
	case models.StatusOK:
		return dotOK
	case models.StatusDegraded:
		return dotDegraded
	default:
		return dotDown
	}
}

func statusStyle(s models.Status) lipgloss.Style {
	switch s {
	case models.StatusOK:
		return okStyle
	case models.StatusDegraded:
		return degradedStyle
	default:
		return downStyle
	}
}
