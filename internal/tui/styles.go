// Package tui implements the Bubble Tea chat UI.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/parley/internal/styles"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.ColorBlue).
			PaddingLeft(1)

	topicStyle = lipgloss.NewStyle().
			Foreground(styles.ColorGray).
			Italic(true)

	// Sender label of messages written by the viewer.
	outgoingStyle = lipgloss.NewStyle().
			Foreground(styles.ColorGreen).
			Bold(true)

	// Sender label of messages written by the partner.
	incomingStyle = lipgloss.NewStyle().
			Foreground(styles.ColorWhite).
			Bold(true)

	timeStyle = lipgloss.NewStyle().
			Foreground(styles.ColorGray)

	unreadStyle = lipgloss.NewStyle().
			Foreground(styles.ColorYellow)

	boundaryStyle = lipgloss.NewStyle().
			Foreground(styles.ColorGray).
			Align(lipgloss.Center)

	statusStyle = lipgloss.NewStyle().
			Foreground(styles.ColorGray).
			PaddingLeft(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(styles.ColorRed).
			PaddingLeft(1)

	inputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(styles.ColorBlue).
				PaddingLeft(1)
)

const iconUnread = "●"
