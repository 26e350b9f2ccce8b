package tui

import "github.com/charmbracelet/lipgloss"

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7DD3FC")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5E7EB"))

	badgePendingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#9CA3AF"))

	badgeRunningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FBBF24"))

	badgeDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34D399"))

	badgeFailedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#F87171")).
				Bold(true)

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			PaddingLeft(2)

	checkpointStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A78BFA")).
			Italic(true)

	topicStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FCD34D")).
			Italic(true)

	branchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF"))

	errorBannerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FECACA")).
				Background(lipgloss.Color("#7F1D1D")).
				Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF"))
)

func badgeStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return badgeDoneStyle
	case "failed":
		return badgeFailedStyle
	case "queued", "in_progress":
		return badgeRunningStyle
	}
	return badgePendingStyle
}
