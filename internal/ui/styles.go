package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#EAF3FF")).
			Background(lipgloss.Color("#1E3A8A")).
			Padding(0, 1)

	metaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8C7FF"))

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0B1B36")).
			Padding(0, 1)

	agentStyle    = lipgloss.NewStyle().Bold(true)
	doneRowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	resultStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#60A5FA")).Padding(0, 1)
	errorStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#FB7185")).Foreground(lipgloss.Color("#FB7185")).Padding(0, 1)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86B"))
	progressFull  = lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))
	progressEmpty = lipgloss.NewStyle().Foreground(lipgloss.Color("#374151"))
)

// stateColor is the badge background for each session state.
var stateColor = map[string]lipgloss.Color{
	"idle":      lipgloss.Color("#6B7280"),
	"streaming": lipgloss.Color("#FF9F43"),
	"completed": lipgloss.Color("#60A5FA"),
	"failed":    lipgloss.Color("#FB7185"),
}
