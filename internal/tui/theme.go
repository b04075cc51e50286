package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	header      lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	topicActive lipgloss.Style
	topicIdle   lipgloss.Style
	author      lipgloss.Style
	authorSelf  lipgloss.Style
	emote       lipgloss.Style
	unresolved  lipgloss.Style
	inputPanel  lipgloss.Style
	footer      lipgloss.Style
	status      map[string]lipgloss.Style
	errorLine   lipgloss.Style
	helpText    lipgloss.Style
}

func newTheme() theme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	amber := lipgloss.Color("#ffd166")
	muted := lipgloss.Color("#9ca3d8")

	return theme{
		header: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().Foreground(mint).Bold(true),
		topicActive: lipgloss.NewStyle().
			Background(pink).
			Foreground(lipgloss.Color("#22062f")).
			Bold(true),
		topicIdle:  lipgloss.NewStyle().Foreground(muted),
		author:     lipgloss.NewStyle().Foreground(blue).Bold(true),
		authorSelf: lipgloss.NewStyle().Foreground(mint).Bold(true),
		emote:      lipgloss.NewStyle().Foreground(amber).Bold(true),
		unresolved: lipgloss.NewStyle().Foreground(muted),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		footer: lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		status: map[string]lipgloss.Style{
			"connected":    lipgloss.NewStyle().Foreground(mint),
			"connecting":   lipgloss.NewStyle().Foreground(amber),
			"disconnected": lipgloss.NewStyle().Foreground(pink),
		},
		errorLine: lipgloss.NewStyle().Foreground(pink).Bold(true),
		helpText:  lipgloss.NewStyle().Foreground(muted),
	}
}

func (t theme) statusStyle(name string) lipgloss.Style {
	if s, ok := t.status[name]; ok {
		return s
	}
	return t.helpText
}
