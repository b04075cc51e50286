package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/markup"
)

// renderSegments draws a parsed message. Emotes show as [name].
func renderSegments(t theme, segments []markup.Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		switch seg.Kind {
		case markup.SegmentEmote:
			b.WriteString(t.emote.Render("[" + seg.Emote.Name + "]"))
		case markup.SegmentUnresolved:
			b.WriteString(t.unresolved.Render(seg.Text))
		default:
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

func renderMessage(t theme, msg core.Message) string {
	author := t.author
	if msg.OriginSelf {
		author = t.authorSelf
	}
	return author.Render(msg.Author) + ": " + renderSegments(t, msg.Segments)
}

func renderTimeline(t theme, v core.View, width int) string {
	if !v.HasSelection {
		return t.helpText.Render("select a topic with tab")
	}
	if len(v.Messages) == 0 {
		return t.helpText.Render("no messages yet")
	}
	lines := make([]string, 0, len(v.Messages))
	wrap := lipgloss.NewStyle().Width(max(width, 10))
	for _, msg := range v.Messages {
		lines = append(lines, wrap.Render(renderMessage(t, msg)))
	}
	return strings.Join(lines, "\n")
}

func renderTopics(t theme, v core.View, width int) string {
	if len(v.Topics) == 0 {
		return t.helpText.Render("no topics")
	}
	lines := make([]string, 0, len(v.Topics))
	for _, ts := range v.Topics {
		dot := t.statusStyle(ts.Status.String()).Render("●")
		label := fmt.Sprintf("%s (%d)", ts.ID, ts.Messages)
		if v.HasSelection && ts.ID == v.Selected {
			label = t.topicActive.Render(label)
		} else {
			label = t.topicIdle.Render(label)
		}
		lines = append(lines, lipgloss.NewStyle().MaxWidth(width).Render(dot+" "+label))
	}
	return strings.Join(lines, "\n")
}

// neighbour returns the topic offset steps away from the selection, wrapping.
func neighbour(v core.View, offset int) (core.TopicID, bool) {
	n := len(v.Topics)
	if n == 0 {
		return "", false
	}
	idx := -1
	for i, ts := range v.Topics {
		if v.HasSelection && ts.ID == v.Selected {
			idx = i
			break
		}
	}
	if idx < 0 {
		if offset < 0 {
			return v.Topics[n-1].ID, true
		}
		return v.Topics[0].ID, true
	}
	next := ((idx+offset)%n + n) % n
	return v.Topics[next].ID, true
}
