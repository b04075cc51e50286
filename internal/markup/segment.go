// Package markup splits chat text into literal and emote segments.
package markup

import (
	"strings"

	"github.com/vovakirdan/wirechat-client/internal/emote"
)

// SegmentKind tags the variant carried by a Segment.
type SegmentKind int

const (
	// SegmentLiteral is plain text.
	SegmentLiteral SegmentKind = iota
	// SegmentEmote is a resolved :name: token.
	SegmentEmote
	// SegmentUnresolved is a :name: token whose lookup failed; Text keeps it verbatim.
	SegmentUnresolved
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentLiteral:
		return "literal"
	case SegmentEmote:
		return "emote"
	case SegmentUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Segment is one piece of a parsed message.
type Segment struct {
	Kind  SegmentKind
	Text  string
	Emote emote.Ref
}

// Literal builds a plain text segment.
func Literal(text string) Segment {
	return Segment{Kind: SegmentLiteral, Text: text}
}

// Emote builds a resolved emote segment.
func Emote(ref emote.Ref) Segment {
	return Segment{Kind: SegmentEmote, Emote: ref}
}

// Unresolved builds a segment for a token that could not be resolved.
func Unresolved(raw string) Segment {
	return Segment{Kind: SegmentUnresolved, Text: raw}
}

// Plain renders segments back to text, emotes as their :name: token.
func Plain(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		if s.Kind == SegmentEmote {
			b.WriteString(":" + s.Emote.Name + ":")
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}
