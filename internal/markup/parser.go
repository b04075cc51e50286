package markup

import (
	"context"
	"regexp"

	"github.com/vovakirdan/wirechat-client/internal/emote"
)

var tokenPattern = regexp.MustCompile(`:([A-Za-z0-9_]+):`)

// Resolver looks up emotes by name.
type Resolver interface {
	Resolve(ctx context.Context, name string) (emote.Ref, error)
}

// Parser turns raw message text into segments.
type Parser struct {
	resolver Resolver
}

// NewParser builds a parser that resolves emote tokens through r.
func NewParser(r Resolver) *Parser {
	return &Parser{resolver: r}
}

// Parse scans raw left to right for :name: tokens. Resolution failures keep the
// token text verbatim as an Unresolved segment. Empty input yields no segments.
func (p *Parser) Parse(ctx context.Context, raw string) []Segment {
	if raw == "" {
		return nil
	}

	matches := tokenPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return []Segment{Literal(raw)}
	}

	segments := make([]Segment, 0, 2*len(matches)+1)
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		name := raw[m[2]:m[3]]

		if start > last {
			segments = append(segments, Literal(raw[last:start]))
		}
		if ref, err := p.resolver.Resolve(ctx, name); err == nil {
			segments = append(segments, Emote(ref))
		} else {
			segments = append(segments, Unresolved(raw[start:end]))
		}
		last = end
	}
	if last < len(raw) {
		segments = append(segments, Literal(raw[last:]))
	}
	return segments
}
