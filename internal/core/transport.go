package core

import (
	"context"

	"github.com/vovakirdan/wirechat-client/internal/markup"
)

// Session is one live bidirectional stream for a topic.
type Session interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens sessions. Dial returns once the handshake is acknowledged.
type Dialer interface {
	Dial(ctx context.Context, topic string) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, topic string) (Session, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, topic string) (Session, error) {
	return f(ctx, topic)
}

// Parser converts message text into segments.
type Parser interface {
	Parse(ctx context.Context, raw string) []markup.Segment
}
