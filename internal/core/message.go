package core

import "github.com/vovakirdan/wirechat-client/internal/markup"

// TopicID identifies a topic. It is opaque and case-sensitive.
type TopicID string

// Message is the domain model for a received chat message. It is never edited.
type Message struct {
	ID         string
	Author     string
	RawText    string
	Segments   []markup.Segment
	OriginSelf bool
}

// Status is the connection state of one topic.
type Status int

const (
	// StatusDisconnected means no session is live or being dialed.
	StatusDisconnected Status = iota
	// StatusConnecting means a handshake is in flight.
	StatusConnecting
	// StatusConnected means a session is live.
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// TopicSummary describes one known topic for the topic list.
type TopicSummary struct {
	ID       TopicID
	Status   Status
	Messages int
}

// View is what the rendering layer draws.
type View struct {
	Selected     TopicID
	HasSelection bool
	Status       Status
	Messages     []Message
	Topics       []TopicSummary
}
