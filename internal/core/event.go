package core

// eventKind is a notification a session goroutine or timer posts to the loop.
type eventKind int

const (
	// eventOpened reports a completed handshake.
	eventOpened eventKind = iota
	// eventClosed reports a failed dial, a read error or a write error.
	eventClosed
	// eventInbound delivers a parsed message.
	eventInbound
	// eventReconnectDue fires when the backoff delay has elapsed.
	eventReconnectDue
)

func (k eventKind) String() string {
	switch k {
	case eventOpened:
		return "opened"
	case eventClosed:
		return "closed"
	case eventInbound:
		return "inbound"
	case eventReconnectDue:
		return "reconnect_due"
	default:
		return "unknown"
	}
}

// event carries the epoch of the session it was produced for. The loop drops
// any event whose epoch is not the topic's current one.
type event struct {
	kind    eventKind
	topic   TopicID
	epoch   uint64
	session Session
	message Message
	err     error
}
