package core

import "errors"

// Error codes for caller-facing errors.
const (
	ErrCodeNotConnected    = "not_connected"
	ErrCodeNoTopicSelected = "no_topic_selected"
	ErrCodeUnknownTopic    = "unknown_topic"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeQueueFull       = "send_queue_full"
	ErrCodeClosed          = "closed"
)

var (
	ErrNotConnected    = errors.New("not connected")
	ErrNoTopicSelected = errors.New("no topic selected")
	ErrUnknownTopic    = errors.New("unknown topic")
	ErrInvalidTopic    = errors.New("invalid topic name")
	ErrEmptyMessage    = errors.New("empty message")
	ErrSendQueueFull   = errors.New("send queue full")
	ErrClosed          = errors.New("connection manager closed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code string, err error, msg string) error {
	return &CoreError{Code: code, Message: msg, Err: err}
}

var (
	errNotConnected    = coreError(ErrCodeNotConnected, ErrNotConnected, "topic is not connected yet, try again in a moment")
	errNoTopicSelected = coreError(ErrCodeNoTopicSelected, ErrNoTopicSelected, "select a topic first")
	errInvalidTopic    = coreError(ErrCodeBadRequest, ErrInvalidTopic, "topic name must not be empty")
	errEmptyMessage    = coreError(ErrCodeBadRequest, ErrEmptyMessage, "message is empty")
	errSendQueueFull   = coreError(ErrCodeQueueFull, ErrSendQueueFull, "too many messages in flight, slow down")
	errClosed          = coreError(ErrCodeClosed, ErrClosed, "client is shutting down")
)

// ErrorCode returns the CoreError code carried by err, or "".
func ErrorCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
