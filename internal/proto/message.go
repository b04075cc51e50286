package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// OutboundTypeChat tags chat messages sent by the client.
	OutboundTypeChat = "chat"
)

// ErrMalformed is returned when an inbound payload does not match the envelope schema.
var ErrMalformed = errors.New("malformed envelope")

// Inbound is the envelope for messages coming from the server.
type Inbound struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

// Outbound is the envelope for messages sent to the server.
type Outbound struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	User    string `json:"user"`
}

// NewChat builds an outbound chat envelope.
func NewChat(text, user string) Outbound {
	return Outbound{Type: OutboundTypeChat, Message: text, User: user}
}

// EncodeChat serializes an outbound chat envelope.
func EncodeChat(text, user string) ([]byte, error) {
	data, err := json.Marshal(NewChat(text, user))
	if err != nil {
		return nil, fmt.Errorf("marshal chat: %w", err)
	}
	return data, nil
}

// DecodeInbound validates and decodes a server payload. Both fields must be
// present as strings; the message may be empty only if it is explicitly set.
func DecodeInbound(data []byte) (Inbound, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var in Inbound
	if err := decodeString(raw, "user", &in.User); err != nil {
		return Inbound{}, err
	}
	if err := decodeString(raw, "message", &in.Message); err != nil {
		return Inbound{}, err
	}
	if strings.TrimSpace(in.User) == "" {
		return Inbound{}, fmt.Errorf("%w: empty user", ErrMalformed)
	}
	return in, nil
}

func decodeString(raw map[string]json.RawMessage, key string, dst *string) error {
	field, ok := raw[key]
	if !ok {
		return fmt.Errorf("%w: missing %q", ErrMalformed, key)
	}
	if bytes.Equal(bytes.TrimSpace(field), []byte("null")) {
		return fmt.Errorf("%w: field %q is null", ErrMalformed, key)
	}
	if err := json.Unmarshal(field, dst); err != nil {
		return fmt.Errorf("%w: field %q: %v", ErrMalformed, key, err)
	}
	return nil
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the reply to POST /login.
type LoginResponse struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message,omitempty"`
	Token    string `json:"token,omitempty"`
}

// SignupRequest is the body of POST /registerVerification.
type SignupRequest = LoginRequest

// SignupResponse is the reply to POST /registerVerification. Token is only set
// by servers that log the new user in straight away.
type SignupResponse = LoginResponse
