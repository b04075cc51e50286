package proto

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeChat(t *testing.T) {
	data, err := EncodeChat("hi", "bob")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"type":"chat","message":"hi","user":"bob"}` {
		t.Fatalf("unexpected envelope: %s", data)
	}
}

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Inbound
		wantErr bool
	}{
		{name: "valid", in: `{"user":"alice","message":"I love :heart: you"}`, want: Inbound{User: "alice", Message: "I love :heart: you"}},
		{name: "extra fields tolerated", in: `{"user":"a","message":"m","ts":1}`, want: Inbound{User: "a", Message: "m"}},
		{name: "empty message allowed", in: `{"user":"a","message":""}`, want: Inbound{User: "a"}},
		{name: "not json", in: `hello`, wantErr: true},
		{name: "array", in: `["user"]`, wantErr: true},
		{name: "missing user", in: `{"message":"m"}`, wantErr: true},
		{name: "missing message", in: `{"user":"a"}`, wantErr: true},
		{name: "wrong type", in: `{"user":"a","message":5}`, wantErr: true},
		{name: "null message", in: `{"user":"alice","message":null}`, wantErr: true},
		{name: "null user", in: `{"user":null,"message":"m"}`, wantErr: true},
		{name: "blank user", in: `{"user":"  ","message":"m"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tt.in))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOutboundMatchesInboundShape(t *testing.T) {
	data, _ := json.Marshal(NewChat("echo", "carol"))
	in, err := DecodeInbound(data)
	if err != nil {
		t.Fatalf("server echo of an outbound envelope should decode: %v", err)
	}
	if in.User != "carol" || in.Message != "echo" {
		t.Fatalf("unexpected inbound: %+v", in)
	}
}
