package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
)

type stubAccountClient struct {
	resp proto.LoginResponse
	err  error
}

func (s stubAccountClient) Login(context.Context, string, string) (proto.LoginResponse, error) {
	return s.resp, s.err
}

func (s stubAccountClient) Signup(context.Context, string, string) (proto.SignupResponse, error) {
	return s.resp, s.err
}

func newTestAuthService(t *testing.T, client AccountClient) (*Service, store.Store) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return NewService(client, st, "http://localhost:8000"), st
}

func TestLoginSavesIdentity(t *testing.T) {
	svc, st := newTestAuthService(t, stubAccountClient{resp: proto.LoginResponse{Verified: true, Token: "abc"}})
	ctx := context.Background()

	identity, err := svc.Login(ctx, "  alice ", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if identity.Username != "alice" {
		t.Fatalf("username should be trimmed, got %q", identity.Username)
	}

	saved, err := st.LoadIdentity(ctx, "http://localhost:8000")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.Username != "alice" || saved.Token != "abc" {
		t.Fatalf("unexpected saved identity: %+v", saved)
	}
}

func TestLoginRejected(t *testing.T) {
	svc, st := newTestAuthService(t, stubAccountClient{resp: proto.LoginResponse{Verified: false, Message: "wrong password"}})
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice", "nope")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := st.LoadIdentity(ctx, "http://localhost:8000"); !errors.Is(err, store.ErrNoIdentity) {
		t.Fatalf("rejected login must not save identity, got %v", err)
	}
}

func TestLoginInvalidUsername(t *testing.T) {
	svc, _ := newTestAuthService(t, stubAccountClient{})
	if _, err := svc.Login(context.Background(), "   ", "pw"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
}

func TestCurrentReportsExpiredToken(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("s"), TTL: time.Hour}
	token, err := GenerateToken(cfg, "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	svc, _ := newTestAuthService(t, stubAccountClient{resp: proto.LoginResponse{Verified: true, Token: token}})
	ctx := context.Background()
	if _, err := svc.Login(ctx, "alice", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := svc.Current(ctx); err != nil {
		t.Fatalf("fresh token should be valid: %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	identity, err := svc.Current(ctx)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if identity == nil || identity.Username != "alice" {
		t.Fatalf("identity should still be returned: %+v", identity)
	}
}

func TestLogout(t *testing.T) {
	svc, _ := newTestAuthService(t, stubAccountClient{resp: proto.LoginResponse{Verified: true}})
	ctx := context.Background()
	_, _ = svc.Login(ctx, "alice", "pw")

	if err := svc.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Current(ctx); !errors.Is(err, store.ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}

func TestSignupSavesUsername(t *testing.T) {
	svc, st := newTestAuthService(t, stubAccountClient{resp: proto.SignupResponse{Verified: true}})
	ctx := context.Background()

	identity, err := svc.Signup(ctx, " carol ", "longenough")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if identity.Username != "carol" || identity.Token != "" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	saved, err := st.LoadIdentity(ctx, "http://localhost:8000")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.Username != "carol" {
		t.Fatalf("unexpected saved identity: %+v", saved)
	}
}

func TestSignupRejections(t *testing.T) {
	tests := []struct {
		name     string
		client   stubAccountClient
		username string
		password string
		want     error
	}{
		{"blank username", stubAccountClient{}, " ", "longenough", ErrInvalidUsername},
		{"short password", stubAccountClient{}, "carol", "abc", ErrWeakPassword},
		{"server refuses", stubAccountClient{resp: proto.SignupResponse{Message: "username taken"}}, "carol", "longenough", ErrSignupRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newTestAuthService(t, tt.client)
			ctx := context.Background()

			if _, err := svc.Signup(ctx, tt.username, tt.password); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if _, err := st.LoadIdentity(ctx, "http://localhost:8000"); !errors.Is(err, store.ErrNoIdentity) {
				t.Fatalf("failed signup must not save identity, got %v", err)
			}
		})
	}
}
