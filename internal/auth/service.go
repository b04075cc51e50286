package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

var (
	// ErrInvalidCredentials is returned when the server rejects a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrTokenExpired is returned when the saved credential has expired.
	ErrTokenExpired = errors.New("token expired")
	// ErrSignupRejected is returned when the server refuses a new account.
	ErrSignupRejected = errors.New("signup rejected")
)

// AccountClient performs the server side of login and signup.
type AccountClient interface {
	Login(ctx context.Context, username, password string) (proto.LoginResponse, error)
	Signup(ctx context.Context, username, password string) (proto.SignupResponse, error)
}

// Service logs the local user in and remembers who they are.
type Service struct {
	client AccountClient
	store  store.IdentityStore
	server string
	now    func() time.Time
}

// NewService creates a new authentication service for one server.
func NewService(client AccountClient, identities store.IdentityStore, server string) *Service {
	return &Service{
		client: client,
		store:  identities,
		server: server,
		now:    time.Now,
	}
}

// Login verifies credentials with the server and saves the resulting identity.
func (s *Service) Login(ctx context.Context, username, password string) (*store.Identity, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !resp.Verified {
		if resp.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, resp.Message)
		}
		return nil, ErrInvalidCredentials
	}

	return s.remember(ctx, username, resp.Token)
}

// Signup registers a new account and remembers its username. The token is
// saved only when the server hands one out.
func (s *Service) Signup(ctx context.Context, username, password string) (*store.Identity, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if err := CheckPassword(password); err != nil {
		return nil, err
	}

	resp, err := s.client.Signup(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	if !resp.Verified {
		if resp.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrSignupRejected, resp.Message)
		}
		return nil, ErrSignupRejected
	}
	return s.remember(ctx, username, resp.Token)
}

func (s *Service) remember(ctx context.Context, username, token string) (*store.Identity, error) {
	identity := &store.Identity{
		Server:   s.server,
		Username: username,
		Token:    token,
	}
	if err := s.store.SaveIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("save identity: %w", err)
	}
	return identity, nil
}

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > 32 {
		return "", ErrInvalidUsername
	}
	return username, nil
}

// Logout forgets the saved identity.
func (s *Service) Logout(ctx context.Context) error {
	return s.store.ClearIdentity(ctx, s.server)
}

// Current returns the saved identity. A JWT credential past its expiry yields
// the identity together with ErrTokenExpired.
func (s *Service) Current(ctx context.Context) (*store.Identity, error) {
	identity, err := s.store.LoadIdentity(ctx, s.server)
	if err != nil {
		return nil, err
	}
	if identity.Token == "" {
		return identity, nil
	}
	info, err := InspectToken(identity.Token)
	if err != nil {
		// opaque credentials carry no expiry
		return identity, nil
	}
	if info.Expired(s.now()) {
		return identity, ErrTokenExpired
	}
	return identity, nil
}
