package store

import (
	"context"
	"errors"
	"time"
)

// ErrNoIdentity is returned when no identity has been saved for a server.
var ErrNoIdentity = errors.New("no identity saved")

// Identity is the locally remembered user for one chat server.
type Identity struct {
	Server    string
	Username  string
	Token     string
	LastTopic string
	UpdatedAt time.Time
}

// IdentityStore handles local identity persistence.
type IdentityStore interface {
	// SaveIdentity inserts or replaces the identity for identity.Server.
	SaveIdentity(ctx context.Context, identity *Identity) error

	// LoadIdentity retrieves the identity for server or ErrNoIdentity.
	LoadIdentity(ctx context.Context, server string) (*Identity, error)

	// ClearIdentity forgets the identity for server.
	ClearIdentity(ctx context.Context, server string) error

	// SetLastTopic remembers the topic that was selected last.
	SetLastTopic(ctx context.Context, server, topic string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	IdentityStore

	// Close closes the underlying database connection.
	Close() error
}
