package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	server     TEXT PRIMARY KEY,
	username   TEXT NOT NULL,
	token      TEXT NOT NULL DEFAULT '',
	last_topic TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file, or ":memory:".
func New(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps :memory: databases alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveIdentity inserts or replaces the identity for identity.Server.
// The remembered topic survives a re-login.
func (s *SQLiteStore) SaveIdentity(ctx context.Context, identity *store.Identity) error {
	query := `
		INSERT INTO identities (server, username, token, last_topic, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(server) DO UPDATE SET
			username = excluded.username,
			token = excluded.token,
			last_topic = CASE WHEN excluded.last_topic = '' THEN identities.last_topic ELSE excluded.last_topic END,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, identity.Server, identity.Username, identity.Token, identity.LastTopic, now); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	identity.UpdatedAt = now
	return nil
}

// LoadIdentity retrieves the identity for server.
func (s *SQLiteStore) LoadIdentity(ctx context.Context, server string) (*store.Identity, error) {
	query := `
		SELECT server, username, token, last_topic, updated_at
		FROM identities
		WHERE server = ?
	`
	var identity store.Identity
	err := s.db.QueryRowContext(ctx, query, server).Scan(
		&identity.Server,
		&identity.Username,
		&identity.Token,
		&identity.LastTopic,
		&identity.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	return &identity, nil
}

// ClearIdentity forgets the identity for server.
func (s *SQLiteStore) ClearIdentity(ctx context.Context, server string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE server = ?`, server); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

// SetLastTopic remembers the topic that was selected last. It is a no-op
// when no identity is saved for server.
func (s *SQLiteStore) SetLastTopic(ctx context.Context, server, topic string) error {
	query := `UPDATE identities SET last_topic = ?, updated_at = ? WHERE server = ?`
	if _, err := s.db.ExecContext(ctx, query, topic, time.Now().UTC(), server); err != nil {
		return fmt.Errorf("set last topic: %w", err)
	}
	return nil
}
