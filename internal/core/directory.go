package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// Directory is the server-side topic list.
type Directory interface {
	ListTopics(ctx context.Context) ([]string, error)
	CreateTopic(ctx context.Context, name string) error
}

// Syncer keeps the manager's topic set in line with the directory.
type Syncer struct {
	dir      Directory
	manager  *Manager
	clock    clock.Clock
	interval time.Duration
	log      *zerolog.Logger
}

// NewSyncer creates a syncer. An interval of zero disables periodic refresh.
func NewSyncer(dir Directory, m *Manager, clk clock.Clock, interval time.Duration, logger *zerolog.Logger) *Syncer {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Syncer{dir: dir, manager: m, clock: clk, interval: interval, log: logger}
}

// Refresh fetches the topic list and reconciles it into the manager.
// Returned ids are in server order with blanks and duplicates removed.
func (s *Syncer) Refresh(ctx context.Context) ([]TopicID, error) {
	names, err := s.dir.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh topics: %w", err)
	}

	seen := make(map[string]struct{}, len(names))
	ids := make([]TopicID, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		ids = append(ids, TopicID(name))
	}

	if err := s.manager.Reconcile(ctx, ids); err != nil {
		return nil, err
	}
	s.log.Debug().Int("topics", len(ids)).Msg("topics refreshed")
	return ids, nil
}

// CreateTopic creates name on the server, then refreshes.
func (s *Syncer) CreateTopic(ctx context.Context, name string) ([]TopicID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalidTopic
	}
	if err := s.dir.CreateTopic(ctx, name); err != nil {
		return nil, err
	}
	return s.Refresh(ctx)
}

// Run refreshes on every tick until ctx is done. Failures are logged and
// retried on the next tick.
func (s *Syncer) Run(ctx context.Context) {
	if s.interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("periodic topic refresh failed")
			}
		}
	}
}
