package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/backoff"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/emote"
	"github.com/vovakirdan/wirechat-client/internal/markup"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-client/internal/transport/http"
	"github.com/vovakirdan/wirechat-client/internal/transport/ws"
)

// ErrNoUsername is returned when neither configuration nor the identity store
// names the local user.
var ErrNoUsername = errors.New("no username: run login or pass --username")

// App wires together storage, transport and core layers.
type App struct {
	cfg      config.Config
	log      *zerolog.Logger
	store    store.Store
	api      *transporthttp.Client
	auth     *auth.Service
	resolver *emote.Resolver
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.IdentityPath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Debug().Str("identity_path", cfg.IdentityPath).Msg("identity store opened")

	api := transporthttp.NewClient(cfg.ServerURL, cfg.HTTPTimeout, logger)

	return &App{
		cfg:      cfg,
		log:      logger,
		store:    st,
		api:      api,
		auth:     auth.NewService(api, st, api.BaseURL()),
		resolver: emote.NewResolver(api, logger).WithProbeTimeout(cfg.HTTPTimeout),
	}, nil
}

// API returns the REST client.
func (a *App) API() *transporthttp.Client { return a.api }

// Auth returns the login service.
func (a *App) Auth() *auth.Service { return a.auth }

// Resolver returns the shared emote resolver.
func (a *App) Resolver() *emote.Resolver { return a.resolver }

// Identity is who the local user is for this run.
type Identity struct {
	Username  string
	Token     string
	LastTopic string
}

// Identity resolves the local user. Explicit configuration wins over the
// saved identity; an expired saved credential is reported as auth.ErrTokenExpired.
func (a *App) Identity(ctx context.Context) (Identity, error) {
	saved, err := a.auth.Current(ctx)
	switch {
	case errors.Is(err, store.ErrNoIdentity):
		saved = nil
	case errors.Is(err, auth.ErrTokenExpired):
		if a.cfg.Username == "" {
			return Identity{}, fmt.Errorf("saved login for %s: %w", saved.Username, err)
		}
		saved = nil
	case err != nil:
		return Identity{}, err
	}

	id := Identity{Username: a.cfg.Username, Token: a.cfg.Token}
	if saved != nil {
		if id.Username == "" || id.Username == saved.Username {
			id.Username = saved.Username
			id.LastTopic = saved.LastTopic
			if saved.Token != "" {
				id.Token = saved.Token
			}
		}
	}
	if id.Username == "" {
		return Identity{}, ErrNoUsername
	}
	return id, nil
}

// Chat is a running set of topic connections.
type Chat struct {
	Manager  *core.Manager
	Syncer   *core.Syncer
	Identity Identity

	app    *App
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// StartChat connects to every listed topic and reselects the topic used last.
// The chat runs until ctx is cancelled or Close is called.
func (a *App) StartChat(ctx context.Context) (*Chat, error) {
	identity, err := a.Identity(ctx)
	if err != nil {
		return nil, err
	}

	policy := backoff.Policy{
		Initial: a.cfg.Reconnect.InitialDelay,
		Max:     a.cfg.Reconnect.MaxDelay,
		Factor:  a.cfg.Reconnect.Factor,
	}
	dialer := ws.NewDialer(a.cfg.StreamURL(), identity.Token, a.cfg.MaxMessageBytes, a.log)
	manager := core.NewManager(core.Options{
		Dialer:    sessionDialer(dialer),
		Parser:    markup.NewParser(a.resolver),
		LocalUser: identity.Username,
		Backoff:   policy,
		SendQueue: a.cfg.SendQueue,
		Logger:    a.log,
	})
	syncer := core.NewSyncer(a.api, manager, nil, a.cfg.SyncInterval, a.log)

	runCtx, cancel := context.WithCancel(ctx)
	c := &Chat{
		Manager:  manager,
		Syncer:   syncer,
		Identity: identity,
		app:      a,
		cancel:   cancel,
	}
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		manager.Run(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		syncer.Run(runCtx)
	}()

	a.log.Info().
		Str("server", a.api.BaseURL()).
		Str("username", identity.Username).
		Str("backoff", policy.String()).
		Msg("chat starting")

	ids, err := syncer.Refresh(runCtx)
	if err != nil {
		// the directory may come back later; periodic sync retries
		a.log.Warn().Err(err).Msg("initial topic refresh failed")
	}
	if identity.LastTopic != "" && containsTopic(ids, core.TopicID(identity.LastTopic)) {
		if err := manager.SelectTopic(runCtx, core.TopicID(identity.LastTopic)); err != nil {
			a.log.Warn().Err(err).Str("topic", identity.LastTopic).Msg("failed to reselect last topic")
		}
	}
	return c, nil
}

// Select makes id the visible topic and remembers it for the next run.
func (c *Chat) Select(ctx context.Context, id core.TopicID) error {
	if err := c.Manager.SelectTopic(ctx, id); err != nil {
		return err
	}
	if err := c.app.store.SetLastTopic(ctx, c.app.api.BaseURL(), string(id)); err != nil {
		c.app.log.Warn().Err(err).Str("topic", string(id)).Msg("failed to remember topic")
	}
	return nil
}

// Send sends text on the selected topic as the local user.
func (c *Chat) Send(ctx context.Context, text string) error {
	return c.Manager.SendToSelected(ctx, text, c.Identity.Username)
}

// View snapshots what the terminal UI draws.
func (c *Chat) View(ctx context.Context) (core.View, error) {
	return c.Manager.View(ctx)
}

// Updates signals state changes.
func (c *Chat) Updates() <-chan struct{} {
	return c.Manager.Updates()
}

// Refresh re-reads the topic directory.
func (c *Chat) Refresh(ctx context.Context) ([]core.TopicID, error) {
	return c.Syncer.Refresh(ctx)
}

// CreateTopic creates a topic on the server and starts following it.
func (c *Chat) CreateTopic(ctx context.Context, name string) ([]core.TopicID, error) {
	return c.Syncer.CreateTopic(ctx, name)
}

// Close tears every topic down and waits for background work to stop.
func (c *Chat) Close(ctx context.Context) error {
	err := c.Manager.TeardownAll(ctx)
	c.cancel()
	c.wg.Wait()
	return err
}

// Close releases the identity store.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
		return err
	}
	a.log.Debug().Msg("store closed")
	return nil
}

func sessionDialer(d *ws.Dialer) core.Dialer {
	return core.DialerFunc(func(ctx context.Context, topic string) (core.Session, error) {
		s, err := d.Dial(ctx, topic)
		if err != nil {
			// keep the interface nil
			return nil, err
		}
		return s, nil
	})
}

func containsTopic(ids []core.TopicID, id core.TopicID) bool {
	for _, t := range ids {
		if t == id {
			return true
		}
	}
	return false
}
