package core

import (
	"context"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/backoff"
)

const defaultSendQueue = 16

// Options configures a Manager.
type Options struct {
	Dialer    Dialer
	Parser    Parser
	LocalUser string

	// Backoff defaults to backoff.Default.
	Backoff backoff.Policy
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// SendQueue bounds outbound envelopes waiting per session.
	SendQueue int
	Logger    *zerolog.Logger
}

// Manager owns every topic's state. A single goroutine started by Run
// serializes all mutations; the public methods post commands to it.
type Manager struct {
	dialer    Dialer
	parser    Parser
	localUser string
	backoff   backoff.Policy
	clock     clock.Clock
	sendQueue int
	log       *zerolog.Logger

	commands chan *Command
	events   chan *event
	updates  chan struct{}
	done     chan struct{}

	ctx context.Context
	wg  sync.WaitGroup

	registry *registry
	closed   bool
}

// NewManager creates a manager. Call Run before using it.
func NewManager(opts Options) *Manager {
	if opts.Backoff.Initial <= 0 {
		opts.Backoff = backoff.Default
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = defaultSendQueue
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &Manager{
		dialer:    opts.Dialer,
		parser:    opts.Parser,
		localUser: opts.LocalUser,
		backoff:   opts.Backoff,
		clock:     opts.Clock,
		sendQueue: opts.SendQueue,
		log:       opts.Logger,
		commands:  make(chan *Command),
		events:    make(chan *event, 64),
		updates:   make(chan struct{}, 1),
		done:      make(chan struct{}),
		registry:  newRegistry(),
	}
}

// Run processes commands and session events until ctx is cancelled. Every
// topic is torn down before Run returns.
func (m *Manager) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.ctx = runCtx

	for {
		select {
		case <-runCtx.Done():
			m.teardownAll()
			close(m.done)
			cancel()
			m.wg.Wait()
			m.drainEvents()
			return
		case cmd := <-m.commands:
			m.handleCommand(cmd)
		case ev := <-m.events:
			m.handleEvent(ev)
		}
	}
}

// Updates signals after any state change the renderer may care about.
// Signals are coalesced; read View to get the current state.
func (m *Manager) Updates() <-chan struct{} {
	return m.updates
}

// LocalUser returns the identity used for OriginSelf.
func (m *Manager) LocalUser() string {
	return m.localUser
}

// SelectTopic makes id the visible topic, opening it on first use.
func (m *Manager) SelectTopic(ctx context.Context, id TopicID) error {
	if strings.TrimSpace(string(id)) == "" {
		return errInvalidTopic
	}
	res, err := m.call(ctx, &Command{Kind: CommandSelectTopic, Topic: id})
	if err != nil {
		return err
	}
	return res.err
}

// SendToSelected sends text as author on the selected topic. Nothing is
// appended locally; the message shows up once the server echoes it.
func (m *Manager) SendToSelected(ctx context.Context, text, author string) error {
	if strings.TrimSpace(text) == "" {
		return errEmptyMessage
	}
	res, err := m.call(ctx, &Command{Kind: CommandSendToSelected, Text: text, Author: author})
	if err != nil {
		return err
	}
	return res.err
}

// Reconcile merges a directory listing: unknown topics are created and opened,
// topics missing from ids are kept.
func (m *Manager) Reconcile(ctx context.Context, ids []TopicID) error {
	res, err := m.call(ctx, &Command{Kind: CommandReconcile, Topics: ids})
	if err != nil {
		return err
	}
	return res.err
}

// View snapshots the selected topic and the topic list.
func (m *Manager) View(ctx context.Context) (View, error) {
	res, err := m.call(ctx, &Command{Kind: CommandView})
	if err != nil {
		return View{}, err
	}
	return res.view, res.err
}

// Status reports the connection status of a known topic.
func (m *Manager) Status(ctx context.Context, id TopicID) (Status, error) {
	res, err := m.call(ctx, &Command{Kind: CommandStatus, Topic: id})
	if err != nil {
		return StatusDisconnected, err
	}
	return res.view.Status, res.err
}

// TeardownAll closes every topic and stops reconnecting. Later calls
// return ErrClosed; calling TeardownAll again is a no-op.
func (m *Manager) TeardownAll(ctx context.Context) error {
	_, err := m.call(ctx, &Command{Kind: CommandTeardown})
	if err != nil && ErrorCode(err) == ErrCodeClosed {
		return nil
	}
	return err
}

func (m *Manager) call(ctx context.Context, cmd *Command) (result, error) {
	cmd.reply = make(chan result, 1)
	select {
	case m.commands <- cmd:
	case <-m.done:
		return result{}, errClosed
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res, nil
	case <-m.done:
		return result{}, errClosed
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

func (m *Manager) handleCommand(cmd *Command) {
	var res result
	if m.closed && cmd.Kind != CommandView {
		res.err = errClosed
		cmd.reply <- res
		return
	}

	switch cmd.Kind {
	case CommandSelectTopic:
		c, _ := m.registry.ensure(m, cmd.Topic)
		if !c.opened {
			c.open()
		}
		m.registry.selected = cmd.Topic
		m.registry.hasSelected = true
		m.notify()
	case CommandSendToSelected:
		c, ok := m.registry.selectedConn()
		if !ok {
			res.err = errNoTopicSelected
			break
		}
		res.err = c.send(cmd.Text, cmd.Author)
	case CommandReconcile:
		m.reconcile(cmd.Topics)
	case CommandView:
		res.view = m.view()
	case CommandStatus:
		c, ok := m.registry.get(cmd.Topic)
		if !ok {
			res.err = coreError(ErrCodeUnknownTopic, ErrUnknownTopic, "unknown topic "+string(cmd.Topic))
			break
		}
		res.view.Status = c.status
	case CommandTeardown:
		m.teardownAll()
	default:
		m.log.Warn().Int("kind", int(cmd.Kind)).Msg("unknown command")
	}
	cmd.reply <- res
}

func (m *Manager) handleEvent(ev *event) {
	c, ok := m.registry.get(ev.topic)
	if !ok {
		m.log.Debug().Str("topic", string(ev.topic)).Str("kind", ev.kind.String()).Msg("event for unknown topic")
		return
	}
	switch ev.kind {
	case eventOpened:
		c.handleOpened(ev)
	case eventClosed:
		c.handleClosed(ev)
	case eventInbound:
		c.handleInbound(ev)
	case eventReconnectDue:
		c.handleReconnectDue(ev)
	}
}

func (m *Manager) reconcile(ids []TopicID) {
	listed := make([]TopicID, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(string(id)) == "" {
			continue
		}
		c, created := m.registry.ensure(m, id)
		if created {
			m.log.Info().Str("topic", string(id)).Msg("discovered topic")
		}
		if !c.opened {
			c.open()
		}
		listed = append(listed, id)
	}
	m.registry.reorder(listed)
	m.notify()
}

func (m *Manager) view() View {
	v := View{Topics: m.registry.summaries()}
	c, ok := m.registry.selectedConn()
	if !ok {
		return v
	}
	v.Selected = c.id
	v.HasSelection = true
	v.Status = c.status
	// capacity is pinned so callers cannot append into the live log
	v.Messages = c.messages[:len(c.messages):len(c.messages)]
	return v
}

func (m *Manager) teardownAll() {
	if m.closed {
		return
	}
	m.closed = true
	for _, c := range m.registry.all() {
		c.teardown()
	}
	m.log.Info().Int("topics", len(m.registry.order)).Msg("all topics torn down")
	m.notify()
}

// notify wakes the renderer without blocking the loop.
func (m *Manager) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

// emit posts an event from a session goroutine or timer. It reports false
// once the loop has stopped.
func (m *Manager) emit(ev *event) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

// drainEvents closes sessions that were opened but never handed to a topic.
func (m *Manager) drainEvents() {
	for {
		select {
		case ev := <-m.events:
			if ev.kind == eventOpened && ev.session != nil {
				_ = ev.session.Close()
			}
		default:
			return
		}
	}
}

func (m *Manager) spawn(fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}
