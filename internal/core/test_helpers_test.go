package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/emote"
	"github.com/vovakirdan/wirechat-client/internal/markup"
)

var (
	errDialRefused   = errors.New("dial refused")
	errSessionClosed = errors.New("session closed")
	errWriteBroken   = errors.New("write broken")
)

type fakeSession struct {
	topic string
	in    chan []byte

	mu         sync.Mutex
	written    [][]byte
	failWrites bool

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSession(topic string) *fakeSession {
	return &fakeSession{
		topic:  topic,
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeSession) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.in:
		return data, nil
	case <-s.closed:
		return nil, errSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSession) Write(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errWriteBroken
	}
	select {
	case <-s.closed:
		return errSessionClosed
	default:
	}
	s.written = append(s.written, append([]byte(nil), data...))
	return nil
}

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSession) deliver(payload string) {
	s.in <- []byte(payload)
}

func (s *fakeSession) breakWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = true
}

func (s *fakeSession) writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.written))
	for _, w := range s.written {
		out = append(out, string(w))
	}
	return out
}

// fakeDialer hands out fakeSessions and records every dial.
type fakeDialer struct {
	mu       sync.Mutex
	sessions map[string][]*fakeSession
	failNext int
	gate     chan struct{}
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{sessions: make(map[string][]*fakeSession)}
}

func (d *fakeDialer) Dial(ctx context.Context, topic string) (Session, error) {
	d.mu.Lock()
	if d.failNext > 0 {
		d.failNext--
		d.mu.Unlock()
		return nil, errDialRefused
	}
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s := newFakeSession(topic)
	d.mu.Lock()
	d.sessions[topic] = append(d.sessions[topic], s)
	d.mu.Unlock()
	return s, nil
}

// hold makes dials wait until the returned func is called.
func (d *fakeDialer) hold() func() {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		d.gate = nil
		d.mu.Unlock()
		close(gate)
	}
}

func (d *fakeDialer) refuse(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
}

func (d *fakeDialer) count(topic string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions[topic])
}

func (d *fakeDialer) latest(topic string) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.sessions[topic]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (d *fakeDialer) live(topic string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sessions[topic] {
		if !s.isClosed() {
			n++
		}
	}
	return n
}

// tableResolver resolves names found in its table.
type tableResolver map[string]string

func (r tableResolver) Resolve(_ context.Context, name string) (emote.Ref, error) {
	loc, ok := r[name]
	if !ok {
		return emote.Ref{}, emote.ErrNotFound
	}
	return emote.Ref{Name: name, Location: loc}, nil
}

// gateParser blocks every Parse call whose text contains hold until release is closed.
type gateParser struct {
	inner   Parser
	hold    string
	entered chan struct{}
	release chan struct{}
}

func (p *gateParser) Parse(ctx context.Context, raw string) []markup.Segment {
	if strings.Contains(raw, p.hold) {
		p.entered <- struct{}{}
		<-p.release
	}
	return p.inner.Parse(ctx, raw)
}

func newTestManager(t *testing.T, d Dialer, opts Options) *Manager {
	t.Helper()
	opts.Dialer = d
	if opts.Parser == nil {
		opts.Parser = markup.NewParser(tableResolver{})
	}
	return NewManager(opts)
}

func startManager(t *testing.T, m *Manager) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("manager did not stop")
		}
	})
	return ctx
}

func mustEventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", what)
}

func mustView(t *testing.T, ctx context.Context, m *Manager) View {
	t.Helper()
	v, err := m.View(ctx)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	return v
}

func statusOf(t *testing.T, ctx context.Context, m *Manager, id TopicID) Status {
	t.Helper()
	st, err := m.Status(ctx, id)
	if err != nil {
		t.Fatalf("status %s: %v", id, err)
	}
	return st
}
