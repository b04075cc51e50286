package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/wirechat-client/internal/backoff"
	"github.com/vovakirdan/wirechat-client/internal/markup"
)

var testBackoff = backoff.Policy{Initial: time.Second, Max: 4 * time.Second, Factor: 2}

// loopless drives a Manager's handlers from the test goroutine so every
// transition happens at a known point.
type loopless struct {
	t      *testing.T
	m      *Manager
	dialer *fakeDialer
	clock  *clock.Mock
}

func newLoopless(t *testing.T, parser Parser) *loopless {
	t.Helper()
	d := newFakeDialer()
	mock := clock.NewMock()
	m := newTestManager(t, d, Options{
		Parser:    parser,
		LocalUser: "bob",
		Backoff:   testBackoff,
		Clock:     mock,
	})
	ctx, cancel := context.WithCancel(context.Background())
	m.ctx = ctx
	t.Cleanup(func() {
		cancel()
		close(m.done)
		m.wg.Wait()
	})
	return &loopless{t: t, m: m, dialer: d, clock: mock}
}

// step handles the next event posted by a session goroutine or timer.
func (l *loopless) step() *event {
	l.t.Helper()
	select {
	case ev := <-l.m.events:
		l.m.handleEvent(ev)
		return ev
	case <-time.After(3 * time.Second):
		l.t.Fatal("no event")
		return nil
	}
}

func (l *loopless) expect(kind eventKind) *event {
	l.t.Helper()
	ev := l.step()
	if ev.kind != kind {
		l.t.Fatalf("expected %s event, got %s", kind, ev.kind)
	}
	return ev
}

func (l *loopless) openTopic(id TopicID) *topicConn {
	l.t.Helper()
	c, _ := l.m.registry.ensure(l.m, id)
	c.open()
	l.expect(eventOpened)
	if c.status != StatusConnected {
		l.t.Fatalf("expected connected, got %s", c.status)
	}
	return c
}

func TestOpenIsNoopWhileConnectingOrConnected(t *testing.T) {
	l := newLoopless(t, nil)
	release := l.dialer.hold()

	c, _ := l.m.registry.ensure(l.m, "csci104")
	c.open()
	c.open()
	if c.status != StatusConnecting {
		t.Fatalf("expected connecting, got %s", c.status)
	}
	if c.epoch != 1 {
		t.Fatalf("second open must not start a new attempt, epoch=%d", c.epoch)
	}

	release()
	l.expect(eventOpened)
	c.open()
	if c.status != StatusConnected || c.epoch != 1 {
		t.Fatalf("open on connected topic changed state: %s epoch=%d", c.status, c.epoch)
	}
	if n := l.dialer.count("csci104"); n != 1 {
		t.Fatalf("expected one dial, got %d", n)
	}
}

func TestInboundIsAppendOnly(t *testing.T) {
	l := newLoopless(t, nil)
	c := l.openTopic("csci104")
	sess := l.dialer.latest("csci104")

	sess.deliver(`{"user":"alice","message":"one"}`)
	l.expect(eventInbound)
	first := c.messages[0]

	sess.deliver(`not json`)
	sess.deliver(`{"user":"","message":"anonymous"}`)
	sess.deliver(`{"message":"no user"}`)
	sess.deliver(`{"user":"bob","message":"two"}`)
	l.expect(eventInbound)

	if len(c.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(c.messages))
	}
	if c.messages[0].ID != first.ID || c.messages[0].RawText != "one" {
		t.Fatalf("existing entry changed: %+v", c.messages[0])
	}
	if c.messages[1].RawText != "two" || !c.messages[1].OriginSelf {
		t.Fatalf("unexpected second message: %+v", c.messages[1])
	}
	if c.messages[0].OriginSelf {
		t.Fatalf("alice's message must not be marked as own")
	}
	if c.status != StatusConnected {
		t.Fatalf("malformed payloads must not close the topic, status=%s", c.status)
	}
}

func TestSendRequiresConnected(t *testing.T) {
	l := newLoopless(t, nil)
	release := l.dialer.hold()

	c, _ := l.m.registry.ensure(l.m, "csci104")
	if err := c.send("hi", "bob"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected while disconnected, got %v", err)
	}

	c.open()
	if err := c.send("hi", "bob"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected while connecting, got %v", err)
	}
	if len(c.messages) != 0 {
		t.Fatalf("failed send appended to the log")
	}

	release()
	l.expect(eventOpened)
	if err := c.send("hi", "bob"); err != nil {
		t.Fatalf("send: %v", err)
	}
	sess := l.dialer.latest("csci104")
	mustEventually(t, "envelope written", func() bool { return len(sess.writes()) == 1 })
	if got := sess.writes()[0]; got != `{"type":"chat","message":"hi","user":"bob"}` {
		t.Fatalf("unexpected envelope %s", got)
	}
	if len(c.messages) != 0 {
		t.Fatalf("send must not append locally")
	}
}

func TestCloseSchedulesOneReconnect(t *testing.T) {
	l := newLoopless(t, nil)
	c := l.openTopic("csci104")
	first := l.dialer.latest("csci104")

	first.Close()
	l.expect(eventClosed)
	if c.status != StatusDisconnected || c.session != nil {
		t.Fatalf("expected disconnected with no handle, got %s", c.status)
	}
	if c.retry == nil {
		t.Fatal("expected a reconnect timer")
	}

	// a second close report for the same epoch changes nothing
	c.handleClosed(&event{kind: eventClosed, topic: c.id, epoch: c.epoch})
	if c.failures != 1 {
		t.Fatalf("duplicate close counted twice: failures=%d", c.failures)
	}

	l.clock.Add(testBackoff.DelayAfter(1))
	l.expect(eventReconnectDue)
	if c.status != StatusConnecting {
		t.Fatalf("expected connecting after backoff, got %s", c.status)
	}
	l.expect(eventOpened)
	if c.status != StatusConnected {
		t.Fatalf("expected fresh connected session, got %s", c.status)
	}
	if n := l.dialer.count("csci104"); n != 2 {
		t.Fatalf("expected two dials, got %d", n)
	}
}

func TestFlappingSessionKeepsBackingOff(t *testing.T) {
	l := newLoopless(t, nil)
	c := l.openTopic("csci104")

	// the server accepts every handshake and drops it straight away
	for want := 1; want <= 4; want++ {
		l.dialer.latest("csci104").Close()
		l.expect(eventClosed)
		if c.failures != want {
			t.Fatalf("drop %d: expected failures=%d, got %d", want, want, c.failures)
		}
		l.clock.Add(testBackoff.DelayAfter(c.failures))
		l.expect(eventReconnectDue)
		l.expect(eventOpened)
	}
	if got := testBackoff.DelayAfter(c.failures); got != testBackoff.Max {
		t.Fatalf("expected delay capped at %v, got %v", testBackoff.Max, got)
	}
}

func TestHealthySessionResetsBackoff(t *testing.T) {
	t.Run("inbound frame", func(t *testing.T) {
		l := newLoopless(t, nil)
		c := l.openTopic("csci104")
		l.dialer.latest("csci104").Close()
		l.expect(eventClosed)
		l.clock.Add(testBackoff.DelayAfter(1))
		l.expect(eventReconnectDue)
		l.expect(eventOpened)

		l.dialer.latest("csci104").deliver(`{"user":"alice","message":"hi"}`)
		l.expect(eventInbound)
		if c.failures != 0 {
			t.Fatalf("inbound frame should reset failures, got %d", c.failures)
		}
	})

	t.Run("long uptime", func(t *testing.T) {
		l := newLoopless(t, nil)
		c := l.openTopic("csci104")
		l.dialer.latest("csci104").Close()
		l.expect(eventClosed)
		l.clock.Add(testBackoff.DelayAfter(1))
		l.expect(eventReconnectDue)
		l.expect(eventOpened)

		l.clock.Add(stableSession)
		l.dialer.latest("csci104").Close()
		l.expect(eventClosed)
		if c.failures != 1 {
			t.Fatalf("close after a stable session should count as the first failure, got %d", c.failures)
		}
	})
}

func TestFailedDialsBackOff(t *testing.T) {
	l := newLoopless(t, nil)
	l.dialer.refuse(2)

	c, _ := l.m.registry.ensure(l.m, "csci104")
	c.open()
	l.expect(eventClosed)
	if c.failures != 1 {
		t.Fatalf("expected one failure, got %d", c.failures)
	}

	// nothing happens before the delay elapses
	l.clock.Add(testBackoff.DelayAfter(1) - time.Millisecond)
	if c.status != StatusDisconnected {
		t.Fatalf("reconnected early: %s", c.status)
	}
	l.clock.Add(time.Millisecond)
	l.expect(eventReconnectDue)
	l.expect(eventClosed)
	if c.failures != 2 {
		t.Fatalf("expected two failures, got %d", c.failures)
	}

	l.clock.Add(testBackoff.DelayAfter(2))
	l.expect(eventReconnectDue)
	l.expect(eventOpened)
	if c.status != StatusConnected {
		t.Fatalf("expected connected, got %s", c.status)
	}
}

func TestAtMostOneLiveSession(t *testing.T) {
	l := newLoopless(t, nil)
	c := l.openTopic("csci104")

	for i := 0; i < 3; i++ {
		l.dialer.latest("csci104").Close()
		l.expect(eventClosed)
		l.clock.Add(testBackoff.DelayAfter(c.failures))
		l.expect(eventReconnectDue)
		l.expect(eventOpened)
		mustEventually(t, "old sessions closed", func() bool { return l.dialer.live("csci104") == 1 })
	}

	// a handshake that completes for a superseded attempt is closed, not adopted
	stale := newFakeSession("csci104")
	c.handleOpened(&event{kind: eventOpened, topic: c.id, epoch: c.epoch - 1, session: stale})
	if c.session == Session(stale) {
		t.Fatal("stale session adopted")
	}
	mustEventually(t, "stale session closed", stale.isClosed)
}

func TestStaleInboundIsDiscarded(t *testing.T) {
	gp := &gateParser{
		inner:   markup.NewParser(tableResolver{"heart": "/api/emotes/heart"}),
		hold:    ":heart:",
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	l := newLoopless(t, gp)
	c := l.openTopic("csci104")
	old := l.dialer.latest("csci104")

	// the old session's parse is still resolving when the session fails
	old.deliver(`{"user":"alice","message":"late :heart:"}`)
	<-gp.entered
	old.breakWrites()
	if err := c.send("ping", "bob"); err != nil {
		t.Fatalf("send: %v", err)
	}
	l.expect(eventClosed)

	l.clock.Add(testBackoff.DelayAfter(1))
	l.expect(eventReconnectDue)
	l.expect(eventOpened)
	fresh := c.session

	close(gp.release)
	l.expect(eventInbound)
	if len(c.messages) != 0 {
		t.Fatalf("stale message appended: %+v", c.messages)
	}
	if c.session != fresh || c.status != StatusConnected {
		t.Fatalf("stale completion disturbed the new session")
	}

	l.dialer.latest("csci104").deliver(`{"user":"alice","message":"fresh"}`)
	for {
		ev := l.step()
		if ev.kind == eventInbound && ev.epoch == c.epoch {
			break
		}
	}
	if len(c.messages) != 1 || c.messages[0].RawText != "fresh" {
		t.Fatalf("expected only the fresh message, got %+v", c.messages)
	}
}

func TestTeardownStopsReconnecting(t *testing.T) {
	l := newLoopless(t, nil)
	c := l.openTopic("csci104")
	sess := l.dialer.latest("csci104")

	sess.Close()
	l.expect(eventClosed)
	c.teardown()
	c.teardown()

	l.clock.Add(time.Minute)
	select {
	case ev := <-l.m.events:
		l.m.handleEvent(ev)
	case <-time.After(50 * time.Millisecond):
	}
	c.open()
	if c.status != StatusDisconnected {
		t.Fatalf("torn down topic reopened: %s", c.status)
	}
	if n := l.dialer.count("csci104"); n != 1 {
		t.Fatalf("expected no further dials, got %d", n)
	}
}
