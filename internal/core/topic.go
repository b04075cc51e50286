package core

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/utils"
)

// stableSession is how long a session must stay up before its close is
// treated as a fresh failure rather than another one in a row.
const stableSession = 10 * time.Second

// topicConn owns one topic's session lifecycle and message log. All fields are
// touched only by the manager loop.
type topicConn struct {
	m  *Manager
	id TopicID

	status   Status
	messages []Message

	session Session
	ctx     context.Context
	cancel  context.CancelFunc
	outbox  chan []byte
	epoch   uint64

	opened      bool
	closed      bool
	failures    int
	connectedAt time.Time
	retry       *clock.Timer
}

func newTopicConn(m *Manager, id TopicID) *topicConn {
	return &topicConn{m: m, id: id}
}

// open dials a new session unless one is live or in flight.
func (c *topicConn) open() {
	if c.closed || c.status != StatusDisconnected {
		return
	}
	c.stopRetry()
	c.opened = true
	c.epoch++
	c.status = StatusConnecting

	ctx, cancel := context.WithCancel(c.m.ctx)
	c.ctx, c.cancel = ctx, cancel

	topic, epoch, dialer := c.id, c.epoch, c.m.dialer
	c.m.log.Debug().Str("topic", string(topic)).Uint64("epoch", epoch).Msg("dialing topic")
	c.m.spawn(func() {
		sess, err := dialer.Dial(ctx, string(topic))
		if err != nil {
			c.m.emit(&event{kind: eventClosed, topic: topic, epoch: epoch, err: err})
			return
		}
		if !c.m.emit(&event{kind: eventOpened, topic: topic, epoch: epoch, session: sess}) {
			_ = sess.Close()
		}
	})
	c.m.notify()
}

// send queues an outbound envelope on the live session.
func (c *topicConn) send(text, author string) error {
	if c.status != StatusConnected || c.outbox == nil {
		return errNotConnected
	}
	data, err := proto.EncodeChat(text, author)
	if err != nil {
		return err
	}
	select {
	case c.outbox <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

func (c *topicConn) handleOpened(ev *event) {
	if ev.epoch != c.epoch || c.closed || c.status != StatusConnecting {
		c.m.log.Debug().Str("topic", string(c.id)).Uint64("epoch", ev.epoch).Msg("discarding stale session")
		sess := ev.session
		c.m.spawn(func() { _ = sess.Close() })
		return
	}

	c.session = ev.session
	c.status = StatusConnected
	c.connectedAt = c.m.clock.Now()
	c.outbox = make(chan []byte, c.m.sendQueue)

	// the dial context doubles as the session context
	ctx, sess, outbox := c.ctx, c.session, c.outbox
	c.m.spawn(func() { c.m.readLoop(ctx, c.id, ev.epoch, sess) })
	c.m.spawn(func() { c.m.writeLoop(ctx, c.id, ev.epoch, sess, outbox) })

	c.m.log.Info().Str("topic", string(c.id)).Uint64("epoch", ev.epoch).Msg("topic connected")
	c.m.notify()
}

func (c *topicConn) handleInbound(ev *event) {
	if ev.epoch != c.epoch || c.status != StatusConnected {
		c.m.log.Debug().Str("topic", string(c.id)).Uint64("epoch", ev.epoch).Msg("discarding message from stale session")
		return
	}
	c.messages = append(c.messages, ev.message)
	c.failures = 0
	c.m.notify()
}

// handleClosed moves the topic to Disconnected and schedules exactly one
// reconnect attempt for the closed epoch.
func (c *topicConn) handleClosed(ev *event) {
	if ev.epoch != c.epoch || c.status == StatusDisconnected {
		return
	}

	logEv := c.m.log.Warn()
	if ev.err == nil || errors.Is(ev.err, context.Canceled) {
		logEv = c.m.log.Info()
	}
	logEv.Err(ev.err).Str("topic", string(c.id)).Uint64("epoch", ev.epoch).Str("was", c.status.String()).Msg("topic session closed")

	if c.status == StatusConnected && c.m.clock.Since(c.connectedAt) >= stableSession {
		c.failures = 0
	}
	c.release()
	c.status = StatusDisconnected
	c.m.notify()

	if c.closed || !c.opened {
		return
	}
	c.failures++
	delay := c.m.backoff.DelayAfter(c.failures)
	topic, epoch := c.id, c.epoch
	c.retry = c.m.clock.AfterFunc(delay, func() {
		c.m.emit(&event{kind: eventReconnectDue, topic: topic, epoch: epoch})
	})
	c.m.log.Debug().Str("topic", string(c.id)).Int("attempt", c.failures).Dur("delay", delay).Msg("reconnect scheduled")
}

func (c *topicConn) handleReconnectDue(ev *event) {
	if ev.epoch != c.epoch || c.closed || c.status != StatusDisconnected {
		return
	}
	c.retry = nil
	c.open()
}

// teardown closes the topic for good. Safe to call more than once.
func (c *topicConn) teardown() {
	if c.closed {
		return
	}
	c.closed = true
	c.stopRetry()
	c.release()
	c.epoch++
	c.status = StatusDisconnected
}

// release drops the session handle and closes it in the background.
func (c *topicConn) release() {
	sess, cancel := c.session, c.cancel
	c.session, c.ctx, c.cancel, c.outbox = nil, nil, nil, nil
	if sess == nil && cancel == nil {
		return
	}
	c.m.spawn(func() {
		if sess != nil {
			_ = sess.Close()
		}
		if cancel != nil {
			cancel()
		}
	})
}

func (c *topicConn) stopRetry() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *topicConn) summary() TopicSummary {
	return TopicSummary{ID: c.id, Status: c.status, Messages: len(c.messages)}
}

// readLoop runs on its own goroutine; it must not touch topicConn state.
func (m *Manager) readLoop(ctx context.Context, topic TopicID, epoch uint64, sess Session) {
	for {
		data, err := sess.Read(ctx)
		if err != nil {
			m.emit(&event{kind: eventClosed, topic: topic, epoch: epoch, err: err})
			return
		}

		in, err := proto.DecodeInbound(data)
		if err != nil {
			m.log.Warn().Err(err).Str("topic", string(topic)).Msg("dropping malformed payload")
			continue
		}

		msg := Message{
			ID:         utils.NewMessageID(),
			Author:     in.User,
			RawText:    in.Message,
			Segments:   m.parser.Parse(ctx, in.Message),
			OriginSelf: in.User == m.localUser,
		}
		m.emit(&event{kind: eventInbound, topic: topic, epoch: epoch, message: msg})
	}
}

// writeLoop drains the session outbox. A failed write ends the session.
func (m *Manager) writeLoop(ctx context.Context, topic TopicID, epoch uint64, sess Session, outbox <-chan []byte) {
	for {
		select {
		case data := <-outbox:
			if err := sess.Write(ctx, data); err != nil {
				m.log.Warn().Err(err).Str("topic", string(topic)).Msg("write failed")
				m.emit(&event{kind: eventClosed, topic: topic, epoch: epoch, err: err})
				_ = sess.Close()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
