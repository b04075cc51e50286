package fakeserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/wirechat-client/internal/proto"
)

var errDropped = errors.New("session dropped")

// peer is one connected chat session.
type peer struct {
	send chan []byte
	drop chan struct{}
	once sync.Once
}

func newPeer() *peer {
	return &peer{
		send: make(chan []byte, 32),
		drop: make(chan struct{}),
	}
}

func (p *peer) kick() {
	p.once.Do(func() { close(p.drop) })
}

// room groups sessions subscribed to the same topic.
type room struct {
	name string

	mu    sync.Mutex
	peers map[*peer]struct{}
}

func newRoom(name string) *room {
	return &room{name: name, peers: make(map[*peer]struct{})}
}

func (r *room) add(p *peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p] = struct{}{}
}

func (r *room) remove(p *peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, p)
}

func (r *room) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// broadcast sends payload to all peers in the room.
func (r *room) broadcast(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p := range r.peers {
		select {
		case p.send <- payload:
		default:
			// Drop if slow consumer.
		}
	}
}

func (r *room) dropAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p := range r.peers {
		p.kick()
	}
}

// GET /ws/chat/{topic}?token=...
func (s *Server) handleChat(c *gin.Context) {
	topic := c.Param("topic")
	if status, reason := s.admit(topic); status != http.StatusOK {
		c.JSON(status, ErrorResponse{Error: reason})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	s.log.Debug().Str("topic", topic).Str("user", c.GetString(contextKeyUsername)).Msg("session opened")

	p := newPeer()
	r := s.room(topic, true)
	r.add(p)
	defer r.remove(p)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.readLoop(ctx, conn, r)
	}()
	go func() {
		errCh <- s.writeLoop(ctx, conn, p)
	}()

	err = <-errCh
	if errors.Is(err, errDropped) {
		_ = conn.Close(websocket.StatusGoingAway, "dropped")
	}
	cancel()
	<-errCh
}

func (s *Server) admit(topic string) (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return http.StatusServiceUnavailable, "try again"
	}
	if !s.accept {
		return http.StatusServiceUnavailable, "not accepting sessions"
	}
	if !s.hasTopic(topic) {
		return http.StatusNotFound, "topic not found"
	}
	return http.StatusOK, ""
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, r *room) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var out proto.Outbound
		if err := json.Unmarshal(data, &out); err != nil || out.Type != proto.OutboundTypeChat {
			s.log.Warn().Str("topic", r.name).Msg("ignoring unsupported payload")
			continue
		}

		s.mu.Lock()
		s.received[r.name] = append(s.received[r.name], out)
		s.mu.Unlock()

		r.broadcast(mustJSON(proto.Inbound{User: out.User, Message: out.Message}))
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, p *peer) error {
	for {
		select {
		case payload := <-p.send:
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
		case <-p.drop:
			return errDropped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
