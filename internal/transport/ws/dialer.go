// Package ws dials the per-topic chat stream.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// Dialer opens one websocket session per topic.
type Dialer struct {
	baseURL    string
	token      string
	readLimit  int64
	httpClient *http.Client
	log        *zerolog.Logger
}

// NewDialer builds a dialer for ws(s)://host/ws/chat/{topic}?token=... addresses.
func NewDialer(baseURL, token string, readLimit int64, logger *zerolog.Logger) *Dialer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dialer{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		readLimit: readLimit,
		log:       logger,
	}
}

// WithHTTPClient overrides the client used for the upgrade request.
func (d *Dialer) WithHTTPClient(c *http.Client) *Dialer {
	d.httpClient = c
	return d
}

// URL returns the streaming address for topic.
func (d *Dialer) URL(topic string) string {
	u := d.baseURL + "/ws/chat/" + url.PathEscape(topic)
	if d.token != "" {
		u += "?token=" + url.QueryEscape(d.token)
	}
	return u
}

// Dial completes the websocket handshake for topic. The returned session is
// live until Close is called or the peer goes away.
func (d *Dialer) Dial(ctx context.Context, topic string) (*Session, error) {
	addr := d.URL(topic)
	conn, resp, err := websocket.Dial(ctx, addr, &websocket.DialOptions{HTTPClient: d.httpClient})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", topic, err)
	}
	if d.readLimit > 0 {
		conn.SetReadLimit(d.readLimit)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	d.log.Debug().Str("topic", topic).Msg("ws session established")
	return &Session{
		topic:  topic,
		conn:   conn,
		ctx:    sessCtx,
		cancel: cancel,
	}, nil
}

// Session is one live websocket connection.
type Session struct {
	topic  string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// Topic returns the topic this session streams.
func (s *Session) Topic() string {
	return s.topic
}

// Read blocks for the next payload.
func (s *Session) Read(ctx context.Context) ([]byte, error) {
	ctx, cancel := mergeDone(ctx, s.ctx)
	defer cancel()
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write sends one text frame.
func (s *Session) Write(ctx context.Context, data []byte) error {
	ctx, cancel := mergeDone(ctx, s.ctx)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// Close performs the close handshake once; later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		err := s.conn.Close(websocket.StatusNormalClosure, "bye")
		s.cancel()
		if err != nil && !IsNormalClosure(err) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// IsNormalClosure reports whether err is an expected end of a session.
func IsNormalClosure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

func mergeDone(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
