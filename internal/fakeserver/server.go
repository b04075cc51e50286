// Package fakeserver is an in-process stand-in for the chat backend: topic
// directory, emote store, login and the per-topic chat stream. Tests drive it
// directly to inject payloads and drop sessions.
package fakeserver

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// Server holds the fake backend state.
type Server struct {
	log    *zerolog.Logger
	jwt    *auth.JWTConfig
	hasher auth.Hasher
	engine *gin.Engine

	mu       sync.Mutex
	topics   []string
	emotes   map[string][]byte
	users    map[string]string // username -> bcrypt hash
	rooms    map[string]*room
	received map[string][]proto.Outbound
	failNext int
	accept   bool
}

// New builds a fake backend with the given initial topics.
func New(logger *zerolog.Logger, topics ...string) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Server{
		log: logger,
		jwt: &auth.JWTConfig{
			Secret:   []byte("fakeserver-secret"),
			Issuer:   "fakeserver",
			Audience: "wirechat",
			TTL:      time.Hour,
		},
		hasher:   auth.Hasher{Cost: bcrypt.MinCost},
		topics:   append([]string(nil), topics...),
		emotes:   make(map[string][]byte),
		users:    make(map[string]string),
		rooms:    make(map[string]*room),
		received: make(map[string][]proto.Outbound),
		accept:   true,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery(), loggerMiddleware(s.log))

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/login", s.handleLogin)
	r.POST("/registerVerification", s.handleSignup)

	api := r.Group("/api")
	api.GET("/topics", s.handleListTopics)
	api.POST("/topics/:name", s.handleCreateTopic)
	api.GET("/emotes", s.handleListEmotes)
	api.POST("/emotes", s.handleUploadEmote)
	api.GET("/emotes/:name", s.handleGetEmote)
	api.DELETE("/emotes/:name", s.handleDeleteEmote)

	r.GET("/ws/chat/:topic", tokenMiddleware(s.jwt, s.log), s.handleChat)
	return r
}

// AddEmote uploads an emote image.
func (s *Server) AddEmote(name string, image []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emotes[name] = image
}

// Emote returns the stored image for name.
func (s *Server) Emote(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	image, ok := s.emotes[name]
	return image, ok
}

// AddUser registers a user for POST /login.
func (s *Server) AddUser(username, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = hash
	return nil
}

// JWTConfig exposes the signing config so tests can mint tokens.
func (s *Server) JWTConfig() *auth.JWTConfig {
	return s.jwt
}

// Topics returns the current topic list.
func (s *Server) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.topics...)
}

// RemoveTopic drops a topic from the directory without touching open sessions.
func (s *Server) RemoveTopic(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.topics {
		if t == name {
			s.topics = append(s.topics[:i], s.topics[i+1:]...)
			return
		}
	}
}

// SetAccepting toggles whether new chat sessions are accepted.
func (s *Server) SetAccepting(accept bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accept = accept
}

// FailNextDials rejects the next n chat upgrades with 503.
func (s *Server) FailNextDials(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Received returns the chat envelopes clients sent on topic.
func (s *Server) Received(topic string) []proto.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proto.Outbound(nil), s.received[topic]...)
}

// Sessions returns the number of live sessions on topic.
func (s *Server) Sessions(topic string) int {
	s.mu.Lock()
	r := s.rooms[topic]
	s.mu.Unlock()
	if r == nil {
		return 0
	}
	return r.size()
}

// Broadcast sends an inbound envelope to every session on topic.
func (s *Server) Broadcast(topic, user, message string) {
	s.BroadcastRaw(topic, mustJSON(proto.Inbound{User: user, Message: message}))
}

// BroadcastRaw sends an arbitrary payload to every session on topic.
func (s *Server) BroadcastRaw(topic string, payload []byte) {
	if r := s.room(topic, false); r != nil {
		r.broadcast(payload)
	}
}

// DropSessions closes every session on topic from the server side.
func (s *Server) DropSessions(topic string) {
	if r := s.room(topic, false); r != nil {
		r.dropAll()
	}
}

func (s *Server) room(topic string, create bool) *room {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rooms[topic]
	if r == nil && create {
		r = newRoom(topic)
		s.rooms[topic] = r
	}
	return r
}

func (s *Server) hasTopic(name string) bool {
	for _, t := range s.topics {
		if t == name {
			return true
		}
	}
	return false
}

func (s *Server) emoteNames() []string {
	names := make([]string, 0, len(s.emotes))
	for name := range s.emotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
