package fakeserver

import (
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

var (
	namePattern      = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	emoteNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

const maxEmoteBytes = 1 << 20

// contextKeyUsername holds the verified JWT subject, empty for guests.
const contextKeyUsername = "username"

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GET /api/topics
func (s *Server) handleListTopics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Topics())
}

// POST /api/topics/{name}
func (s *Server) handleCreateTopic(c *gin.Context) {
	name := c.Param("name")
	if !namePattern.MatchString(name) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid topic name"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasTopic(name) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "topic already exists"})
		return
	}
	s.topics = append(s.topics, name)
	s.log.Info().Str("topic", name).Msg("topic created")
	c.Status(http.StatusCreated)
}

// GET /api/emotes
func (s *Server) handleListEmotes(c *gin.Context) {
	s.mu.Lock()
	names := s.emoteNames()
	s.mu.Unlock()
	c.JSON(http.StatusOK, names)
}

// GET /api/emotes/{name}
func (s *Server) handleGetEmote(c *gin.Context) {
	s.mu.Lock()
	image, ok := s.emotes[c.Param("name")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "emote not found"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(image), image)
}

// POST /login
func (s *Server) handleLogin(c *gin.Context) {
	var req proto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, proto.LoginResponse{Message: "invalid request body"})
		return
	}

	s.mu.Lock()
	hash, ok := s.users[req.Username]
	s.mu.Unlock()
	if !ok || s.hasher.Compare(hash, req.Password) != nil {
		c.JSON(http.StatusOK, proto.LoginResponse{Message: "invalid username or password"})
		return
	}

	token, err := auth.GenerateToken(s.jwt, req.Username)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to sign token")
		c.JSON(http.StatusInternalServerError, proto.LoginResponse{Message: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, proto.LoginResponse{Verified: true, Token: token})
}

// POST /registerVerification
func (s *Server) handleSignup(c *gin.Context) {
	var req proto.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, proto.SignupResponse{Message: "invalid request body"})
		return
	}
	if !namePattern.MatchString(req.Username) {
		c.JSON(http.StatusOK, proto.SignupResponse{Message: "invalid username"})
		return
	}
	if err := auth.CheckPassword(req.Password); err != nil {
		c.JSON(http.StatusOK, proto.SignupResponse{Message: err.Error()})
		return
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to hash password")
		c.JSON(http.StatusInternalServerError, proto.SignupResponse{Message: "internal server error"})
		return
	}

	s.mu.Lock()
	_, taken := s.users[req.Username]
	if !taken {
		s.users[req.Username] = hash
	}
	s.mu.Unlock()
	if taken {
		c.JSON(http.StatusOK, proto.SignupResponse{Message: "username already taken"})
		return
	}

	s.log.Info().Str("user", req.Username).Msg("user registered")
	c.JSON(http.StatusOK, proto.SignupResponse{Verified: true})
}

// POST /api/emotes (multipart: name, file)
func (s *Server) handleUploadEmote(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	if !emoteNamePattern.MatchString(name) {
		c.String(http.StatusBadRequest, "Emote name must contain only letters, numbers, and underscores")
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.String(http.StatusBadRequest, "Please provide both a file and name")
		return
	}
	f, err := header.Open()
	if err != nil {
		c.String(http.StatusBadRequest, "Unreadable file")
		return
	}
	defer f.Close()

	image, err := io.ReadAll(io.LimitReader(f, maxEmoteBytes+1))
	if err != nil {
		c.String(http.StatusBadRequest, "Unreadable file")
		return
	}
	if len(image) > maxEmoteBytes {
		c.String(http.StatusRequestEntityTooLarge, "Emote image too large")
		return
	}
	if !strings.HasPrefix(http.DetectContentType(image), "image/") {
		c.String(http.StatusBadRequest, "Please upload an image file")
		return
	}

	s.mu.Lock()
	_, exists := s.emotes[name]
	if !exists {
		s.emotes[name] = image
	}
	s.mu.Unlock()
	if exists {
		c.String(http.StatusConflict, "Emote already exists")
		return
	}

	s.log.Info().Str("emote", name).Int("bytes", len(image)).Msg("emote uploaded")
	c.String(http.StatusCreated, "Emote uploaded successfully")
}

// DELETE /api/emotes/{name}
func (s *Server) handleDeleteEmote(c *gin.Context) {
	name := c.Param("name")

	s.mu.Lock()
	_, ok := s.emotes[name]
	delete(s.emotes, name)
	s.mu.Unlock()
	if !ok {
		c.String(http.StatusNotFound, "Emote not found")
		return
	}
	s.log.Info().Str("emote", name).Msg("emote deleted")
	c.String(http.StatusOK, "Emote deleted")
}

// tokenMiddleware checks the ?token= credential of chat upgrades. Opaque
// tokens are accepted as guests; JWTs must verify against the server key.
func tokenMiddleware(jwtCfg *auth.JWTConfig, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			logger.Debug().Msg("missing token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing token"})
			return
		}

		if _, err := auth.InspectToken(token); err != nil {
			c.Set(contextKeyUsername, "")
			c.Next()
			return
		}
		claims, err := auth.ValidateToken(jwtCfg, token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}
		c.Set(contextKeyUsername, claims.Username)
		c.Next()
	}
}

// loggerMiddleware logs HTTP requests.
func loggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
