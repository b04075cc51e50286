package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	stdhttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/emote"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// ErrUnexpectedStatus is returned for non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected status")

const maxBodyBytes = 4 << 20

// Client talks to the topic directory, the emote store and the login endpoint.
type Client struct {
	baseURL    string
	httpClient *stdhttp.Client
	log        *zerolog.Logger
}

// NewClient builds a REST client rooted at baseURL (e.g. http://localhost:8000).
func NewClient(baseURL string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &stdhttp.Client{
			Timeout: timeout,
		},
		log: logger,
	}
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListTopics fetches the authoritative topic list.
// GET /api/topics
func (c *Client) ListTopics(ctx context.Context) ([]string, error) {
	var topics []string
	if err := c.getJSON(ctx, "/api/topics", &topics); err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics, nil
}

// CreateTopic creates a topic on the server.
// POST /api/topics/{name}
func (c *Client) CreateTopic(ctx context.Context, name string) error {
	resp, err := c.do(ctx, stdhttp.MethodPost, "/api/topics/"+url.PathEscape(name), "", nil)
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	defer drain(resp)
	if !ok(resp) {
		return fmt.Errorf("create topic %q: %w: %d", name, ErrUnexpectedStatus, resp.StatusCode)
	}
	c.log.Info().Str("topic", name).Msg("topic created")
	return nil
}

// EmoteURL returns the address of an emote image.
func (c *Client) EmoteURL(name string) string {
	return c.baseURL + "/api/emotes/" + url.PathEscape(name)
}

// ProbeEmote checks that an emote exists and returns its location.
// GET /api/emotes/{name}
func (c *Client) ProbeEmote(ctx context.Context, name string) (string, error) {
	location := c.EmoteURL(name)
	resp, err := c.do(ctx, stdhttp.MethodGet, "/api/emotes/"+url.PathEscape(name), "", nil)
	if err != nil {
		return "", fmt.Errorf("probe emote %q: %w", name, err)
	}
	defer drain(resp)

	switch {
	case ok(resp):
		return location, nil
	case resp.StatusCode == stdhttp.StatusNotFound:
		return "", fmt.Errorf("%w: %s", emote.ErrNotFound, name)
	default:
		return "", fmt.Errorf("probe emote %q: %w: %d", name, ErrUnexpectedStatus, resp.StatusCode)
	}
}

// ListEmotes returns the names of all uploaded emotes.
// GET /api/emotes
func (c *Client) ListEmotes(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, "/api/emotes", &names); err != nil {
		return nil, fmt.Errorf("list emotes: %w", err)
	}
	return names, nil
}

// UploadEmote stores image under name. The form mirrors the web uploader: a
// "name" field and a "file" part.
// POST /api/emotes
func (c *Client) UploadEmote(ctx context.Context, name, filename string, image io.Reader) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("name", name); err != nil {
		return fmt.Errorf("upload emote: %w", err)
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("upload emote: %w", err)
	}
	if _, err := io.Copy(part, io.LimitReader(image, maxBodyBytes)); err != nil {
		return fmt.Errorf("read emote image: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("upload emote: %w", err)
	}

	resp, err := c.do(ctx, stdhttp.MethodPost, "/api/emotes", form.FormDataContentType(), &buf)
	if err != nil {
		return fmt.Errorf("upload emote %q: %w", name, err)
	}
	defer drain(resp)
	if !ok(resp) {
		return fmt.Errorf("upload emote %q: %w: %d %s", name, ErrUnexpectedStatus, resp.StatusCode, readMessage(resp))
	}
	c.log.Info().Str("emote", name).Msg("emote uploaded")
	return nil
}

// DeleteEmote removes an emote from the store.
// DELETE /api/emotes/{name}
func (c *Client) DeleteEmote(ctx context.Context, name string) error {
	resp, err := c.do(ctx, stdhttp.MethodDelete, "/api/emotes/"+url.PathEscape(name), "", nil)
	if err != nil {
		return fmt.Errorf("delete emote %q: %w", name, err)
	}
	defer drain(resp)

	switch {
	case ok(resp):
		c.log.Info().Str("emote", name).Msg("emote deleted")
		return nil
	case resp.StatusCode == stdhttp.StatusNotFound:
		return fmt.Errorf("%w: %s", emote.ErrNotFound, name)
	default:
		return fmt.Errorf("delete emote %q: %w: %d", name, ErrUnexpectedStatus, resp.StatusCode)
	}
}

// Login verifies credentials.
// POST /login
func (c *Client) Login(ctx context.Context, username, password string) (proto.LoginResponse, error) {
	var out proto.LoginResponse
	if err := c.postVerification(ctx, "/login", proto.LoginRequest{Username: username, Password: password}, &out); err != nil {
		return proto.LoginResponse{}, fmt.Errorf("login: %w", err)
	}
	return out, nil
}

// Signup registers a new account. A rejected signup is reported through
// Verified and Message, not as an error.
// POST /registerVerification
func (c *Client) Signup(ctx context.Context, username, password string) (proto.SignupResponse, error) {
	var out proto.SignupResponse
	if err := c.postVerification(ctx, "/registerVerification", proto.SignupRequest{Username: username, Password: password}, &out); err != nil {
		return proto.SignupResponse{}, fmt.Errorf("signup: %w", err)
	}
	return out, nil
}

// postVerification posts a JSON body and decodes the verification reply. The
// reply is decoded even for non-2xx statuses since servers explain rejections
// in it.
func (c *Client) postVerification(ctx context.Context, path string, in any, out *proto.LoginResponse) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	resp, err := c.do(ctx, stdhttp.MethodPost, path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer drain(resp)

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		if !ok(resp) {
			return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		}
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	resp, err := c.do(ctx, stdhttp.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if !ok(resp) {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*stdhttp.Response, error) {
	req, err := stdhttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("http request failed")
		return nil, err
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("http request")
	return resp, nil
}

func ok(resp *stdhttp.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// readMessage returns the first line of a plain-text error body.
func readMessage(resp *stdhttp.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	return msg
}

func drain(resp *stdhttp.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
}
