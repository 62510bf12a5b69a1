package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"gowa-blast/config"
	"gowa-blast/internal/helper"
	"gowa-blast/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubSend struct {
	To    string
	Text  string
	Media string
}

// stubClient authenticates immediately unless qr is set, in which case it
// stops at the QR stage.
type stubClient struct {
	mu   sync.Mutex
	qr   string
	sent []stubSend
}

func (c *stubClient) Connect(_ context.Context, sink func(service.ClientEvent)) error {
	if c.qr != "" {
		sink(service.ClientEvent{Kind: service.EventQR, Payload: c.qr})
		return nil
	}
	sink(service.ClientEvent{Kind: service.EventAuthenticated})
	sink(service.ClientEvent{Kind: service.EventReady})
	return nil
}

func (c *stubClient) ResolveRecipient(_ context.Context, number string) (string, error) {
	return number + "@s.whatsapp.net", nil
}

func (c *stubClient) SendText(_ context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, stubSend{To: to, Text: text})
	return nil
}

func (c *stubClient) SendMedia(_ context.Context, to string, media *service.Media, caption string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, stubSend{To: to, Text: caption, Media: media.MimeType})
	return nil
}

func (c *stubClient) ConnectionState() service.ConnectionState {
	if c.qr != "" {
		return service.StatePairing
	}
	return service.StateConnected
}

func (c *stubClient) Logout(context.Context) error { return nil }
func (c *stubClient) Destroy() error              { return nil }

func (c *stubClient) sends() []stubSend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]stubSend(nil), c.sent...)
}

// chatClient additionally lists chats and describes its account.
type chatClient struct {
	*stubClient
}

func (c chatClient) ListChats(context.Context) ([]service.Chat, error) {
	return []service.Chat{
		{ID: "120363@g.us", Name: "Staff", IsGroup: true},
		{ID: "21620123456@s.whatsapp.net", Name: "Amel"},
	}, nil
}

func (c chatClient) Account() (service.Account, bool) {
	return service.Account{JID: "21699000111:12@s.whatsapp.net", Phone: "21699000111", PushName: "Shop"}, true
}

type testServer struct {
	e          *echo.Echo
	registry   *service.Registry
	dispatcher *service.Dispatcher
	dirs       helper.SessionDirs

	mu      sync.Mutex
	clients map[string]*stubClient
}

type serverOption func(*testServer, *Routes)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	s := &testServer{
		dirs: helper.SessionDirs{
			AuthDir:  t.TempDir(),
			CacheDir: t.TempDir(),
		},
		clients: make(map[string]*stubClient),
	}

	factory := func(id string) (service.MessagingClient, error) {
		if id == "broken" {
			return nil, errors.New("store unavailable")
		}
		c := &stubClient{}
		if strings.HasPrefix(id, "scan") {
			c.qr = "2@qr-payload"
		}
		s.mu.Lock()
		s.clients[id] = c
		s.mu.Unlock()
		if strings.HasPrefix(id, "chats") {
			return chatClient{c}, nil
		}
		return c, nil
	}

	s.registry = service.NewRegistry(service.RegistryConfig{
		MaxSessions: 4,
		NewClient:   factory,
		Artifacts:   s.dirs,
		Log:         zerolog.Nop(),
	})
	s.dispatcher = service.NewDispatcher(service.DispatcherConfig{
		Registry:    s.registry,
		Log:         zerolog.Nop(),
		CountryCode: "216",
	})
	t.Cleanup(func() {
		s.dispatcher.Close()
		s.registry.Shutdown()
	})

	cfg := &config.Config{MaxSessions: 4, DefaultCountryCode: "216"}
	routes := Routes{
		Sessions:     NewSessionHandler(s.registry),
		Messages:     NewMessageHandler(s.dispatcher, s.registry, s.dirs, 1<<20, zerolog.Nop()),
		Jobs:         NewJobHandler(s.dispatcher),
		Capabilities: NewCapabilityHandler(s.registry),
		Health:       NewHealthHandler(s.registry, cfg, nil),
	}
	for _, opt := range opts {
		opt(s, &routes)
	}

	s.e = echo.New()
	s.e.HTTPErrorHandler = HTTPErrorHandler(zerolog.Nop())
	routes.Register(s.e)
	return s
}

func (s *testServer) client(id string) *stubClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[id]
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Details string `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string, headers ...string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (s *testServer) doJSON(t *testing.T, method, path, body string, headers ...string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return s.do(t, method, path, r, echo.MIMEApplicationJSON, headers...)
}

func decodeData(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func (s *testServer) createSession(t *testing.T, id string) {
	t.Helper()
	code, env := s.doJSON(t, http.MethodPost, "/api/sessions", `{"userId":"`+id+`"}`)
	require.Equal(t, http.StatusCreated, code, env.Message)
}
