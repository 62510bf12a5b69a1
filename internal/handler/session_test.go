package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"gowa-blast/internal/middleware"
	"gowa-blast/internal/model"
	"gowa-blast/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	code, env := s.doJSON(t, http.MethodPost, "/api/sessions", `{"userId":"alice"}`)
	require.Equal(t, http.StatusCreated, code)
	var created map[string]interface{}
	decodeData(t, env, &created)
	assert.Equal(t, "ready", created["status"])
	assert.Equal(t, false, created["existing"])

	code, env = s.doJSON(t, http.MethodPost, "/api/sessions", `{"userId":"alice"}`)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &created)
	assert.Equal(t, true, created["existing"])

	code, env = s.doJSON(t, http.MethodGet, "/api/sessions/alice/status", "")
	require.Equal(t, http.StatusOK, code)
	var status map[string]interface{}
	decodeData(t, env, &status)
	assert.Equal(t, "ready", status["status"])
	assert.Equal(t, "connected", status["connectionState"])
	assert.Equal(t, false, status["locked"])

	code, env = s.doJSON(t, http.MethodGet, "/api/sessions/alice/qr", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "QR_NOT_AVAILABLE", env.Error.Code)

	code, env = s.doJSON(t, http.MethodDelete, "/api/sessions/alice", "")
	require.Equal(t, http.StatusOK, code)
	var closed map[string]interface{}
	decodeData(t, env, &closed)
	assert.Equal(t, true, closed["closed"])

	code, env = s.doJSON(t, http.MethodGet, "/api/sessions/alice/status", "")
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &status)
	assert.Equal(t, "no_session", status["status"])

	// closing twice is not an error
	code, env = s.doJSON(t, http.MethodDelete, "/api/sessions/alice", "")
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &closed)
	assert.Equal(t, false, closed["closed"])
}

func TestSessionQR(t *testing.T) {
	s := newTestServer(t)

	code, env := s.doJSON(t, http.MethodPost, "/api/sessions", `{"userId":"scan-1"}`)
	require.Equal(t, http.StatusCreated, code)
	var created map[string]interface{}
	decodeData(t, env, &created)
	assert.Equal(t, string(model.StatusNeedsScan), created["status"])

	code, env = s.doJSON(t, http.MethodGet, "/api/sessions/scan-1/qr", "")
	require.Equal(t, http.StatusOK, code)
	var qr map[string]string
	decodeData(t, env, &qr)
	assert.Equal(t, "2@qr-payload", qr["qr"])

	code, env = s.doJSON(t, http.MethodGet, "/api/sessions/ghost/qr", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "SESSION_NOT_FOUND", env.Error.Code)
}

func TestCreateSessionRejected(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		code   int
		errKey string
	}{
		{"missing userId", `{}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid userId", `{"userId":"bad id!"}`, http.StatusBadRequest, "INVALID_USER_ID"},
		{"malformed body", `{"userId":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"client init fails", `{"userId":"broken"}`, http.StatusInternalServerError, "INIT_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.doJSON(t, http.MethodPost, "/api/sessions", tt.body)
			assert.Equal(t, tt.code, code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.errKey, env.Error.Code)
		})
	}

	assert.Equal(t, model.StatusNoSession, s.registry.Status("broken"))
}

func TestListSessions(t *testing.T) {
	s := newTestServer(t)
	s.createSession(t, "bob")
	s.createSession(t, "alice")

	code, env := s.doJSON(t, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, code)

	var out struct {
		Sessions []model.SessionInfo `json:"sessions"`
		Stats    model.Stats         `json:"stats"`
	}
	decodeData(t, env, &out)
	require.Len(t, out.Sessions, 2)
	assert.Equal(t, "alice", out.Sessions[0].ID)
	assert.Equal(t, 2, out.Stats.Total)
	assert.Equal(t, 4, out.Stats.Max)
	assert.Equal(t, 2, out.Stats.ByStatus[model.StatusReady])
}

func withAuth(issuer *service.TokenIssuer) serverOption {
	return func(_ *testServer, r *Routes) {
		r.Auth = middleware.JWTAuthMiddleware(issuer)
	}
}

func bearer(t *testing.T, issuer *service.TokenIssuer, subject, role string) []string {
	t.Helper()
	token, err := issuer.Generate(subject, role)
	require.NoError(t, err)
	return []string{"Authorization", "Bearer " + token}
}

func TestSessionAccessControl(t *testing.T) {
	issuer := service.NewTokenIssuer("test-secret", time.Hour)
	s := newTestServer(t, withAuth(issuer))

	admin := bearer(t, issuer, "root", service.RoleAdmin)
	alice := bearer(t, issuer, "alice", service.RoleOperator)
	viewer := bearer(t, issuer, "alice", service.RoleViewer)

	code, env := s.doJSON(t, http.MethodGet, "/api/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	code, env = s.doJSON(t, http.MethodPost, "/api/sessions", `{"userId":"bob"}`, alice...)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "SESSION_ACCESS_DENIED", env.Error.Code)

	code, _ = s.doJSON(t, http.MethodPost, "/api/sessions", `{"userId":"alice"}`, alice...)
	assert.Equal(t, http.StatusCreated, code)

	code, env = s.doJSON(t, http.MethodPost, "/api/sessions", `{"userId":"alice"}`, viewer...)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	code, _ = s.doJSON(t, http.MethodPost, "/api/sessions", `{"userId":"bob"}`, admin...)
	assert.Equal(t, http.StatusCreated, code)

	code, env = s.doJSON(t, http.MethodGet, "/api/sessions/bob/status", "", alice...)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "SESSION_ACCESS_DENIED", env.Error.Code)

	code, _ = s.doJSON(t, http.MethodGet, "/api/sessions/alice/status", "", viewer...)
	assert.Equal(t, http.StatusOK, code)

	code, env = s.doJSON(t, http.MethodGet, "/api/sessions", "", alice...)
	require.Equal(t, http.StatusOK, code)
	var out struct {
		Sessions []model.SessionInfo `json:"sessions"`
	}
	decodeData(t, env, &out)
	require.Len(t, out.Sessions, 1)
	assert.Equal(t, "alice", out.Sessions[0].ID)

	code, env = s.doJSON(t, http.MethodGet, "/api/sessions", "", admin...)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &out)
	assert.Len(t, out.Sessions, 2)
}

func TestPollingKeepsSessionActive(t *testing.T) {
	s := newTestServer(t)
	s.createSession(t, "alice")
	s.createSession(t, "scan-1")

	for _, path := range []string{"/api/sessions/alice/status", "/api/sessions/scan-1/qr"} {
		t.Run(path, func(t *testing.T) {
			id := strings.Split(path, "/")[3]
			before, ok := s.registry.Info(id)
			require.True(t, ok)

			time.Sleep(20 * time.Millisecond)
			code, _ := s.doJSON(t, http.MethodGet, path, "")
			require.Equal(t, http.StatusOK, code)

			after, ok := s.registry.Info(id)
			require.True(t, ok)
			assert.True(t, after.LastActivity.After(before.LastActivity))
			assert.NotContains(t, s.registry.IdleSessions(before.LastActivity.Add(10*time.Millisecond)), id)
		})
	}
}
