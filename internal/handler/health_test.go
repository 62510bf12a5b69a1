package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	s.createSession(t, "alice")

	code, env := s.doJSON(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	var out struct {
		Status   string `json:"status"`
		Sessions struct {
			Total int `json:"total"`
			Max   int `json:"max"`
		} `json:"sessions"`
		Config map[string]interface{} `json:"config"`
	}
	decodeData(t, env, &out)
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, 1, out.Sessions.Total)
	assert.Equal(t, 4, out.Sessions.Max)
	assert.Equal(t, "216", out.Config["defaultCountryCode"])
	assert.Equal(t, false, out.Config["authEnabled"])
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t)

	code, env := s.doJSON(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
