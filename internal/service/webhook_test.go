package service

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"gowa-blast/internal/ws"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifier(t *testing.T) {
	var (
		mu       sync.Mutex
		received []ws.WsEvent
		headers  []string
		bodies   [][]byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var ev ws.WsEvent
		_ = json.Unmarshal(body, &ev)

		mu.Lock()
		received = append(received, ev)
		headers = append(headers, r.Header.Get(SignatureHeader))
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "hook-secret", []string{ws.EventDispatchFinished}, zerolog.Nop())
	require.NotNil(t, n)

	n.Publish(ws.WsEvent{Event: ws.EventDispatchProgress, Data: ws.DispatchProgressData{JobID: "j1"}})
	n.Publish(ws.WsEvent{Event: ws.EventDispatchFinished, Data: map[string]string{"jobId": "j1"}})
	n.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, ws.EventDispatchFinished, received[0].Event)
	assert.False(t, received[0].Timestamp.IsZero())

	assert.Equal(t, Sign([]byte("hook-secret"), bodies[0]), headers[0])
}

func TestWebhookNotifierDisabled(t *testing.T) {
	n := NewWebhookNotifier("", "", nil, zerolog.Nop())
	assert.Nil(t, n)
	// nil notifier is safe to use
	n.Publish(ws.WsEvent{Event: ws.EventSessionClosed})
	n.Close()
}
