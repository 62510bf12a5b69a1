package handler

import (
	"net/http"

	"gowa-blast/internal/ws"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// NewUpgrader accepts every origin when allowed contains "*".
func NewUpgrader(allowed []string) websocket.Upgrader {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origins["*"] || origins[origin]
		},
	}
}

// WebSocketHandler serves /ws. Every connected client receives all
// published events.
func WebSocketHandler(hub *ws.Hub, upgrader websocket.Upgrader, log zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			log.Warn().Err(err).Msg("ws upgrade failed")
			return nil
		}

		client := ws.NewClient(hub, conn)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()

		return nil
	}
}
