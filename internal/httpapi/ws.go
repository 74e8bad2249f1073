package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"heliotrack-server/internal/relay"
)

// ControlChannelPath is the only path that accepts a websocket upgrade.
const ControlChannelPath = "/ws"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The panel is served from the same origin in production; local panels
	// connect from file:// or a dev server, so origin is not enforced.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func registerControlChannel(mux *http.ServeMux, hub *relay.Hub) {
	mux.HandleFunc("GET "+ControlChannelPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response and torn
			// down the socket.
			slog.Warn("websocket upgrade rejected", "remote", r.RemoteAddr, "error", err)
			return
		}
		hub.ServeConn(conn, r.RemoteAddr)
	})
}
