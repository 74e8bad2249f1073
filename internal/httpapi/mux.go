package httpapi

import (
	"database/sql"
	"net/http"

	"heliotrack-server/internal/relay"
)

// NewMux wires the full HTTP surface: the control channel at /ws, the
// health endpoint, and the panel assets at everything else. db may be nil
// when the server runs without config persistence.
func NewMux(hub *relay.Hub, db *sql.DB, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	registerControlChannel(mux, hub)
	registerHealthcheck(mux, db)
	mux.Handle("/", StaticHandler(staticDir))
	return mux
}
