package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"heliotrack-server/internal/utils"
)

type healthchecker struct {
	db *sql.DB // nil when running without config persistence
}

func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		var ok int
		if err := h.db.QueryRow(`SELECT 1`).Scan(&ok); err != nil {
			slog.Error("failed to check database connectivity", "error", err)
			utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
			return
		}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB) {
	hc := &healthchecker{db: db}
	mux.HandleFunc("GET /healthz", hc.handleHealthz)
}
