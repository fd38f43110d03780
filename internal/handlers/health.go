package handlers

import (
	"context"
	"net/http"

	"github.com/userhub/apiserver/internal/logging"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Healthz reports 200 while the database answers and 503 otherwise.
func Healthz(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			logging.FromContext(r.Context()).Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
