package handlers

import (
	"net/http"

	"chat-gateway/internal/gateway"
)

// Healthz reports the gateway's state sizes, or 503 once it has stopped.
func Healthz(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := gw.Stats()
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
