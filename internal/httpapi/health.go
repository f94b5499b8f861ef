package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/vitalstream/bioengine/internal/coordinator"
)

type healthResponse struct {
	Status string `json:"status"`
}

type readyResponse struct {
	Status string            `json:"status"`
	State  coordinator.State `json:"engine_state"`
}

// healthzHandler reports liveness unconditionally: the process responding
// at all is the check.
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{Status: "ok"}) //nolint:errcheck
}

// readyzHandler reports readiness once the Coordinator has reached
// "running".
func readyzHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := eng.Status()
		resp := readyResponse{Status: "ready", State: snap.State}
		w.Header().Set("Content-Type", "application/json")
		if snap.State != coordinator.StateRunning && snap.State != coordinator.StateDegraded {
			resp.Status = "not ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}
}
