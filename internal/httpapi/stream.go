package httpapi

import (
	"net/http"

	"github.com/vitalstream/bioengine/internal/coordinator"
)

// streamStartHandler handles POST /stream/start.
func streamStartHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.StartStreaming(r.Context()); err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, eng.Status())
	}
}

// streamStopHandler handles POST /stream/stop.
func streamStopHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.StopStreaming(r.Context()); err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, eng.Status())
	}
}

// streamStatusHandler handles GET /stream/status.
func streamStatusHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, eng.Status())
	}
}
