package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vitalstream/bioengine/internal/coordinator"
)

type connectRequest struct {
	Address       string `json:"address"`
	TimeoutS      int    `json:"timeout,omitempty"`
	AutoReconnect bool   `json:"auto_reconnect,omitempty"`
}

// deviceScanHandler handles GET /device/scan.
func deviceScanHandler(eng *coordinator.Engine, defaultDurationS int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		duration := time.Duration(defaultDurationS) * time.Second
		if q := r.URL.Query().Get("duration_s"); q != "" {
			if secs, err := time.ParseDuration(q + "s"); err == nil {
				duration = secs
			}
		}
		devices, err := eng.Scan(r.Context(), duration)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, devices)
	}
}

// deviceConnectHandler handles POST /device/connect.
func deviceConnectHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req connectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body: "+err.Error())
			return
		}
		if req.Address == "" {
			writeBadRequest(w, "address is required")
			return
		}

		ctx := r.Context()
		if req.TimeoutS > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutS)*time.Second)
			defer cancel()
		}

		if err := eng.Connect(ctx, req.Address, req.AutoReconnect); err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, eng.Status())
	}
}

// deviceDisconnectHandler handles DELETE /device/disconnect.
func deviceDisconnectHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.Disconnect(r.Context()); err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, eng.Status())
	}
}

// deviceStatusHandler handles GET /device/status.
func deviceStatusHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, eng.Status())
	}
}
