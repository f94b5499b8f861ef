// Package httpapi translates HTTP requests 1:1 into Engine Coordinator
// commands, mapping Coordinator/Recorder/Bus errors onto the closed
// {code, message, details?} envelope. It also mounts the WebSocket Bus's
// own listener and the internal metrics/health mux, following the
// teacher's public-mux/metrics-mux split.
package httpapi

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitalstream/bioengine/internal/bus"
	"github.com/vitalstream/bioengine/internal/config"
	"github.com/vitalstream/bioengine/internal/coordinator"
	"github.com/vitalstream/bioengine/internal/db"
	"github.com/vitalstream/bioengine/internal/metrics"
	"github.com/vitalstream/bioengine/internal/middleware"
)

// NewServer builds the public control-plane HTTP server: device, stream,
// recording, session, and export endpoints, plus the engine's own JSON
// /metrics summary and an optional /ws upgrade endpoint mirroring the
// standalone Bus listener. conns may be nil (rate limiting is then
// skipped, not denied).
func NewServer(cfg *config.Config, eng *coordinator.Engine, b *bus.Bus, conns *db.Connections) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /device/scan", rateLimitMiddleware(conns, "device_scan", deviceScanHandler(eng, cfg.Device.ScanDefaultDurationS)))
	mux.HandleFunc("POST /device/connect", rateLimitMiddleware(conns, "device_connect", deviceConnectHandler(eng)))
	mux.HandleFunc("DELETE /device/disconnect", deviceDisconnectHandler(eng))
	mux.HandleFunc("GET /device/status", deviceStatusHandler(eng))

	mux.HandleFunc("POST /stream/start", streamStartHandler(eng))
	mux.HandleFunc("POST /stream/stop", streamStopHandler(eng))
	mux.HandleFunc("GET /stream/status", streamStatusHandler(eng))

	mux.HandleFunc("POST /data/start-recording", dataStartRecordingHandler(eng))
	mux.HandleFunc("POST /data/stop-recording", dataStopRecordingHandler(eng))
	mux.HandleFunc("GET /data/recording-status", dataRecordingStatusHandler(eng))
	mux.HandleFunc("GET /data/sessions", dataSessionsListHandler(eng))
	mux.HandleFunc("GET /data/sessions/{id}", dataSessionGetHandler(eng))
	mux.HandleFunc("DELETE /data/sessions/{id}", dataSessionDeleteHandler(eng))
	mux.HandleFunc("POST /data/sessions/{id}/export", dataSessionExportHandler(eng))
	mux.HandleFunc("GET /data/exports/{id}", dataExportGetHandler(eng))

	mux.HandleFunc("GET /metrics", engineMetricsHandler(eng, cfg.Recorder.DataDir))

	if b != nil {
		mux.HandleFunc("GET /ws", bus.Handler(b))
	}

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: middleware.SecurityHeadersMiddleware(loggingMiddleware(mux)),
	}
}

// NewMetricsServer builds the internal health/metrics server. It should
// not be exposed to the public internet.
func NewMetricsServer(cfg *config.Config, eng *coordinator.Engine) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthzHandler)
	mux.HandleFunc("GET /readyz", readyzHandler(eng))
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: mux,
	}
}

// NewWSServer builds the standalone WebSocket Bus listener, the primary
// way clients subscribe to sensor channels.
func NewWSServer(cfg *config.Config, b *bus.Bus) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", bus.Handler(b))
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.WSPort),
		Handler: mux,
	}
}

// loggingMiddleware records per-request Prometheus metrics and an access
// log line, mirroring the teacher's own HTTP instrumentation.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.statusCode)).Observe(duration.Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.statusCode)).Inc()

		slog.Info("http.request",
			"component", "httpapi", "event", "request",
			"method", r.Method, "path", r.URL.Path, "status", sw.statusCode,
			"duration_ms", duration.Milliseconds(), "remote_addr", r.RemoteAddr,
		)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code for
// logging/metrics.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.statusCode = code
	sw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker so WebSocket upgrades pass through this
// wrapper unaffected, matching the teacher's own statusWriter.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return sw.ResponseWriter.(http.Hijacker).Hijack()
}
