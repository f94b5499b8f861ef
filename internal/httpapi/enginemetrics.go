package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/vitalstream/bioengine/internal/coordinator"
)

type engineMetricsResponse struct {
	CPUPercent float64 `json:"cpu"`
	RAMMB      float64 `json:"ram_mb"`
	DiskMB     float64 `json:"disk_mb"`
	TS         float64 `json:"ts"`
}

// engineMetricsHandler handles GET /metrics on the public control-plane
// mux: the engine's own JSON summary, distinct from the Prometheus
// exposition on the internal mux of the same path.
func engineMetricsHandler(eng *coordinator.Engine, dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := eng.LatestMonitoring()

		var diskMB float64
		if usage, err := disk.Usage(dataDir); err == nil {
			diskMB = float64(usage.Used) / (1024 * 1024)
		} else {
			slog.Warn("httpapi.metrics.disk_usage_failed",
				"component", "httpapi", "event", "metrics.disk_usage_failed", "path", dataDir, "error", err)
		}

		writeOK(w, engineMetricsResponse{
			CPUPercent: m.CPUPercent,
			RAMMB:      float64(m.MemoryRSSBytes) / (1024 * 1024),
			DiskMB:     diskMB,
			TS:         m.TS,
		})
	}
}
