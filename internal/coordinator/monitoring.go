package coordinator

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/vitalstream/bioengine/internal/metrics"
	"github.com/vitalstream/bioengine/internal/types"
)

const monitoringInterval = time.Second

// MonitoringMetrics is the payload published on the monitoring_metrics
// channel every second and exposed as Prometheus gauges on /metrics.
type MonitoringMetrics struct {
	TS             float64            `json:"ts"`
	CPUPercent     float64            `json:"cpu_percent"`
	MemoryRSSBytes uint64             `json:"memory_rss_bytes"`
	ClientCount    int                `json:"client_count"`
	SampleRatesHz  map[string]float64 `json:"sample_rates_hz"`
	DroppedTotal   map[string]uint64  `json:"dropped_total"`
	HealthScore    float64            `json:"health_score"`
	State          State              `json:"state"`
}

// runMonitoring publishes MonitoringMetrics on the bus once a second until
// ctx is cancelled. It reads the engine's own Status() plus process-level
// CPU/memory from gopsutil, so the numbers broadcast to WebSocket clients
// and the numbers scraped by Prometheus come from the same computation.
func (e *Engine) runMonitoring(ctx context.Context) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		slog.Warn("coordinator.monitoring.process_handle_failed",
			"component", "coordinator", "event", "monitoring.process_handle_failed", "error", err)
	}

	var lastEEG, lastPPG, lastACC, lastBat uint64
	lastSampleAt := time.Now()

	ticker := time.NewTicker(monitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(lastSampleAt).Seconds()
			lastSampleAt = now

			m := e.collectMonitoring(proc, &lastEEG, &lastPPG, &lastACC, &lastBat, elapsed)
			e.mu.Lock()
			e.lastMonitoring = m
			e.mu.Unlock()
			e.bus.Publish(types.ChannelMonitoringMetrics, types.MessageSensorData, m)
			e.recordMonitoringMetrics(m)
		}
	}
}

func (e *Engine) collectMonitoring(proc *process.Process, lastEEG, lastPPG, lastACC, lastBat *uint64, elapsed float64) MonitoringMetrics {
	var cpuPct float64
	var rss uint64
	if proc != nil {
		if pct, err := proc.CPUPercent(); err == nil {
			cpuPct = pct
		}
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			rss = info.RSS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil && rss == 0 {
		rss = vm.Used
	}

	e.mu.Lock()
	state := e.state
	set := e.streamSet
	e.mu.Unlock()

	rates := map[string]float64{}
	dropped := map[string]uint64{}
	if set != nil {
		eegTotal := set.eegBuf.Total()
		ppgTotal := set.ppgBuf.Total()
		accTotal := set.accBuf.Total()
		batTotal := set.batBuf.Total()

		if elapsed > 0 {
			rates[string(types.SensorEEG)] = float64(eegTotal-*lastEEG) / elapsed
			rates[string(types.SensorPPG)] = float64(ppgTotal-*lastPPG) / elapsed
			rates[string(types.SensorACC)] = float64(accTotal-*lastACC) / elapsed
			rates[string(types.SensorBattery)] = float64(batTotal-*lastBat) / elapsed
		}
		*lastEEG, *lastPPG, *lastACC, *lastBat = eegTotal, ppgTotal, accTotal, batTotal

		dropped[string(types.SensorEEG)] = set.eegBuf.Dropped()
		dropped[string(types.SensorPPG)] = set.ppgBuf.Dropped()
		dropped[string(types.SensorACC)] = set.accBuf.Dropped()
		dropped[string(types.SensorBattery)] = set.batBuf.Dropped()
	}

	return MonitoringMetrics{
		TS:             float64(time.Now().UnixNano()) / 1e9,
		CPUPercent:     cpuPct,
		MemoryRSSBytes: rss,
		ClientCount:    e.bus.ClientCount(),
		SampleRatesHz:  rates,
		DroppedTotal:   dropped,
		HealthScore:    healthScore(state, dropped),
		State:          state,
	}
}

// recordMonitoringMetrics mirrors one MonitoringMetrics sample onto the
// Prometheus gauges scraped on /metrics, plus the per-pipeline status
// gauges read straight from Status() so both exposition paths agree.
func (e *Engine) recordMonitoringMetrics(m MonitoringMetrics) {
	metrics.EngineHealthScore.Set(m.HealthScore)
	metrics.EngineCPUPercent.Set(m.CPUPercent)
	metrics.EngineMemoryRSSBytes.Set(float64(m.MemoryRSSBytes))
	metrics.BusClientCount.Set(float64(m.ClientCount))
	for sensor, rate := range m.SampleRatesHz {
		metrics.SampleRateHz.WithLabelValues(sensor).Set(rate)
	}
	for sensor, d := range m.DroppedTotal {
		metrics.RingBufferDroppedTotal.WithLabelValues(sensor).Set(float64(d))
	}

	snap := e.Status()
	for pipeline, status := range map[string]string{
		"eeg": snap.EEGStatus, "ppg": snap.PPGStatus, "acc": snap.ACCStatus, "battery": snap.BatteryStatus,
	} {
		if status == "" {
			continue
		}
		metrics.PipelineStatus.WithLabelValues(pipeline).Set(metrics.PipelineStatusCode(status))
	}
}

// LatestMonitoring returns the most recently computed monitoring sample,
// the same one last published on the monitoring_metrics channel. Zero
// value until the first tick fires after Init.
func (e *Engine) LatestMonitoring() MonitoringMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastMonitoring
}

// healthScore collapses the engine's coarse state plus recent drop activity
// into a single 0-1 figure: 1 is fully healthy, degraded states and active
// drops each cost a fixed penalty.
func healthScore(state State, dropped map[string]uint64) float64 {
	score := 1.0
	switch state {
	case StateDegraded:
		score -= 0.5
	case StateStopping, StateStopped:
		score -= 1.0
	}
	for _, d := range dropped {
		if d > 0 {
			score -= 0.1
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}
