// Command server is the bioengine process: it brings up the relational
// store, the Device Adapter, the Session Recorder and Exporter, the
// WebSocket Bus, the Engine Coordinator, and the HTTP control plane, then
// serves until signalled to shut down.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitalstream/bioengine/internal/bus"
	"github.com/vitalstream/bioengine/internal/config"
	"github.com/vitalstream/bioengine/internal/coordinator"
	"github.com/vitalstream/bioengine/internal/db"
	"github.com/vitalstream/bioengine/internal/db/devicestore"
	"github.com/vitalstream/bioengine/internal/device"
	"github.com/vitalstream/bioengine/internal/httpapi"
	"github.com/vitalstream/bioengine/internal/logging"
	"github.com/vitalstream/bioengine/internal/recorder"
	"gorm.io/gorm"
)

func main() {
	logging.InitLogger()
	slog.Info("bioengine.starting", "component", "main", "event", "starting")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("bioengine.config_failed", "component", "main", "event", "config_failed", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Recorder.DataDir, 0o755); err != nil {
		slog.Error("bioengine.data_dir_failed", "component", "main", "event", "data_dir_failed", "error", err)
		os.Exit(1)
	}

	conns, closeConns, err := openStore(cfg)
	if err != nil {
		slog.Error("bioengine.store_failed", "component", "main", "event", "store_failed", "error", err)
		os.Exit(1)
	}
	defer closeConns()

	// Any session still "recording" when the process last exited was cut
	// off mid-write; seal it failed and leave the partial files in place.
	if err := recorder.RecoverCrashed(conns); err != nil {
		slog.Error("bioengine.recover_crashed_failed", "component", "main", "event", "recover_crashed_failed", "error", err)
	}

	rec := recorder.New(conns, cfg.Recorder.DataDir, cfg.Recorder.RecorderQueueLen)
	exp := recorder.NewExporter(conns, cfg.Recorder.DataDir)

	eng, wsBus := buildEngine(cfg, conns, rec, exp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Init(ctx); err != nil {
		slog.Error("bioengine.init_failed", "component", "main", "event", "init_failed", "error", err)
		os.Exit(1)
	}

	if reconnected := maybeAutoReconnect(ctx, cfg, eng, conns); reconnected {
		slog.Info("bioengine.auto_reconnected", "component", "main", "event", "auto_reconnected")
	}

	httpSrv := httpapi.NewServer(cfg, eng, wsBus, conns)
	wsSrv := httpapi.NewWSServer(cfg, wsBus)
	metricsSrv := httpapi.NewMetricsServer(cfg, eng)

	servers := []*http.Server{httpSrv, wsSrv, metricsSrv}
	for _, srv := range servers {
		srv := srv
		go func() {
			slog.Info("bioengine.listening", "component", "main", "event", "listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("bioengine.listen_failed", "component", "main", "event", "listen_failed", "addr", srv.Addr, "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("bioengine.shutting_down", "component", "main", "event", "shutting_down")

	// Cancellation order per the Concurrency & Resource Model: acceptors
	// first (stop taking new work), then the in-flight lifecycle
	// (streaming/recording), then the adapter, then the bus, then the
	// command loop itself.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("bioengine.shutdown_server_failed", "component", "main", "event", "shutdown_server_failed", "addr", srv.Addr, "error", err)
		}
	}

	if err := eng.StopStreaming(shutdownCtx); err != nil {
		slog.Warn("bioengine.shutdown_stop_streaming_failed", "component", "main", "event", "shutdown_stop_streaming_failed", "error", err)
	}
	if err := eng.Disconnect(shutdownCtx); err != nil {
		slog.Warn("bioengine.shutdown_disconnect_failed", "component", "main", "event", "shutdown_disconnect_failed", "error", err)
	}
	eng.Shutdown()

	slog.Info("bioengine.stopped", "component", "main", "event", "stopped")
}

// openStore opens the configured relational store (sqlite by default, or
// Postgres when DBDriver=postgres) plus the optional Redis connection used
// for the Bus's passive mirror and HTTP rate limiting. Redis is entirely
// optional: with RedisURL unset the engine runs without it, and rate
// limiting falls back to an always-allow mock rather than a nil limiter.
func openStore(cfg *config.Config) (*db.Connections, func(), error) {
	gormDB, err := openGorm(cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, nil, fmt.Errorf("auto-migrate: %w", err)
	}

	var redisClient *db.RedisClient
	if cfg.Redis.RedisURL != "" {
		redisClient, err = db.NewRedisClient(cfg.Redis.RedisURL, cfg.Redis.RedisKeyPrefix)
		if err != nil {
			slog.Warn("bioengine.redis_unavailable", "component", "main", "event", "redis_unavailable", "error", err)
			redisClient = nil
		}
	}

	conns := db.NewConnections(gormDB, redisClient)
	if redisClient == nil {
		conns.RateLimiter = db.NewMockRateLimiter()
	}

	closeFn := func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
		if redisClient != nil {
			redisClient.Close()
		}
	}
	return conns, closeFn, nil
}

// openGorm opens the configured relational store: sqlite under DataDir by
// default, or a shared Postgres instance when DBDriver is set to
// "postgres".
func openGorm(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Database.DBDriver == "postgres" {
		return db.OpenPostgres(cfg.Database.DatabaseURL)
	}
	return db.OpenSQLite(cfg.Recorder.DataDir)
}

// buildEngine wires the Device Adapter (bound to the deterministic
// Simulator — no real BLE radio is available in this environment), the
// WebSocket Bus (mirrored to Redis when configured), and the Engine
// Coordinator that composes them with the Recorder/Exporter.
func buildEngine(cfg *config.Config, conns *db.Connections, rec *recorder.Recorder, exp *recorder.Exporter) (*coordinator.Engine, *bus.Bus) {
	var eng *coordinator.Engine

	policy := device.DefaultReconnectPolicy()
	policy.Enabled = cfg.Device.AutoReconnect

	adapter := device.New(device.NewSimulator(), policy, func(ev device.Event) {
		eng.OnDeviceEvent(ev)
	})

	var busOpts []bus.Option
	busOpts = append(busOpts, bus.WithSlowConsumerLagThreshold(cfg.Bus.SlowConsumerLagThreshold))
	busOpts = append(busOpts, bus.WithSendQueueLen(cfg.Bus.ClientSendQueueLen))
	if conns.Redis != nil {
		busOpts = append(busOpts, bus.WithRedisMirror(conns.Redis))
	}

	wsBus := bus.NewBus(func(ctx context.Context, c *bus.Client, cmd bus.Command) error {
		return eng.HandleBusCommand(ctx, c, cmd)
	}, busOpts...)

	eng = coordinator.New(cfg, adapter, wsBus, rec, exp, conns)
	return eng, wsBus
}

// maybeAutoReconnect connects to the most recently registered device on
// startup when auto_reconnect is enabled, per the Device Adapter's
// policy-driven reconnect contract.
func maybeAutoReconnect(ctx context.Context, cfg *config.Config, eng *coordinator.Engine, conns *db.Connections) bool {
	if !cfg.Device.AutoReconnect {
		return false
	}
	last, err := devicestore.MostRecent(conns)
	if err != nil || last == nil {
		return false
	}
	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Device.ConnectTimeoutS)*time.Second)
	defer cancel()
	if err := eng.Connect(connectCtx, last.Address, true); err != nil {
		slog.Warn("bioengine.auto_reconnect_failed", "component", "main", "event", "auto_reconnect_failed", "address", last.Address, "error", err)
		return false
	}
	return true
}
