// Command reaper runs the engine's crash-recovery sweep: it seals any
// session left in status "recording" as "failed" and fails any export job
// left "running", then exits. It is meant to run once before the main
// server process starts (or periodically as a standalone job), covering
// the case where the server process was killed rather than shut down
// cleanly.
package main

import (
	"log/slog"
	"os"

	"github.com/vitalstream/bioengine/internal/config"
	"github.com/vitalstream/bioengine/internal/db"
	"github.com/vitalstream/bioengine/internal/db/exportstore"
	"github.com/vitalstream/bioengine/internal/logging"
	"github.com/vitalstream/bioengine/internal/recorder"
	"gorm.io/gorm"
)

func main() {
	logging.InitLogger()
	slog.Info("reaper.starting", "component", "reaper", "event", "starting")

	cfg, err := config.LoadMinimal()
	if err != nil {
		slog.Error("reaper.config_failed", "component", "reaper", "event", "config_failed", "error", err)
		os.Exit(1)
	}

	gormDB, err := openGorm(cfg)
	if err != nil {
		slog.Error("reaper.db_failed", "component", "reaper", "event", "db_failed", "error", err)
		os.Exit(1)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		slog.Error("reaper.db_failed", "component", "reaper", "event", "db_failed", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.AutoMigrate(gormDB); err != nil {
		slog.Error("reaper.migrate_failed", "component", "reaper", "event", "migrate_failed", "error", err)
		os.Exit(1)
	}

	conns := db.NewConnections(gormDB, nil)
	conns.RateLimiter = db.NewMockRateLimiter()

	exitCode := 0

	slog.Info("reaper.sealing_stuck_sessions", "component", "reaper", "event", "sealing_stuck_sessions")
	if err := recorder.RecoverCrashed(conns); err != nil {
		slog.Error("reaper.seal_sessions_failed", "component", "reaper", "event", "seal_sessions_failed", "error", err)
		exitCode = 1
	}

	slog.Info("reaper.failing_stale_exports", "component", "reaper", "event", "failing_stale_exports")
	if n, err := exportstore.FailStale(conns); err != nil {
		slog.Error("reaper.fail_exports_failed", "component", "reaper", "event", "fail_exports_failed", "error", err)
		exitCode = 1
	} else if n > 0 {
		slog.Warn("reaper.failed_stale_exports", "component", "reaper", "event", "failed_stale_exports", "count", n)
	}

	if exitCode == 0 {
		slog.Info("reaper.completed", "component", "reaper", "event", "completed")
	} else {
		slog.Error("reaper.completed_with_errors", "component", "reaper", "event", "completed_with_errors")
	}
	os.Exit(exitCode)
}

// openGorm mirrors cmd/server's driver selection so the reaper inspects
// the same store the main process will open.
func openGorm(cfg *config.MinimalConfig) (*gorm.DB, error) {
	if cfg.Database.DBDriver == "postgres" {
		return db.OpenPostgres(cfg.Database.DatabaseURL)
	}
	return db.OpenSQLite(cfg.Recorder.DataDir)
}
