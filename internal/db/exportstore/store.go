// Package exportstore persists asynchronous export job metadata and
// provides the claim-one-pending-job query the export worker uses.
package exportstore

import (
	"errors"

	"github.com/vitalstream/bioengine/internal/db"
	"gorm.io/gorm"
)

// FailStale marks every export job still in status "running" as failed.
// A job only stays "running" while the process that claimed it is alive;
// finding one at startup means that process died mid-export. Mirrors
// recorder.RecoverCrashed's treatment of a stuck "recording" session.
func FailStale(conns *db.Connections) (int, error) {
	res := conns.DB.Model(&db.Export{}).
		Where("status = ?", "running").
		Updates(map[string]any{"status": "failed", "error": "interrupted by engine restart"})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// Create inserts a new export row in status "pending".
func Create(conns *db.Connections, e *db.Export) error {
	return conns.DB.Create(e).Error
}

// FindByID returns the export job, or nil if it does not exist.
func FindByID(conns *db.Connections, id string) (*db.Export, error) {
	var record db.Export
	err := conns.DB.Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// ClaimPending atomically finds and marks one pending export job
// "running". Under the Postgres driver this uses SELECT ... FOR UPDATE
// SKIP LOCKED so multiple export workers never double-claim the same
// job; SQLite has no such clause and only ever runs one process anyway,
// so there the claim is a plain transaction. Returns nil if none
// pending.
func ClaimPending(conns *db.Connections) (*db.Export, error) {
	var record db.Export
	err := conns.DB.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status = ?", "pending").Order("created_at ASC")
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(db.ForUpdateSkipLocked())
		}
		if err := q.First(&record).Error; err != nil {
			return err
		}
		return tx.Model(&db.Export{}).Where("id = ?", record.ID).Update("status", "running").Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	record.Status = "running"
	return &record, nil
}

// Complete marks an export job completed with the written file path.
func Complete(conns *db.Connections, id, filePath string, completedAt any) error {
	return conns.DB.Model(&db.Export{}).Where("id = ?", id).
		Updates(map[string]any{"status": "completed", "file_path": filePath, "completed_at": completedAt}).Error
}

// Fail marks an export job failed with a human-readable error.
func Fail(conns *db.Connections, id, errMsg string) error {
	return conns.DB.Model(&db.Export{}).Where("id = ?", id).
		Updates(map[string]any{"status": "failed", "error": errMsg}).Error
}
