package recorder

import (
	"fmt"
	"os"

	"github.com/vitalstream/bioengine/internal/db/sessionstore"
	"github.com/vitalstream/bioengine/internal/types"
)

// ListSessions returns sessions matching filter, newest first.
func (r *Recorder) ListSessions(filter sessionstore.Filter, page sessionstore.Page) ([]types.Session, error) {
	records, err := sessionstore.List(r.conns, filter, page)
	if err != nil {
		return nil, err
	}
	sessions := make([]types.Session, 0, len(records))
	for i := range records {
		s, err := sessionstore.ToType(&records[i])
		if err != nil {
			return nil, fmt.Errorf("recorder: decode session %s: %w", records[i].ID, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// GetSession returns one session plus its file entries, or nil if unknown.
func (r *Recorder) GetSession(id string) (*types.Session, []types.FileEntry, error) {
	record, err := sessionstore.FindByID(r.conns, id)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, nil
	}
	s, err := sessionstore.ToType(record)
	if err != nil {
		return nil, nil, fmt.Errorf("recorder: decode session %s: %w", id, err)
	}
	return &s, sessionstore.FileEntriesOf(record), nil
}

// SummaryOf rebuilds the SessionSummary shape Stop returns, from a sealed
// session's persisted record — used to serve stop_recording(id) on an
// already-sealed session idempotently.
func SummaryOf(session types.Session, files []types.FileEntry) types.SessionSummary {
	var totalBytes int64
	sampleCounts := make(map[types.SensorKind]int64)
	for _, f := range files {
		totalBytes += f.SizeBytes
		if f.SampleCount != nil {
			sampleCounts[f.SensorType] += *f.SampleCount
		}
	}
	var duration float64
	if session.EndTime != nil {
		duration = session.EndTime.Sub(session.StartTime).Seconds()
	}
	return types.SessionSummary{
		Session: session, DurationSeconds: duration, FileCount: len(files),
		TotalBytes: totalBytes, SampleCounts: sampleCounts,
	}
}

// DeleteSession removes a session's row (cascading to its files/exports)
// and its on-disk directory. Refuses to delete the session currently
// recording.
func (r *Recorder) DeleteSession(id string) error {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active != nil && active.meta.SessionID == id {
		return types.NewError(types.ErrRecordingInProgress, "cannot delete a session that is currently recording")
	}

	record, err := sessionstore.FindByID(r.conns, id)
	if err != nil {
		return err
	}
	if record == nil {
		return types.NewError(types.ErrSessionNotFound, "session not found: "+id)
	}
	if err := sessionstore.Delete(r.conns, id); err != nil {
		return fmt.Errorf("recorder: delete session row: %w", err)
	}
	if record.RootDir != "" {
		if err := os.RemoveAll(record.RootDir); err != nil {
			return types.NewError(types.ErrFileNotFound, "session row deleted but files could not be removed: "+err.Error())
		}
	}
	return nil
}
