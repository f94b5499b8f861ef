// Package recorder persists raw and processed streams for one recording
// session to a session-structured file layout, indexed in the relational
// store. Appends never block the caller: each stream has a dedicated
// writer task fed by a bounded queue.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/vitalstream/bioengine/internal/db"
	"github.com/vitalstream/bioengine/internal/db/sessionstore"
	"github.com/vitalstream/bioengine/internal/types"
	"github.com/vitalstream/bioengine/internal/worker"
)

// minFreeBytes is the free-space floor below which Start refuses a new
// recording with InsufficientSpace.
const minFreeBytes = 100 * 1024 * 1024

// recordingLockTTL bounds how long a crashed holder can block a device's
// recording lock before it expires on its own. Renewed at half this
// interval for as long as the session stays active.
const recordingLockTTL = 30 * time.Second

// StartMeta describes a session to begin recording.
type StartMeta struct {
	Name          string
	ParticipantID string
	Condition     string
	Notes         string
	Tags          []string
	DeviceID      string
	SamplingRates map[types.SensorKind]float64
}

// Recorder owns at most one active recording session at a time.
type Recorder struct {
	conns    *db.Connections
	dataDir  string
	queueLen int

	mu     sync.Mutex
	active *activeSession
}

// activeSession is the in-memory state for the session currently
// recording. Protected by Recorder.mu.
type activeSession struct {
	meta        types.Session
	dir         string
	samplingHz  map[types.SensorKind]float64
	writers     map[string]*streamWriter
	failed      bool
	failureCause error
	lock        *worker.RedisLock
	lockStop    chan struct{}
}

// New builds a Recorder rooted at dataDir, using conns for session/export
// persistence. queueLen bounds each stream writer's pending-record queue.
func New(conns *db.Connections, dataDir string, queueLen int) *Recorder {
	return &Recorder{conns: conns, dataDir: dataDir, queueLen: queueLen}
}

// IsRecording reports whether a session is currently active.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Start begins a new recording session. Fails with AlreadyRecording if one
// is already active, or InsufficientSpace if the data directory's volume
// is below the free-space floor. Callers are responsible for checking that
// streaming is active before calling Start (NotStreaming per the spec is
// the Coordinator's transition guard, not the Recorder's).
func (r *Recorder) Start(meta StartMeta) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return "", types.NewError(types.ErrRecordingInProgress, "a recording is already active")
	}

	if err := checkFreeSpace(r.dataDir); err != nil {
		return "", err
	}

	lock, err := r.acquireRecordingLock(meta.DeviceID)
	if err != nil {
		return "", err
	}

	now := time.Now()
	sessionID := "session_" + now.Format("20060102_150405")
	dir := filepath.Join(r.dataDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.releaseRecordingLock(lock)
		return "", types.NewError(types.ErrInsufficientSpace, "cannot create session directory: "+err.Error())
	}

	session := types.Session{
		SessionID:     sessionID,
		Name:          meta.Name,
		StartTime:     now,
		Status:        types.SessionRecording,
		ParticipantID: meta.ParticipantID,
		Condition:     meta.Condition,
		Notes:         meta.Notes,
		Tags:          meta.Tags,
		DeviceID:      meta.DeviceID,
		RootDir:       dir,
	}

	tagsJSON, err := sessionstore.EncodeTags(meta.Tags)
	if err != nil {
		r.releaseRecordingLock(lock)
		return "", types.NewError(types.ErrInvalidParameters, "cannot encode tags: "+err.Error())
	}
	row := &db.Session{
		ID: sessionID, Name: meta.Name, StartTime: now, Status: string(types.SessionRecording),
		DeviceID: meta.DeviceID, RootDir: dir, ParticipantID: meta.ParticipantID,
		Condition: meta.Condition, Notes: meta.Notes, TagsJSON: tagsJSON,
	}
	if err := sessionstore.Create(r.conns, row); err != nil {
		r.releaseRecordingLock(lock)
		return "", fmt.Errorf("recorder: create session row: %w", err)
	}

	r.active = &activeSession{
		meta:       session,
		dir:        dir,
		samplingHz: meta.SamplingRates,
		writers:    make(map[string]*streamWriter),
		lock:       lock,
		lockStop:   make(chan struct{}),
	}
	r.runLockRenewal(r.active)

	if err := r.writeMeta(r.active); err != nil {
		slog.Error("recorder.start.meta_write_failed",
			"component", "recorder", "event", "start.meta_write_failed", "session_id", sessionID, "error", err)
	}

	slog.Info("recorder.start",
		"component", "recorder", "event", "start", "session_id", sessionID, "dir", dir)
	return sessionID, nil
}

// Append hands payload to the stream's dedicated writer task and returns
// immediately. Called from DSP pipelines and the device adapter; never
// blocks. If no session is active, Append is a no-op.
func (r *Recorder) Append(sensor types.SensorKind, kind types.DataType, payload any) {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active == nil {
		return
	}

	key := streamKey(sensor, kind)
	r.mu.Lock()
	w, ok := active.writers[key]
	if !ok {
		var err error
		w, err = newStreamWriter(active.dir, active.meta.DeviceID, sensor, kind, r.queueLen, r.onOverflow)
		if err != nil {
			r.mu.Unlock()
			slog.Error("recorder.append.open_failed",
				"component", "recorder", "event", "append.open_failed", "stream", key, "error", err)
			return
		}
		active.writers[key] = w
	}
	r.mu.Unlock()

	w.enqueue(payload)
}

// onOverflow is invoked by a stream writer when its queue is full. Per the
// back-pressure spec, overflow seals the running session as failed right
// away rather than deferring the failed status to whenever Stop is next
// called.
func (r *Recorder) onOverflow(stream string) {
	slog.Error("recorder.recording_error",
		"component", "recorder", "event", "recording_error", "stream", stream, "reason", "queue_overflow")

	if _, err := r.StopFailed("writer queue overflow on stream " + stream); err != nil {
		slog.Warn("recorder.overflow.seal_failed",
			"component", "recorder", "event", "overflow.seal_failed", "stream", stream, "error", err)
	}
}

// Stop seals the active session completed: closes all writer tasks,
// flushes the relational store row, and computes summary counts.
func (r *Recorder) Stop() (types.SessionSummary, error) {
	return r.stop()
}

// StopFailed seals the active session failed, with cause recorded as the
// failure reason. Used for back-pressure overflow and unexpected device/
// connection loss, where the running session can no longer be trusted.
func (r *Recorder) StopFailed(cause string) (types.SessionSummary, error) {
	r.mu.Lock()
	if r.active != nil {
		r.active.failed = true
		r.active.failureCause = errors.New(cause)
	}
	r.mu.Unlock()
	return r.stop()
}

// stop is the shared sealing path for Stop and StopFailed: the session is
// sealed failed if active.failed was set by either caller, completed
// otherwise.
func (r *Recorder) stop() (types.SessionSummary, error) {
	r.mu.Lock()
	active := r.active
	if active == nil {
		r.mu.Unlock()
		return types.SessionSummary{}, types.NewError(types.ErrSessionNotFound, "no recording is active")
	}
	r.active = nil
	r.mu.Unlock()

	if active.lockStop != nil {
		close(active.lockStop)
	}
	r.releaseRecordingLock(active.lock)

	sampleCounts := make(map[types.SensorKind]int64)
	var totalBytes int64
	var fileEntries []types.FileEntry
	for _, w := range active.writers {
		entry, count := w.close()
		entry.SessionID = active.meta.SessionID
		entry.RelativePath = entry.Filename
		sampleCounts[w.sensor] += count
		totalBytes += entry.SizeBytes
		fileEntries = append(fileEntries, entry)

		row := &db.SessionFile{
			SessionID: active.meta.SessionID, Filename: entry.Filename, Sensor: string(w.sensor),
			DataType: string(w.kind), Size: entry.SizeBytes, SampleCount: &count, CreatedAt: time.Now(),
		}
		if err := sessionstore.AddFile(r.conns, row); err != nil {
			slog.Error("recorder.stop.add_file_failed",
				"component", "recorder", "event", "stop.add_file_failed", "session_id", active.meta.SessionID, "error", err)
		}
	}

	end := time.Now()
	active.meta.EndTime = &end
	status := types.SessionCompleted
	if active.failed {
		status = types.SessionFailed
	}
	active.meta.Status = status

	var sealErr error
	if active.failed {
		sealErr = sessionstore.SealFailed(r.conns, active.meta.SessionID, end)
	} else {
		sealErr = sessionstore.SealCompleted(r.conns, active.meta.SessionID, end)
	}
	if sealErr != nil {
		return types.SessionSummary{}, fmt.Errorf("recorder: seal session: %w", sealErr)
	}

	if err := r.writeMetaFinal(active, fileEntries); err != nil {
		slog.Error("recorder.stop.meta_write_failed",
			"component", "recorder", "event", "stop.meta_write_failed", "session_id", active.meta.SessionID, "error", err)
	}

	summary := types.SessionSummary{
		Session:         active.meta,
		DurationSeconds: end.Sub(active.meta.StartTime).Seconds(),
		FileCount:       len(fileEntries),
		TotalBytes:      totalBytes,
		SampleCounts:    sampleCounts,
	}

	slog.Info("recorder.stop",
		"component", "recorder", "event", "stop", "session_id", active.meta.SessionID,
		"status", status, "files", len(fileEntries), "bytes", totalBytes)
	return summary, nil
}

// RecoverCrashed seals any session left in status "recording" on startup
// as failed, per the crash-recovery invariant. Files are left in place.
func RecoverCrashed(conns *db.Connections) error {
	active, err := sessionstore.FindActiveRecording(conns)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}
	slog.Warn("recorder.recover_crashed",
		"component", "recorder", "event", "recover_crashed", "session_id", active.ID)
	return sessionstore.SealFailed(conns, active.ID, time.Now())
}

// acquireRecordingLock claims the cross-process recording lock for
// deviceAddress when Redis is configured. Without Redis, or when
// deviceAddress is empty, locking is skipped entirely: the in-memory
// Recorder.mu guard is the only protection, same as before this lock
// existed.
func (r *Recorder) acquireRecordingLock(deviceAddress string) (*worker.RedisLock, error) {
	if r.conns == nil || r.conns.Redis == nil || deviceAddress == "" {
		return nil, nil
	}
	lock := worker.NewRecordingLock(r.conns.Redis.Client(), deviceAddress, recordingLockTTL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ok, err := lock.TryAcquire(ctx)
	if err != nil {
		slog.Warn("recorder.lock.acquire_failed",
			"component", "recorder", "event", "lock.acquire_failed", "device", deviceAddress, "error", err)
		return nil, nil
	}
	if !ok {
		return nil, types.NewError(types.ErrRecordingInProgress, "this device is already recording on another process")
	}
	return lock, nil
}

// releaseRecordingLock is a no-op when no lock was acquired (Redis
// unconfigured, or acquireRecordingLock skipped locking).
func (r *Recorder) releaseRecordingLock(lock *worker.RedisLock) {
	if lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := lock.Release(ctx); err != nil && !errors.Is(err, worker.ErrLockNotHeld) {
		slog.Warn("recorder.lock.release_failed",
			"component", "recorder", "event", "lock.release_failed", "error", err)
	}
}

// runLockRenewal keeps a's recording lock alive for as long as the
// session stays active, so a long recording never outlives its own TTL.
// No-op if a has no lock.
func (r *Recorder) runLockRenewal(a *activeSession) {
	if a.lock == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(recordingLockTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-a.lockStop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				err := a.lock.Extend(ctx, recordingLockTTL)
				cancel()
				if err != nil {
					slog.Warn("recorder.lock.extend_failed",
						"component", "recorder", "event", "lock.extend_failed", "error", err)
				}
			}
		}
	}()
}

func streamKey(sensor types.SensorKind, kind types.DataType) string {
	return string(sensor) + "_" + string(kind)
}

func checkFreeSpace(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.NewError(types.ErrInsufficientSpace, "cannot access data directory: "+err.Error())
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		// Can't determine free space; don't block recording on a stat
		// failure alone.
		return nil
	}
	if usage.Free < minFreeBytes {
		return types.NewError(types.ErrInsufficientSpace, "volume below free-space floor").
			WithDetails(map[string]any{"free_bytes": usage.Free, "floor_bytes": minFreeBytes})
	}
	return nil
}

// metaDoc is the on-disk shape of meta.json, matching the bit-exact
// compatibility schema.
type metaDoc struct {
	SessionID      string                       `json:"session_id"`
	SessionName    string                        `json:"session_name"`
	StartTime      time.Time                     `json:"start_time"`
	EndTime        *time.Time                    `json:"end_time,omitempty"`
	DurationS      float64                       `json:"duration_s,omitempty"`
	Device         metaDevice                    `json:"device"`
	Sensors        []types.SensorKind            `json:"sensors"`
	SamplingRates  map[types.SensorKind]float64  `json:"sampling_rates"`
	Files          []types.FileEntry             `json:"files,omitempty"`
	QualityMetrics map[string]any                `json:"quality_metrics,omitempty"`
	Notes          string                        `json:"notes,omitempty"`
	Tags           []string                      `json:"tags,omitempty"`
}

type metaDevice struct {
	ID string `json:"id"`
}

func (r *Recorder) writeMeta(a *activeSession) error {
	doc := metaDoc{
		SessionID:     a.meta.SessionID,
		SessionName:   a.meta.Name,
		StartTime:     a.meta.StartTime,
		Device:        metaDevice{ID: a.meta.DeviceID},
		SamplingRates: a.samplingHz,
		Notes:         a.meta.Notes,
		Tags:          a.meta.Tags,
	}
	for sensor := range a.samplingHz {
		doc.Sensors = append(doc.Sensors, sensor)
	}
	return writeJSONFile(filepath.Join(a.dir, "meta.json"), doc)
}

func (r *Recorder) writeMetaFinal(a *activeSession, files []types.FileEntry) error {
	doc := metaDoc{
		SessionID:     a.meta.SessionID,
		SessionName:   a.meta.Name,
		StartTime:     a.meta.StartTime,
		EndTime:       a.meta.EndTime,
		Device:        metaDevice{ID: a.meta.DeviceID},
		SamplingRates: a.samplingHz,
		Files:         files,
		Notes:         a.meta.Notes,
		Tags:          a.meta.Tags,
	}
	if a.meta.EndTime != nil {
		doc.DurationS = a.meta.EndTime.Sub(a.meta.StartTime).Seconds()
	}
	for sensor := range a.samplingHz {
		doc.Sensors = append(doc.Sensors, sensor)
	}
	return writeJSONFile(filepath.Join(a.dir, "meta.json"), doc)
}

func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
