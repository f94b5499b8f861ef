package recorder

import (
	"archive/zip"
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitalstream/bioengine/internal/db"
	"github.com/vitalstream/bioengine/internal/db/exportstore"
	"github.com/vitalstream/bioengine/internal/db/sessionstore"
	"github.com/vitalstream/bioengine/internal/types"
)

// pollInterval is how often the export worker checks for pending jobs.
const pollInterval = 500 * time.Millisecond

// Exporter runs asynchronous session exports. Persisted job rows carry
// only {id, session_id, status, format, file_path, error, timestamps} per the
// relational schema; per-export options (sensor/data-type/time filters)
// are not part of that schema, so they're kept in-process for the job's
// lifetime — fine for the single-process deployment this engine targets.
type Exporter struct {
	conns   *db.Connections
	dataDir string

	mu      sync.Mutex
	pending map[string]types.ExportOptions
}

// NewExporter builds an Exporter rooted at dataDir (the same root the
// Recorder writes sessions under).
func NewExporter(conns *db.Connections, dataDir string) *Exporter {
	return &Exporter{conns: conns, dataDir: dataDir, pending: make(map[string]types.ExportOptions)}
}

// RequestExport validates the session and format, inserts a pending export
// row, and returns its id. The actual conversion runs asynchronously on
// the Exporter's worker loop.
func (e *Exporter) RequestExport(sessionID string, format types.ExportFormat, opts types.ExportOptions) (string, error) {
	session, err := sessionstore.FindByID(e.conns, sessionID)
	if err != nil {
		return "", fmt.Errorf("exporter: look up session: %w", err)
	}
	if session == nil {
		return "", types.NewError(types.ErrSessionNotFound, "session not found: "+sessionID)
	}
	switch format {
	case types.ExportJSON, types.ExportCSV, types.ExportMAT, types.ExportEDF:
	default:
		return "", types.NewError(types.ErrInvalidFormat, "unsupported export format: "+string(format))
	}

	id := uuid.NewString()
	row := &db.Export{ID: id, SessionID: sessionID, Status: string(types.ExportPending), Format: string(format)}
	if err := exportstore.Create(e.conns, row); err != nil {
		return "", fmt.Errorf("exporter: create export row: %w", err)
	}

	e.mu.Lock()
	e.pending[id] = opts
	e.mu.Unlock()

	slog.Info("recorder.export.requested",
		"component", "recorder", "event", "export.requested", "export_id", id, "session_id", sessionID, "format", format)
	return id, nil
}

// GetExport returns the export job's current state, or nil if unknown.
func (e *Exporter) GetExport(id string) (*types.Export, error) {
	row, err := exportstore.FindByID(e.conns, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return &types.Export{
		ExportID: row.ID, SessionID: row.SessionID, Status: types.ExportStatus(row.Status),
		Format: types.ExportFormat(row.Format), FilePath: row.FilePath, CreatedAt: row.CreatedAt,
		CompletedAt: row.CompletedAt, Error: row.Error,
	}, nil
}

// Run drains pending export jobs until ctx is cancelled. One job is
// processed at a time; this is adequate for the single-process deployment
// the engine targets, and the underlying claim is still safe under a
// future multi-worker Postgres deployment.
func (e *Exporter) Run(ctx context.Context) {
	tk := time.NewTicker(pollInterval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			e.processOne()
		}
	}
}

func (e *Exporter) processOne() {
	job, err := exportstore.ClaimPending(e.conns)
	if err != nil {
		slog.Error("recorder.export.claim_failed",
			"component", "recorder", "event", "export.claim_failed", "error", err)
		return
	}
	if job == nil {
		return
	}

	e.mu.Lock()
	opts := e.pending[job.ID]
	delete(e.pending, job.ID)
	e.mu.Unlock()

	path, err := e.convert(job.SessionID, job.ID, types.ExportFormat(job.Format), opts)
	if err != nil {
		slog.Error("recorder.export.failed",
			"component", "recorder", "event", "export.failed", "export_id", job.ID, "error", err)
		if ferr := exportstore.Fail(e.conns, job.ID, err.Error()); ferr != nil {
			slog.Error("recorder.export.fail_write_failed",
				"component", "recorder", "event", "export.fail_write_failed", "export_id", job.ID, "error", ferr)
		}
		return
	}

	if err := exportstore.Complete(e.conns, job.ID, path, time.Now()); err != nil {
		slog.Error("recorder.export.complete_write_failed",
			"component", "recorder", "event", "export.complete_write_failed", "export_id", job.ID, "error", err)
		return
	}
	slog.Info("recorder.export.completed",
		"component", "recorder", "event", "export.completed", "export_id", job.ID, "path", path)
}

// convert reads the session's ndjson streams, filters them by opts, and
// writes a single export artifact, returning its path.
func (e *Exporter) convert(sessionID, exportID string, format types.ExportFormat, opts types.ExportOptions) (string, error) {
	session, err := sessionstore.FindByID(e.conns, sessionID)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", fmt.Errorf("session %s vanished mid-export", sessionID)
	}

	streams, err := e.selectStreams(session, opts)
	if err != nil {
		return "", err
	}

	outDir := filepath.Join(e.dataDir, "exports")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}

	switch format {
	case types.ExportJSON:
		return e.writeJSONExport(outDir, exportID, streams)
	case types.ExportCSV:
		return e.writeCSVExport(outDir, exportID, streams)
	case types.ExportMAT:
		return e.writeMATExport(outDir, exportID, streams)
	case types.ExportEDF:
		return e.writeEDFExport(outDir, exportID, streams)
	default:
		return "", types.NewError(types.ErrInvalidFormat, "unsupported export format: "+string(format))
	}
}

// streamRecords holds the decoded ndjson lines for one (sensor, data
// type) file, filtered to the requested time range.
type streamRecords struct {
	sensor  types.SensorKind
	kind    types.DataType
	records []map[string]any
}

func (e *Exporter) selectStreams(session *db.Session, opts types.ExportOptions) ([]streamRecords, error) {
	wantSensor := func(s types.SensorKind) bool {
		if len(opts.Sensors) == 0 {
			return true
		}
		for _, want := range opts.Sensors {
			if want == s {
				return true
			}
		}
		return false
	}
	wantKind := func(k types.DataType) bool {
		if len(opts.DataTypes) == 0 {
			return true
		}
		for _, want := range opts.DataTypes {
			if want == k {
				return true
			}
		}
		return false
	}

	entries, err := os.ReadDir(session.RootDir)
	if err != nil {
		return nil, err
	}

	var out []streamRecords
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "meta.json" {
			continue
		}
		sensor, kind, ok := parseStreamFilename(entry.Name())
		if !ok || !wantSensor(sensor) || !wantKind(kind) {
			continue
		}
		records, err := readNDJSONFiltered(filepath.Join(session.RootDir, entry.Name()), opts)
		if err != nil {
			return nil, err
		}
		out = append(out, streamRecords{sensor: sensor, kind: kind, records: records})
	}
	return out, nil
}

// parseStreamFilename recovers (sensor, data type) from a
// "<device_id>_<sensor>_<kind>.json" filename.
func parseStreamFilename(name string) (types.SensorKind, types.DataType, bool) {
	name = trimSuffix(name, ".json")
	for _, sensor := range []types.SensorKind{types.SensorEEG, types.SensorPPG, types.SensorACC, types.SensorBattery} {
		suffix := "_" + string(sensor) + "_"
		idx := indexOf(name, suffix)
		if idx < 0 {
			continue
		}
		kind := types.DataType(name[idx+len(suffix):])
		return sensor, kind, true
	}
	return "", "", false
}

func trimSuffix(s, suffix string) string {
	if len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func readNDJSONFiltered(path string, opts types.ExportOptions) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		if withinRange(rec, opts) {
			out = append(out, rec)
		}
	}
	return out, sc.Err()
}

func withinRange(rec map[string]any, opts types.ExportOptions) bool {
	if opts.TimeStart == nil && opts.TimeEnd == nil {
		return true
	}
	ts, ok := rec["ts"].(float64)
	if !ok {
		return true
	}
	t := time.Unix(0, int64(ts*float64(time.Second)))
	if opts.TimeStart != nil && t.Before(*opts.TimeStart) {
		return false
	}
	if opts.TimeEnd != nil && t.After(*opts.TimeEnd) {
		return false
	}
	return true
}

func (e *Exporter) writeJSONExport(outDir, exportID string, streams []streamRecords) (string, error) {
	path := filepath.Join(outDir, exportID+".json")
	bundle := make(map[string][]map[string]any, len(streams))
	for _, s := range streams {
		bundle[streamKey(s.sensor, s.kind)] = s.records
	}
	b, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// writeCSVExport bundles one CSV per stream into a zip archive, since an
// export spans multiple heterogeneous streams but the job persists a
// single file path.
func (e *Exporter) writeCSVExport(outDir, exportID string, streams []streamRecords) (string, error) {
	path := filepath.Join(outDir, exportID+".zip")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	for _, s := range streams {
		if err := writeCSVEntry(zw, streamKey(s.sensor, s.kind)+".csv", s.sensor, s.kind, s.records); err != nil {
			return "", err
		}
	}
	return path, nil
}

func writeCSVEntry(zw *zip.Writer, name string, sensor types.SensorKind, kind types.DataType, records []map[string]any) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	cw := newCSVWriter(w)
	return cw.writeRecords(sensor, kind, records)
}
