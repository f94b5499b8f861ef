package recorder

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalstream/bioengine/internal/db"
	"github.com/vitalstream/bioengine/internal/types"
)

func recordSession(t *testing.T, dir string, conns *db.Connections) string {
	t.Helper()
	r := New(conns, dir, 8)
	id, err := r.Start(StartMeta{Name: "trial", DeviceID: "DEV1"})
	require.NoError(t, err)
	r.Append(types.SensorEEG, types.DataRaw, types.EEGSample{TS: 0, CH1uV: 10})
	r.Append(types.SensorEEG, types.DataRaw, types.EEGSample{TS: 0.1, CH1uV: 20})
	time.Sleep(30 * time.Millisecond)
	_, err = r.Stop()
	require.NoError(t, err)
	return id
}

func TestRequestExportUnknownSessionFails(t *testing.T) {
	conns := db.SetupTestDB(t)
	e := NewExporter(conns, t.TempDir())

	_, err := e.RequestExport("nope", types.ExportJSON, types.ExportOptions{})
	require.Error(t, err)
	engErr, ok := err.(*types.EngineError)
	require.True(t, ok)
	assert.Equal(t, types.ErrSessionNotFound, engErr.Code)
}

func TestRequestExportInvalidFormatFails(t *testing.T) {
	conns := db.SetupTestDB(t)
	dir := t.TempDir()
	sessionID := recordSession(t, dir, conns)

	e := NewExporter(conns, dir)
	_, err := e.RequestExport(sessionID, types.ExportFormat("xml"), types.ExportOptions{})
	require.Error(t, err)
	engErr, ok := err.(*types.EngineError)
	require.True(t, ok)
	assert.Equal(t, types.ErrInvalidFormat, engErr.Code)
}

func TestExportJSONRoundTrip(t *testing.T) {
	conns := db.SetupTestDB(t)
	dir := t.TempDir()
	sessionID := recordSession(t, dir, conns)

	e := NewExporter(conns, dir)
	exportID, err := e.RequestExport(sessionID, types.ExportJSON, types.ExportOptions{})
	require.NoError(t, err)

	e.processOne()

	export, err := e.GetExport(exportID)
	require.NoError(t, err)
	require.NotNil(t, export)
	assert.Equal(t, types.ExportCompleted, export.Status)
	require.NotEmpty(t, export.FilePath)

	data, err := os.ReadFile(export.FilePath)
	require.NoError(t, err)
	var bundle map[string][]map[string]any
	require.NoError(t, json.Unmarshal(data, &bundle))
	assert.Len(t, bundle["eeg_raw"], 2)
}

func TestExportCSVRoundTrip(t *testing.T) {
	conns := db.SetupTestDB(t)
	dir := t.TempDir()
	sessionID := recordSession(t, dir, conns)

	e := NewExporter(conns, dir)
	exportID, err := e.RequestExport(sessionID, types.ExportCSV, types.ExportOptions{})
	require.NoError(t, err)

	e.processOne()

	export, err := e.GetExport(exportID)
	require.NoError(t, err)
	require.NotNil(t, export)
	assert.Equal(t, types.ExportCompleted, export.Status)

	info, err := os.Stat(export.FilePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportCSVEEGRawColumnOrder(t *testing.T) {
	conns := db.SetupTestDB(t)
	dir := t.TempDir()
	sessionID := recordSession(t, dir, conns)

	e := NewExporter(conns, dir)
	exportID, err := e.RequestExport(sessionID, types.ExportCSV, types.ExportOptions{
		Sensors: []types.SensorKind{types.SensorEEG}, DataTypes: []types.DataType{types.DataRaw},
	})
	require.NoError(t, err)
	e.processOne()

	export, err := e.GetExport(exportID)
	require.NoError(t, err)
	require.NotNil(t, export)
	require.Equal(t, types.ExportCompleted, export.Status)

	zr, err := zip.OpenReader(export.FilePath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "eeg_raw.csv", zr.File[0].Name)

	f, err := zr.File[0].Open()
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, []string{"timestamp", "CH1", "CH2"}, rows[0])
	assert.Len(t, rows, 3) // header + 2 samples
}

func TestGetExportUnknownReturnsNil(t *testing.T) {
	conns := db.SetupTestDB(t)
	e := NewExporter(conns, t.TempDir())
	export, err := e.GetExport("nope")
	require.NoError(t, err)
	assert.Nil(t, export)
}
