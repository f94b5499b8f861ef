package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalstream/bioengine/internal/db"
	"github.com/vitalstream/bioengine/internal/types"
)

func newTestRecorder(t *testing.T) (*Recorder, *db.Connections, string) {
	t.Helper()
	conns := db.SetupTestDB(t)
	dir := t.TempDir()
	return New(conns, dir, 8), conns, dir
}

func TestStartCreatesSessionDirAndRow(t *testing.T) {
	r, conns, dir := newTestRecorder(t)

	id, err := r.Start(StartMeta{Name: "trial-1", DeviceID: "AA:BB", SamplingRates: map[types.SensorKind]float64{types.SensorEEG: 250}})
	require.NoError(t, err)
	assert.True(t, r.IsRecording())

	_, err = os.Stat(filepath.Join(dir, id, "meta.json"))
	require.NoError(t, err)

	var row db.Session
	require.NoError(t, conns.DB.Where("id = ?", id).First(&row).Error)
	assert.Equal(t, "recording", row.Status)
}

func TestStartFailsWhenAlreadyRecording(t *testing.T) {
	r, _, _ := newTestRecorder(t)
	_, err := r.Start(StartMeta{Name: "a", DeviceID: "AA:BB"})
	require.NoError(t, err)

	_, err = r.Start(StartMeta{Name: "b", DeviceID: "AA:BB"})
	require.Error(t, err)
	engErr, ok := err.(*types.EngineError)
	require.True(t, ok)
	assert.Equal(t, types.ErrRecordingInProgress, engErr.Code)
}

func TestAppendWritesNDJSONAndStopSealsSummary(t *testing.T) {
	r, _, dir := newTestRecorder(t)
	id, err := r.Start(StartMeta{Name: "trial", DeviceID: "DEV1"})
	require.NoError(t, err)

	r.Append(types.SensorEEG, types.DataRaw, types.EEGSample{TS: 0, CH1uV: 1})
	r.Append(types.SensorEEG, types.DataRaw, types.EEGSample{TS: 0.1, CH1uV: 2})
	r.Append(types.SensorPPG, types.DataProcessed, types.PPGWindow{WindowStart: 0, WindowEnd: 1})

	time.Sleep(50 * time.Millisecond)

	summary, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, types.SessionCompleted, summary.Session.Status)
	assert.Equal(t, int64(2), summary.SampleCounts[types.SensorEEG])
	assert.Equal(t, int64(1), summary.SampleCounts[types.SensorPPG])
	assert.False(t, r.IsRecording())

	data, err := os.ReadFile(filepath.Join(dir, id, "DEV1_eeg_raw.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ch1_uv":1`)
}

func TestStopWithoutActiveSessionFails(t *testing.T) {
	r, _, _ := newTestRecorder(t)
	_, err := r.Stop()
	require.Error(t, err)
	engErr, ok := err.(*types.EngineError)
	require.True(t, ok)
	assert.Equal(t, types.ErrSessionNotFound, engErr.Code)
}

func TestStopFailedSealsSessionFailed(t *testing.T) {
	r, conns, _ := newTestRecorder(t)
	id, err := r.Start(StartMeta{Name: "trial", DeviceID: "DEV1"})
	require.NoError(t, err)

	r.Append(types.SensorEEG, types.DataRaw, types.EEGSample{TS: 0, CH1uV: 1})
	time.Sleep(30 * time.Millisecond)

	summary, err := r.StopFailed("device disconnected while recording")
	require.NoError(t, err)
	assert.Equal(t, types.SessionFailed, summary.Session.Status)
	assert.False(t, r.IsRecording())

	var row db.Session
	require.NoError(t, conns.DB.Where("id = ?", id).First(&row).Error)
	assert.Equal(t, "failed", row.Status)
}

func TestOnOverflowSealsActiveSessionFailed(t *testing.T) {
	r, conns, _ := newTestRecorder(t)
	id, err := r.Start(StartMeta{Name: "trial", DeviceID: "DEV1"})
	require.NoError(t, err)

	r.onOverflow("DEV1_eeg_raw.json")
	assert.False(t, r.IsRecording())

	var row db.Session
	require.NoError(t, conns.DB.Where("id = ?", id).First(&row).Error)
	assert.Equal(t, "failed", row.Status)
}

func TestRecoverCrashedSealsStuckRecordingSession(t *testing.T) {
	conns := db.SetupTestDB(t)
	require.NoError(t, conns.DB.Create(&db.Session{ID: "s1", StartTime: time.Now(), Status: "recording"}).Error)

	require.NoError(t, RecoverCrashed(conns))

	var row db.Session
	require.NoError(t, conns.DB.Where("id = ?", "s1").First(&row).Error)
	assert.Equal(t, "failed", row.Status)
}

func TestRecoverCrashedNoOpWhenNoneRecording(t *testing.T) {
	conns := db.SetupTestDB(t)
	require.NoError(t, RecoverCrashed(conns))
}
