package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalstream/bioengine/internal/bus"
	"github.com/vitalstream/bioengine/internal/config"
	"github.com/vitalstream/bioengine/internal/db"
	"github.com/vitalstream/bioengine/internal/recorder"
)

func newTestEngineWithRecording(t *testing.T) (*Engine, *db.Connections, string) {
	t.Helper()
	conns := db.SetupTestDB(t)
	rec := recorder.New(conns, t.TempDir(), 8)
	e := New(&config.Config{}, nil, bus.NewBus(nil), rec, nil, conns)

	sessionID, err := rec.Start(recorder.StartMeta{Name: "trial", DeviceID: "DEV1"})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	e.mu.Lock()
	e.deviceState = DeviceConnected
	e.recording = RecordingActive
	e.sessionID = sessionID
	e.mu.Unlock()

	return e, conns, sessionID
}

func TestHandleDeviceDisconnectedUnexpectedSealsRecordingFailed(t *testing.T) {
	e, conns, sessionID := newTestEngineWithRecording(t)

	e.handleDeviceDisconnected(false)

	e.mu.Lock()
	assert.Equal(t, StateDegraded, e.state)
	assert.Equal(t, RecordingNone, e.recording)
	e.mu.Unlock()

	var row db.Session
	require.NoError(t, conns.DB.Where("id = ?", sessionID).First(&row).Error)
	assert.Equal(t, "failed", row.Status)
}

func TestHandleDeviceDisconnectedExpectedAlsoSealsRecordingFailed(t *testing.T) {
	e, conns, sessionID := newTestEngineWithRecording(t)

	e.handleDeviceDisconnected(true)

	e.mu.Lock()
	assert.NotEqual(t, StateDegraded, e.state)
	assert.Equal(t, RecordingNone, e.recording)
	e.mu.Unlock()

	var row db.Session
	require.NoError(t, conns.DB.Where("id = ?", sessionID).First(&row).Error)
	assert.Equal(t, "failed", row.Status)
}

func TestHandleDeviceDisconnectedNoRecordingDoesNotSealAnything(t *testing.T) {
	conns := db.SetupTestDB(t)
	rec := recorder.New(conns, t.TempDir(), 8)
	e := New(&config.Config{}, nil, bus.NewBus(nil), rec, nil, conns)

	e.mu.Lock()
	e.deviceState = DeviceConnected
	e.mu.Unlock()

	e.handleDeviceDisconnected(false)

	e.mu.Lock()
	assert.Equal(t, DeviceDisconnected, e.deviceState)
	assert.Equal(t, RecordingNone, e.recording)
	e.mu.Unlock()
}
