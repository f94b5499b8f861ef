package recorder

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalstream/bioengine/internal/db"
	"github.com/vitalstream/bioengine/internal/types"
)

// newRedisBackedConns builds two *db.Connections sharing the same sqlite
// store and the same miniredis instance, standing in for two bioengine
// processes pointed at one shared Postgres+Redis deployment.
func newRedisBackedConns(t *testing.T) (*db.Connections, *db.Connections) {
	t.Helper()
	mr := miniredis.RunT(t)

	sqliteConns := db.SetupTestDB(t)

	redisA, err := db.NewRedisClient("redis://"+mr.Addr(), "test:")
	require.NoError(t, err)
	redisB, err := db.NewRedisClient("redis://"+mr.Addr(), "test:")
	require.NoError(t, err)

	connsA := db.NewConnections(sqliteConns.DB, redisA)
	connsB := db.NewConnections(sqliteConns.DB, redisB)
	return connsA, connsB
}

func TestStartRefusesSameDeviceAlreadyRecordingOnAnotherProcess(t *testing.T) {
	connsA, connsB := newRedisBackedConns(t)
	dir := t.TempDir()

	recA := New(connsA, dir, 8)
	recB := New(connsB, dir, 8)

	_, err := recA.Start(StartMeta{Name: "a", DeviceID: "AA:BB:CC", SamplingRates: map[types.SensorKind]float64{types.SensorEEG: 250}})
	require.NoError(t, err)

	_, err = recB.Start(StartMeta{Name: "b", DeviceID: "AA:BB:CC", SamplingRates: map[types.SensorKind]float64{types.SensorEEG: 250}})
	require.Error(t, err)
	domainErr, ok := err.(*types.EngineError)
	require.True(t, ok, "expected a *types.EngineError, got %T", err)
	assert.Equal(t, types.ErrRecordingInProgress, domainErr.Code)
}

func TestStartAllowsDifferentDevicesOnDifferentProcesses(t *testing.T) {
	connsA, connsB := newRedisBackedConns(t)
	dir := t.TempDir()

	recA := New(connsA, dir, 8)
	recB := New(connsB, dir, 8)

	_, err := recA.Start(StartMeta{Name: "a", DeviceID: "AA:BB:CC", SamplingRates: map[types.SensorKind]float64{types.SensorEEG: 250}})
	require.NoError(t, err)

	_, err = recB.Start(StartMeta{Name: "b", DeviceID: "DD:EE:FF", SamplingRates: map[types.SensorKind]float64{types.SensorEEG: 250}})
	require.NoError(t, err)
}

func TestStopReleasesLockForNextRecording(t *testing.T) {
	connsA, connsB := newRedisBackedConns(t)
	dir := t.TempDir()

	recA := New(connsA, dir, 8)
	recB := New(connsB, dir, 8)

	_, err := recA.Start(StartMeta{Name: "a", DeviceID: "AA:BB:CC", SamplingRates: map[types.SensorKind]float64{types.SensorEEG: 250}})
	require.NoError(t, err)
	_, err = recA.Stop()
	require.NoError(t, err)

	_, err = recB.Start(StartMeta{Name: "b", DeviceID: "AA:BB:CC", SamplingRates: map[types.SensorKind]float64{types.SensorEEG: 250}})
	require.NoError(t, err)
}
