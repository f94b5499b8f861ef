package sessionstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalstream/bioengine/internal/db"
)

func TestCreateFindSeal(t *testing.T) {
	conns := db.SetupTestDB(t)
	start := time.Now().Truncate(time.Second)

	s := &db.Session{ID: "s1", Name: "T1", StartTime: start, Status: "recording", DeviceID: "AA:BB"}
	require.NoError(t, Create(conns, s))

	found, err := FindByID(conns, "s1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "recording", found.Status)

	end := start.Add(3 * time.Second)
	require.NoError(t, SealCompleted(conns, "s1", end))

	found, err = FindByID(conns, "s1")
	require.NoError(t, err)
	assert.Equal(t, "completed", found.Status)
	require.NotNil(t, found.EndTime)
}

func TestFindActiveRecordingOnlyOne(t *testing.T) {
	conns := db.SetupTestDB(t)
	now := time.Now()

	require.NoError(t, Create(conns, &db.Session{ID: "s1", StartTime: now, Status: "recording"}))
	require.NoError(t, Create(conns, &db.Session{ID: "s2", StartTime: now, Status: "completed"}))

	active, err := FindActiveRecording(conns)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "s1", active.ID)
}

func TestListFiltersByStatus(t *testing.T) {
	conns := db.SetupTestDB(t)
	now := time.Now()
	require.NoError(t, Create(conns, &db.Session{ID: "s1", StartTime: now, Status: "completed"}))
	require.NoError(t, Create(conns, &db.Session{ID: "s2", StartTime: now, Status: "failed"}))

	results, err := List(conns, Filter{Status: "completed"}, Page{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "s1", results[0].ID)
}

func TestTagsRoundTrip(t *testing.T) {
	encoded, err := EncodeTags([]string{"a", "b"})
	require.NoError(t, err)
	decoded, err := DecodeTags(encoded)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, decoded)
}

func TestDeleteRemovesSession(t *testing.T) {
	conns := db.SetupTestDB(t)
	require.NoError(t, Create(conns, &db.Session{ID: "s1", StartTime: time.Now(), Status: "completed"}))
	require.NoError(t, Delete(conns, "s1"))

	found, err := FindByID(conns, "s1")
	require.NoError(t, err)
	assert.Nil(t, found)
}
