package exportstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalstream/bioengine/internal/db"
)

func TestCreateFindByID(t *testing.T) {
	conns := db.SetupTestDB(t)

	require.NoError(t, Create(conns, &db.Export{ID: "e1", SessionID: "s1", Status: "pending", Format: "csv"}))

	found, err := FindByID(conns, "e1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "pending", found.Status)
	assert.Equal(t, "csv", found.Format)
}

func TestFindByIDMissingReturnsNil(t *testing.T) {
	conns := db.SetupTestDB(t)
	found, err := FindByID(conns, "nope")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestClaimPendingMarksRunning(t *testing.T) {
	conns := db.SetupTestDB(t)
	require.NoError(t, Create(conns, &db.Export{ID: "e1", SessionID: "s1", Status: "pending", Format: "csv"}))

	claimed, err := ClaimPending(conns)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "e1", claimed.ID)
	assert.Equal(t, "running", claimed.Status)

	found, err := FindByID(conns, "e1")
	require.NoError(t, err)
	assert.Equal(t, "running", found.Status)
}

func TestClaimPendingReturnsNilWhenNoneWaiting(t *testing.T) {
	conns := db.SetupTestDB(t)
	require.NoError(t, Create(conns, &db.Export{ID: "e1", SessionID: "s1", Status: "completed", Format: "csv"}))

	claimed, err := ClaimPending(conns)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaimPendingPicksOldestFirst(t *testing.T) {
	conns := db.SetupTestDB(t)
	now := time.Now()
	require.NoError(t, conns.DB.Create(&db.Export{ID: "e2", SessionID: "s1", Status: "pending", Format: "csv", CreatedAt: now}).Error)
	require.NoError(t, conns.DB.Create(&db.Export{ID: "e1", SessionID: "s1", Status: "pending", Format: "csv", CreatedAt: now.Add(-time.Minute)}).Error)

	claimed, err := ClaimPending(conns)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "e1", claimed.ID)
}

func TestCompleteMarksExportDone(t *testing.T) {
	conns := db.SetupTestDB(t)
	require.NoError(t, Create(conns, &db.Export{ID: "e1", SessionID: "s1", Status: "running", Format: "csv"}))

	now := time.Now().Truncate(time.Second)
	require.NoError(t, Complete(conns, "e1", "/data/s1/export.csv", now))

	found, err := FindByID(conns, "e1")
	require.NoError(t, err)
	assert.Equal(t, "completed", found.Status)
	assert.Equal(t, "/data/s1/export.csv", found.FilePath)
	require.NotNil(t, found.CompletedAt)
}

func TestFailMarksExportWithError(t *testing.T) {
	conns := db.SetupTestDB(t)
	require.NoError(t, Create(conns, &db.Export{ID: "e1", SessionID: "s1", Status: "running", Format: "csv"}))

	require.NoError(t, Fail(conns, "e1", "disk full"))

	found, err := FindByID(conns, "e1")
	require.NoError(t, err)
	assert.Equal(t, "failed", found.Status)
	assert.Equal(t, "disk full", found.Error)
}

func TestFailStaleFailsOnlyRunningJobs(t *testing.T) {
	conns := db.SetupTestDB(t)
	require.NoError(t, Create(conns, &db.Export{ID: "e1", SessionID: "s1", Status: "running", Format: "csv"}))
	require.NoError(t, Create(conns, &db.Export{ID: "e2", SessionID: "s1", Status: "pending", Format: "csv"}))
	require.NoError(t, Create(conns, &db.Export{ID: "e3", SessionID: "s1", Status: "completed", Format: "csv"}))

	n, err := FailStale(conns)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e1, err := FindByID(conns, "e1")
	require.NoError(t, err)
	assert.Equal(t, "failed", e1.Status)
	assert.Equal(t, "interrupted by engine restart", e1.Error)

	e2, err := FindByID(conns, "e2")
	require.NoError(t, err)
	assert.Equal(t, "pending", e2.Status)

	e3, err := FindByID(conns, "e3")
	require.NoError(t, err)
	assert.Equal(t, "completed", e3.Status)
}

func TestFailStaleNoRunningJobsIsNoop(t *testing.T) {
	conns := db.SetupTestDB(t)
	require.NoError(t, Create(conns, &db.Export{ID: "e1", SessionID: "s1", Status: "pending", Format: "csv"}))

	n, err := FailStale(conns)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
