package devicestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalstream/bioengine/internal/db"
)

func TestUpsertThenFindByAddress(t *testing.T) {
	conns := db.SetupTestDB(t)
	now := time.Now().Truncate(time.Second)

	require.NoError(t, Upsert(conns, "AA:BB:CC:DD:EE:01", "BioStrap-01", now))

	found, err := FindByAddress(conns, "AA:BB:CC:DD:EE:01")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "BioStrap-01", found.Name)
}

func TestFindByAddressMissingReturnsNil(t *testing.T) {
	conns := db.SetupTestDB(t)
	found, err := FindByAddress(conns, "nope")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestMostRecentPicksLatestLastSeen(t *testing.T) {
	conns := db.SetupTestDB(t)
	now := time.Now().Truncate(time.Second)

	require.NoError(t, Upsert(conns, "addr-old", "old", now.Add(-time.Hour)))
	require.NoError(t, Upsert(conns, "addr-new", "new", now))

	found, err := MostRecent(conns)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "addr-new", found.Address)
}
