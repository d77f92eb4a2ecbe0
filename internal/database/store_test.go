package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// a single connection keeps the in-memory database alive for the test
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Initialize(":memory:", 1, 1)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db))
	return NewStore(db, zap.NewNop())
}

func TestRecordAndListEvents(t *testing.T) {
	store := newTestStore(t)

	store.RecordEvent("cycle-1", "609c.9f1e.aaaa", "10.0.0.5", "switch_discovered", "ICX7150-48P", true)
	store.RecordEvent("cycle-1", "609c.9f1e.aaaa", "10.0.0.5", "base_config_applied", "", true)
	store.RecordEvent("cycle-2", "609c.9f1e.bbbb", "10.0.0.7", "provisioning_error", "management: rejected", false)

	events, err := store.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Newest first
	assert.Equal(t, "provisioning_error", events[0].EventType)
	assert.False(t, events[0].Success)
	assert.Equal(t, "switch_discovered", events[2].EventType)
	assert.Equal(t, "609c.9f1e.aaaa", events[2].DeviceMAC.String)
}

func TestDeviceEventsFiltersByMAC(t *testing.T) {
	store := newTestStore(t)

	store.RecordEvent("cycle-1", "609c.9f1e.aaaa", "10.0.0.5", "switch_discovered", "", true)
	store.RecordEvent("cycle-1", "609c.9f1e.bbbb", "10.0.0.7", "switch_discovered", "", true)

	events, err := store.DeviceEvents("609c.9f1e.bbbb", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "10.0.0.7", events[0].DeviceIP.String)
}

func TestRecentEventsClampsLimit(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 3; i++ {
		store.RecordEvent("cycle-1", "609c.9f1e.aaaa", "10.0.0.5", "switch_discovered", "", true)
	}

	events, err := store.RecentEvents(-5)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LatestSnapshot()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, store.SaveSnapshot(`{"switches":{}}`, 0, 0))
	require.NoError(t, store.SaveSnapshot(`{"switches":{"609c.9f1e.aaaa":{}}}`, 1, 2))

	snap, err := store.LatestSnapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.SwitchCount)
	assert.Equal(t, 2, snap.APCount)
	assert.Contains(t, snap.Snapshot, "609c.9f1e.aaaa")
}
