package persistence

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/engine"
	"github.com/talgya/mini-city/internal/events"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "city.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func daySnapshot(day, population int, funds float64) engine.Snapshot {
	var snap engine.Snapshot
	snap.Day = day
	snap.Time = float64(day) * 1440
	snap.Citizens.Population = population
	snap.Economy.Funds = funds
	snap.Weather.Condition = "rain"
	return snap
}

func TestSaveAndReadDays(t *testing.T) {
	db := openTestDB(t)
	for day := 1; day <= 5; day++ {
		require.NoError(t, db.SaveDay(daySnapshot(day, 100*day, 1000)))
	}
	// Re-saving a day replaces it.
	require.NoError(t, db.SaveDay(daySnapshot(5, 42, 7)))

	days, err := db.RecentDays(3)
	require.NoError(t, err)
	require.Len(t, days, 3)

	got := []int{days[0].Day, days[1].Day, days[2].Day}
	if diff := cmp.Diff([]int{3, 4, 5}, got); diff != "" {
		t.Errorf("days mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 42, days[2].Population)
	assert.Equal(t, 7.0, days[2].Funds)
	assert.Equal(t, "rain", days[2].Weather)

	var snap engine.Snapshot
	require.NoError(t, json.Unmarshal([]byte(days[2].Snapshot), &snap))
	assert.Equal(t, 42, snap.Citizens.Population)
}

func TestEventsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveEvents(nil))
	require.NoError(t, db.SaveEvents([]events.Event{
		{Time: 1, Category: events.CategoryTraffic, Description: "minor accident on road_1"},
		{Time: 2, Category: events.CategoryEconomy, Description: "loan taken"},
		{Time: 3, Category: events.CategoryTraffic, Description: "severe accident on road_2"},
	}))

	all, err := db.RecentEvents(10, "")
	require.NoError(t, err)
	want := []events.Event{
		{Time: 3, Category: events.CategoryTraffic, Description: "severe accident on road_2"},
		{Time: 2, Category: events.CategoryEconomy, Description: "loan taken"},
		{Time: 1, Category: events.CategoryTraffic, Description: "minor accident on road_1"},
	}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	traffic, err := db.RecentEvents(1, events.CategoryTraffic)
	require.NoError(t, err)
	require.Len(t, traffic, 1)
	assert.Equal(t, 3.0, traffic[0].Time)
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetMeta("seed")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, db.SaveMeta("seed", "42"))
	require.NoError(t, db.SaveMeta("seed", "43"))
	v, err := db.GetMeta("seed")
	require.NoError(t, err)
	assert.Equal(t, "43", v)
}
