// Package persistence records the city's daily statistics and event log in
// SQLite. It is a history for observers, not a save file: a simulation cannot
// be restored from it.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mini-city/internal/engine"
	"github.com/talgya/mini-city/internal/events"
)

// DB wraps a SQLite connection for statistics history.
type DB struct {
	conn *sqlx.DB
}

// DayStats is one row of daily history.
type DayStats struct {
	Day           int     `db:"day" json:"day"`
	SimTime       float64 `db:"sim_time" json:"sim_time"`
	Population    int     `db:"population" json:"population"`
	Happiness     float64 `db:"happiness" json:"happiness"`
	Unemployment  float64 `db:"unemployment" json:"unemployment"`
	Funds         float64 `db:"funds" json:"funds"`
	GDP           float64 `db:"gdp" json:"gdp"`
	GrowthRate    float64 `db:"growth_rate" json:"growth_rate"`
	Inflation     float64 `db:"inflation" json:"inflation"`
	Businesses    int     `db:"businesses" json:"businesses"`
	Bankruptcies  int     `db:"bankruptcies" json:"bankruptcies"`
	Debt          float64 `db:"debt" json:"debt"`
	Congestion    float64 `db:"congestion" json:"congestion"`
	Accidents     int     `db:"accidents" json:"accidents"`
	Disasters     int     `db:"disasters" json:"disasters"`
	Pollution     float64 `db:"pollution" json:"pollution"`
	PowerCoverage float64 `db:"power_coverage" json:"power_coverage"`
	WaterCoverage float64 `db:"water_coverage" json:"water_coverage"`
	Weather       string  `db:"weather" json:"weather"`
	Snapshot      string  `db:"snapshot_json" json:"-"` // Full snapshot as JSON
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS daily_stats (
		day INTEGER PRIMARY KEY,
		sim_time REAL NOT NULL,
		population INTEGER NOT NULL,
		happiness REAL NOT NULL,
		unemployment REAL NOT NULL,
		funds REAL NOT NULL,
		gdp REAL NOT NULL,
		growth_rate REAL NOT NULL,
		inflation REAL NOT NULL,
		businesses INTEGER NOT NULL,
		bankruptcies INTEGER NOT NULL,
		debt REAL NOT NULL,
		congestion REAL NOT NULL,
		accidents INTEGER NOT NULL,
		disasters INTEGER NOT NULL,
		pollution REAL NOT NULL,
		power_coverage REAL NOT NULL,
		water_coverage REAL NOT NULL,
		weather TEXT NOT NULL,
		snapshot_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sim_time REAL NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_time ON events(sim_time);
	CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// DayStatsFrom flattens a snapshot into a history row.
func DayStatsFrom(snap engine.Snapshot) (DayStats, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return DayStats{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return DayStats{
		Day:           snap.Day,
		SimTime:       snap.Time,
		Population:    snap.Citizens.Population,
		Happiness:     snap.Citizens.AverageHappiness,
		Unemployment:  snap.Citizens.UnemploymentRate,
		Funds:         snap.Economy.Funds,
		GDP:           snap.Economy.GDP,
		GrowthRate:    snap.Economy.GrowthRate,
		Inflation:     snap.Economy.Inflation,
		Businesses:    snap.Economy.Businesses,
		Bankruptcies:  snap.Economy.Bankruptcies,
		Debt:          snap.Economy.Debt,
		Congestion:    snap.Traffic.Congestion,
		Accidents:     snap.Traffic.TotalAccidents,
		Disasters:     snap.Disasters.Active,
		Pollution:     snap.Resources.Pollution,
		PowerCoverage: snap.Resources.PowerCoverage,
		WaterCoverage: snap.Resources.WaterCoverage,
		Weather:       snap.Weather.Condition,
		Snapshot:      string(raw),
	}, nil
}

// SaveDay records the statistics of a finished day. Saving a day twice
// replaces the earlier row.
func (db *DB) SaveDay(snap engine.Snapshot) error {
	row, err := DayStatsFrom(snap)
	if err != nil {
		return err
	}
	_, err = db.conn.NamedExec(`INSERT OR REPLACE INTO daily_stats
		(day, sim_time, population, happiness, unemployment, funds, gdp, growth_rate,
		 inflation, businesses, bankruptcies, debt, congestion, accidents, disasters,
		 pollution, power_coverage, water_coverage, weather, snapshot_json)
		VALUES (:day, :sim_time, :population, :happiness, :unemployment, :funds, :gdp, :growth_rate,
		 :inflation, :businesses, :bankruptcies, :debt, :congestion, :accidents, :disasters,
		 :pollution, :power_coverage, :water_coverage, :weather, :snapshot_json)`, row)
	if err != nil {
		return fmt.Errorf("insert day %d: %w", row.Day, err)
	}
	slog.Debug("day saved", "day", row.Day, "population", row.Population)
	return nil
}

// RecentDays returns up to limit of the newest days, oldest first.
func (db *DB) RecentDays(limit int) ([]DayStats, error) {
	var days []DayStats
	err := db.conn.Select(&days,
		"SELECT * FROM (SELECT * FROM daily_stats ORDER BY day DESC LIMIT ?) ORDER BY day ASC",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select days: %w", err)
	}
	return days, nil
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT INTO events (sim_time, category, description) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range evs {
		if _, err := stmt.Exec(e.Time, e.Category, e.Description); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first. An empty
// category matches every event.
func (db *DB) RecentEvents(limit int, category string) ([]events.Event, error) {
	var evs []events.Event
	var err error
	if category == "" {
		err = db.conn.Select(&evs,
			"SELECT sim_time, category, description FROM events ORDER BY id DESC LIMIT ?",
			limit,
		)
	} else {
		err = db.conn.Select(&evs,
			"SELECT sim_time, category, description FROM events WHERE category = ? ORDER BY id DESC LIMIT ?",
			category, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	return evs, nil
}

// SaveMeta stores a key-value pair describing the run.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a run metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}
