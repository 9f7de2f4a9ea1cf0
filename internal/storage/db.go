package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cptspacemanspiff/battery-probe/internal/battery"
	"github.com/cptspacemanspiff/battery-probe/internal/collector"
)

// Absent battery values are stored as NULL.
const schema = `
CREATE TABLE IF NOT EXISTS battery_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	battery_id TEXT NOT NULL,
	vendor TEXT,
	model TEXT,
	serial_number TEXT,
	state TEXT NOT NULL,
	technology TEXT NOT NULL,
	energy REAL,
	energy_full REAL,
	energy_full_design REAL,
	energy_rate REAL,
	voltage REAL,
	time_to_full REAL,
	time_to_empty REAL,
	state_of_charge REAL,
	state_of_health REAL,
	temperature REAL,
	cycle_count INTEGER
);
CREATE INDEX IF NOT EXISTS idx_snapshot_ts ON battery_snapshots(timestamp);
CREATE INDEX IF NOT EXISTS idx_snapshot_battery ON battery_snapshots(battery_id, id);

CREATE TABLE IF NOT EXISTS sleep_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sleep_time INTEGER NOT NULL,
	wake_time INTEGER NOT NULL,
	type TEXT NOT NULL DEFAULT 'suspend'
);
CREATE INDEX IF NOT EXISTS idx_sleep_ts ON sleep_events(sleep_time);
`

const snapshotColumns = `timestamp, battery_id, vendor, model, serial_number, state, technology,
	energy, energy_full, energy_full_design, energy_rate, voltage,
	time_to_full, time_to_empty, state_of_charge, state_of_health, temperature, cycle_count`

// DB wraps a SQLite database of battery history.
type DB struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

// InsertSnapshots batch-inserts samples in a single transaction.
func (d *DB) InsertSnapshots(samples []collector.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO battery_snapshots (" + snapshotColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, s := range samples {
		b := s.Battery
		_, err := stmt.Exec(
			s.Timestamp, b.ID, nullable(b.Vendor), nullable(b.Model), nullable(b.SerialNumber),
			b.State.String(), b.Technology.String(),
			nullable(b.Energy), nullable(b.EnergyFull), nullable(b.EnergyFullDesign), nullable(b.EnergyRate), nullable(b.Voltage),
			nullable(b.TimeToFull), nullable(b.TimeToEmpty), nullable(b.StateOfCharge), nullable(b.StateOfHealth),
			nullable(b.Temperature), nullable(b.CycleCount),
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(r rowScanner) (collector.Sample, error) {
	var (
		s                     collector.Sample
		vendor, model, serial sql.NullString
		state, tech           string
		metrics               [10]sql.NullFloat64
		cycles                sql.NullInt64
	)
	err := r.Scan(
		&s.Timestamp, &s.ID, &vendor, &model, &serial, &state, &tech,
		&metrics[0], &metrics[1], &metrics[2], &metrics[3], &metrics[4],
		&metrics[5], &metrics[6], &metrics[7], &metrics[8], &metrics[9], &cycles,
	)
	if err != nil {
		return s, err
	}
	b := &s.Battery
	b.Vendor = nullString(vendor)
	b.Model = nullString(model)
	b.SerialNumber = nullString(serial)
	b.State = battery.ParseState(state)
	b.Technology = battery.ParseTechnology(tech)
	for i, p := range []**float64{
		&b.Energy, &b.EnergyFull, &b.EnergyFullDesign, &b.EnergyRate, &b.Voltage,
		&b.TimeToFull, &b.TimeToEmpty, &b.StateOfCharge, &b.StateOfHealth, &b.Temperature,
	} {
		if metrics[i].Valid {
			v := metrics[i].Float64
			*p = &v
		}
	}
	if cycles.Valid {
		n := uint32(cycles.Int64)
		b.CycleCount = &n
	}
	return s, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func (d *DB) querySnapshots(query string, args ...any) ([]collector.Sample, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var samples []collector.Sample
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// LatestSnapshots returns the most recent sample of every battery seen.
func (d *DB) LatestSnapshots() ([]collector.Sample, error) {
	return d.querySnapshots(
		"SELECT " + snapshotColumns + " FROM battery_snapshots WHERE id IN (SELECT MAX(id) FROM battery_snapshots GROUP BY battery_id) ORDER BY battery_id",
	)
}

// LatestSnapshot returns the most recent sample of one battery, or nil.
func (d *DB) LatestSnapshot(batteryID string) (*collector.Sample, error) {
	row := d.db.QueryRow(
		"SELECT "+snapshotColumns+" FROM battery_snapshots WHERE battery_id = ? ORDER BY id DESC LIMIT 1",
		batteryID,
	)
	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SnapshotsInRange returns samples within the given time range.
func (d *DB) SnapshotsInRange(from, to int64) ([]collector.Sample, error) {
	return d.querySnapshots(
		"SELECT "+snapshotColumns+" FROM battery_snapshots WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp, battery_id",
		from, to,
	)
}

// InsertSleepEvent inserts a sleep event.
func (d *DB) InsertSleepEvent(s collector.SleepEvent) error {
	_, err := d.db.Exec(
		"INSERT INTO sleep_events (sleep_time, wake_time, type) VALUES (?, ?, ?)",
		s.SleepTime, s.WakeTime, s.Type,
	)
	return err
}

// SleepEventsInRange returns sleep events overlapping the given time range.
func (d *DB) SleepEventsInRange(from, to int64) ([]collector.SleepEvent, error) {
	rows, err := d.db.Query(
		"SELECT sleep_time, wake_time, type FROM sleep_events WHERE wake_time >= ? AND sleep_time <= ? ORDER BY sleep_time",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []collector.SleepEvent
	for rows.Next() {
		var e collector.SleepEvent
		if err := rows.Scan(&e.SleepTime, &e.WakeTime, &e.Type); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
