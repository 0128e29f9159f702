// Package storage persists check-cycle and alert history for the dashboard.
// It is strictly an audit trail: alert dedup state lives in memory and is
// never read back from here.
package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS check_cycles (
  id              INTEGER PRIMARY KEY,
  started_at      DATETIME NOT NULL,
  truck_count     INTEGER NOT NULL,
  ancillary_count INTEGER NOT NULL,
  new_alerts      INTEGER NOT NULL,
  error           TEXT
);
CREATE INDEX IF NOT EXISTS idx_cycles_time ON check_cycles(started_at);
CREATE TABLE IF NOT EXISTS po_alerts (
  id              INTEGER PRIMARY KEY,
  emitted_at      DATETIME NOT NULL,
  po_number       TEXT NOT NULL,
  created_date    TEXT,
  ancillary_total REAL NOT NULL,
  pallets_in      INTEGER NOT NULL,
  diff            REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_time ON po_alerts(emitted_at);
CREATE INDEX IF NOT EXISTS idx_alerts_po ON po_alerts(po_number);
	`); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// RecordCycle stores the outcome of one check cycle.
func (d *DB) RecordCycle(ctx context.Context, c Cycle) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO check_cycles(started_at, truck_count, ancillary_count, new_alerts, error) VALUES(?,?,?,?,?)`,
		c.StartedAt.UTC().Format(timeLayout), c.TruckCount, c.AncillaryCount, c.NewAlerts, nullIfEmpty(c.Error))
	return err
}

// RecordAlert stores one emitted alert.
func (d *DB) RecordAlert(ctx context.Context, a AlertRecord) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO po_alerts(emitted_at, po_number, created_date, ancillary_total, pallets_in, diff) VALUES(?,?,?,?,?,?)`,
		a.EmittedAt.UTC().Format(timeLayout), a.PONumber, nullIfEmpty(a.CreatedDate), a.AncillaryTotal, a.PalletsIn, a.Diff)
	return err
}

// ListRecentCycles returns the most recent check cycles, newest first.
func (d *DB) ListRecentCycles(ctx context.Context, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx,
		`SELECT started_at, truck_count, ancillary_count, new_alerts, error FROM check_cycles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cycles := []Cycle{}
	for rows.Next() {
		var c Cycle
		var startedAt string
		var errText sql.NullString
		if err := rows.Scan(&startedAt, &c.TruckCount, &c.AncillaryCount, &c.NewAlerts, &errText); err != nil {
			return nil, err
		}
		c.StartedAt = parseTime(startedAt)
		c.Error = errText.String
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// ListRecentAlerts returns the most recent alerts, newest first.
func (d *DB) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx,
		`SELECT emitted_at, po_number, created_date, ancillary_total, pallets_in, diff FROM po_alerts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []AlertRecord{}
	for rows.Next() {
		var a AlertRecord
		var emittedAt string
		var created sql.NullString
		if err := rows.Scan(&emittedAt, &a.PONumber, &created, &a.AncillaryTotal, &a.PalletsIn, &a.Diff); err != nil {
			return nil, err
		}
		a.EmittedAt = parseTime(emittedAt)
		a.CreatedDate = created.String
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

const timeLayout = "2006-01-02 15:04:05"

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
