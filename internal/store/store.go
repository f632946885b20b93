// Package store persists benchmark runs in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// RunRow is one headless benchmark run.
type RunRow struct {
	ID            int64
	Mode          string // "sap" or "bruteforce"
	Entities      int
	Ticks         int
	SortFrequency int
	InsertMode    string
	NsPerTick     float64
	Pairs         uint64
	CreatedAt     time.Time
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mode TEXT NOT NULL,
		entities INTEGER NOT NULL,
		ticks INTEGER NOT NULL,
		sort_frequency INTEGER NOT NULL DEFAULT 1,
		insert_mode TEXT NOT NULL DEFAULT 'sorted',
		ns_per_tick REAL NOT NULL,
		pairs INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_mode ON runs(mode, entities);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// RecordRun stores a run and returns its ID.
func (db *DB) RecordRun(r RunRow) (int64, error) {
	res, err := db.conn.Exec(
		`INSERT INTO runs (mode, entities, ticks, sort_frequency, insert_mode, ns_per_tick, pairs)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Mode, r.Entities, r.Ticks, r.SortFrequency, r.InsertMode, r.NsPerTick, int64(r.Pairs),
	)
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}
	return res.LastInsertId()
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]RunRow, error) {
	rows, err := db.conn.Query(
		`SELECT id, mode, entities, ticks, sort_frequency, insert_mode, ns_per_tick, pairs, created_at
		 FROM runs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RunRow
	for rows.Next() {
		var r RunRow
		var pairs int64
		if err := rows.Scan(&r.ID, &r.Mode, &r.Entities, &r.Ticks, &r.SortFrequency,
			&r.InsertMode, &r.NsPerTick, &pairs, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Pairs = uint64(pairs)
		result = append(result, r)
	}
	return result, rows.Err()
}

// BestRun returns the fastest run for a mode and entity count, nil if none.
func (db *DB) BestRun(mode string, entities int) (*RunRow, error) {
	row := db.conn.QueryRow(
		`SELECT id, mode, entities, ticks, sort_frequency, insert_mode, ns_per_tick, pairs, created_at
		 FROM runs WHERE mode = ? AND entities = ? ORDER BY ns_per_tick ASC LIMIT 1`,
		mode, entities,
	)
	r := &RunRow{}
	var pairs int64
	err := row.Scan(&r.ID, &r.Mode, &r.Entities, &r.Ticks, &r.SortFrequency,
		&r.InsertMode, &r.NsPerTick, &pairs, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Pairs = uint64(pairs)
	return r, nil
}
