package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists sessions, transcript fragments, checklist state and the
// SOP catalog in a single SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer connection sidesteps SQLITE_BUSY under the worker pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS workstations (
	workstation_id TEXT PRIMARY KEY,
	device_id      TEXT NOT NULL UNIQUE,
	location       TEXT NOT NULL DEFAULT '',
	is_active      INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id     TEXT PRIMARY KEY,
	workstation_id TEXT NOT NULL REFERENCES workstations(workstation_id),
	operator_id    TEXT,
	start_time     INTEGER NOT NULL,
	end_time       INTEGER,
	duration_sec   INTEGER,
	service_id     TEXT,
	service_label  TEXT,
	confidence     REAL NOT NULL DEFAULT 0,
	transcript     TEXT,
	is_normal_flow INTEGER NOT NULL DEFAULT 1,
	reason         TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_open
	ON sessions(workstation_id) WHERE end_time IS NULL;

CREATE TABLE IF NOT EXISTS fragments (
	fragment_id TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(session_id),
	seq         INTEGER NOT NULL,
	text        TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	UNIQUE(session_id, seq)
);

CREATE TABLE IF NOT EXISTS checklist_items (
	checklist_id TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES sessions(session_id),
	step_id      TEXT NOT NULL,
	position     INTEGER NOT NULL,
	label        TEXT NOT NULL DEFAULT '',
	checked      INTEGER NOT NULL DEFAULT 0,
	checked_at   INTEGER,
	UNIQUE(session_id, step_id)
);

CREATE TABLE IF NOT EXISTS sop_services (
	service_id   TEXT PRIMARY KEY,
	service_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sop_steps (
	step_id     TEXT PRIMARY KEY,
	service_id  TEXT NOT NULL REFERENCES sop_services(service_id),
	step_number INTEGER NOT NULL,
	label       TEXT NOT NULL
);
`

// nextID allocates the next sequential human-legible id for a table, e.g.
// SR0001 -> SR0002. Must run inside the transaction that inserts the row.
func nextID(tx *sql.Tx, table, column, prefix string) (string, error) {
	var last sql.NullString
	// Numeric ordering: a lexical max would stall at the 4-digit rollover
	// ("SR9999" sorts above "SR10000").
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY CAST(substr(%s, %d) AS INTEGER) DESC LIMIT 1",
		column, table, column, len(prefix)+1)
	if err := tx.QueryRow(query).Scan(&last); err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("last id for %s: %w", table, err)
	}
	seq := 0
	if last.Valid && strings.HasPrefix(last.String, prefix) {
		n, err := strconv.Atoi(last.String[len(prefix):])
		if err != nil {
			return "", fmt.Errorf("malformed id %q in %s", last.String, table)
		}
		seq = n
	}
	return fmt.Sprintf("%s%04d", prefix, seq+1), nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
