package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return &DB{Client: db}, db.PingContext(ctx)
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// Migrate creates the tables the service needs. Statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL CHECK (role IN ('admin', 'teacher')),
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS user_subjects (
		user_id  TEXT NOT NULL REFERENCES users(id),
		subject  TEXT NOT NULL,
		position INT  NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, subject)
	)`,
	`CREATE TABLE IF NOT EXISTS timetable_entries (
		day          TEXT NOT NULL,
		position     INT  NOT NULL,
		subject_name TEXT NOT NULL DEFAULT '',
		time_slot    TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (day, position)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		scope_key     TEXT PRIMARY KEY,
		teacher_id    TEXT NOT NULL,
		teacher_email TEXT NOT NULL DEFAULT '',
		teacher_name  TEXT NOT NULL DEFAULT '',
		date          TEXT NOT NULL,
		subject       TEXT NOT NULL,
		time_slot     TEXT NOT NULL DEFAULT '',
		is_active     BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS active_teacher (
		id            SMALLINT PRIMARY KEY CHECK (id = 1),
		teacher_id    TEXT NOT NULL DEFAULT '',
		teacher_email TEXT NOT NULL DEFAULT '',
		teacher_name  TEXT NOT NULL DEFAULT '',
		date          TEXT NOT NULL DEFAULT '',
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		date          TEXT NOT NULL,
		subject       TEXT NOT NULL,
		uid           TEXT NOT NULL,
		name          TEXT NOT NULL,
		roll_number   TEXT NOT NULL,
		present       BOOLEAN NOT NULL,
		recorded_at   TIMESTAMPTZ NOT NULL,
		time_slot     TEXT NOT NULL DEFAULT '',
		teacher_email TEXT NOT NULL DEFAULT '',
		teacher_id    TEXT NOT NULL DEFAULT '',
		source        TEXT NOT NULL DEFAULT 'device',
		PRIMARY KEY (date, subject, uid)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_slot ON attendance(date, time_slot)`,
	`CREATE TABLE IF NOT EXISTS scan_log (
		id          TEXT PRIMARY KEY,
		uid         TEXT NOT NULL,
		known       BOOLEAN NOT NULL,
		date        TEXT NOT NULL DEFAULT '',
		subject     TEXT NOT NULL DEFAULT '',
		teacher_id  TEXT NOT NULL DEFAULT '',
		outcome     TEXT NOT NULL,
		scanned_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scan_log_time ON scan_log(scanned_at)`,
}
