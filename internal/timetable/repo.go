package timetable

import (
	"context"
	"database/sql"
)

// Store persists the per-day timetable.
type Store interface {
	// Day returns the stored entries in position order and whether the day exists at all.
	Day(ctx context.Context, day string) ([]Entry, bool, error)
	Replace(ctx context.Context, day string, entries []Entry) error
}

// Repository persists timetables in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Day(ctx context.Context, day string) ([]Entry, bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subject_name, time_slot FROM timetable_entries WHERE day = $1 ORDER BY position
	`, day)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SubjectName, &e.TimeSlot); err != nil {
			return nil, false, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, len(out) > 0, nil
}

// Replace swaps a day's entries in one transaction.
func (r *Repository) Replace(ctx context.Context, day string, entries []Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM timetable_entries WHERE day = $1`, day); err != nil {
		return err
	}
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO timetable_entries (day, position, subject_name, time_slot) VALUES ($1, $2, $3, $4)
		`, day, i, e.SubjectName, e.TimeSlot); err != nil {
			return err
		}
	}
	return tx.Commit()
}
