package scanlog

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Filter narrows a scan log listing.
type Filter struct {
	Date        string
	UnknownOnly bool
	Limit       int
}

// Store persists scan events.
type Store interface {
	Append(ctx context.Context, evt ScanEvent) error
	List(ctx context.Context, f Filter) ([]ScanEvent, error)
}

// Repository persists scan events in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Append stores an event once; redelivered messages are ignored.
func (r *Repository) Append(ctx context.Context, evt ScanEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scan_log (id, uid, known, date, subject, teacher_id, outcome, scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, evt.UID, evt.Known, evt.Date, evt.Subject, evt.TeacherID, evt.Outcome, evt.At)
	return err
}

// List returns the newest events first.
func (r *Repository) List(ctx context.Context, f Filter) ([]ScanEvent, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	query := `SELECT id, uid, known, date, subject, teacher_id, outcome, scanned_at FROM scan_log`
	var args []any
	var clauses []string
	if f.Date != "" {
		args = append(args, f.Date)
		clauses = append(clauses, "date = $"+strconv.Itoa(len(args)))
	}
	if f.UnknownOnly {
		clauses = append(clauses, "known = FALSE")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, f.Limit)
	query += " ORDER BY scanned_at DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ScanEvent{}
	for rows.Next() {
		var evt ScanEvent
		if err := rows.Scan(&evt.ID, &evt.UID, &evt.Known, &evt.Date, &evt.Subject, &evt.TeacherID, &evt.Outcome, &evt.At); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}
