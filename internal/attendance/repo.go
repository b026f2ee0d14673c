package attendance

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Store persists attendance records keyed by (date, subject, uid).
type Store interface {
	Upsert(ctx context.Context, rec Record) (Record, error)
	List(ctx context.Context, date string, scope Scope) ([]Record, error)
	Dates(ctx context.Context) ([]string, error)
	Subjects(ctx context.Context, date string) ([]string, error)
}

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `uid, name, roll_number, present, recorded_at, date, subject, time_slot, teacher_email, teacher_id, source`

// Upsert writes the record at its key. A re-scan overwrites the previous row.
func (r *Repository) Upsert(ctx context.Context, rec Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (date, subject, uid) DO UPDATE SET
			name = EXCLUDED.name,
			roll_number = EXCLUDED.roll_number,
			present = EXCLUDED.present,
			recorded_at = EXCLUDED.recorded_at,
			time_slot = EXCLUDED.time_slot,
			teacher_email = EXCLUDED.teacher_email,
			teacher_id = EXCLUDED.teacher_id,
			source = EXCLUDED.source
		RETURNING `+recordColumns,
		rec.UID, rec.Name, rec.RollNumber, rec.Present, rec.Timestamp, rec.Date, rec.Subject,
		rec.TimeSlot, rec.TeacherEmail, rec.TeacherID, rec.Source)
	var out Record
	if err := scanRecord(row, &out); err != nil {
		return Record{}, err
	}
	return out, nil
}

// List returns a scope's records, newest first. A time slot scope also matches sessions that
// were opened for the slot alone, whose subject column holds the slot.
func (r *Repository) List(ctx context.Context, date string, scope Scope) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance WHERE date = $1`
	args := []any{date}
	var clauses []string
	if scope.Subject != "" {
		args = append(args, scope.Subject)
		clauses = append(clauses, "subject = $"+strconv.Itoa(len(args)))
	}
	if scope.TimeSlot != "" {
		args = append(args, scope.TimeSlot)
		n := strconv.Itoa(len(args))
		clauses = append(clauses, "(time_slot = $"+n+" OR subject = $"+n+")")
	}
	if len(clauses) > 0 {
		query += " AND " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY recorded_at DESC, uid"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var rec Record
		if err := scanRecord(rows, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Dates returns every date with at least one record, oldest first.
func (r *Repository) Dates(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT date FROM attendance ORDER BY date`)
}

// Subjects returns the subjects (or slots) recorded on date.
func (r *Repository) Subjects(ctx context.Context, date string) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT subject FROM attendance WHERE date = $1 ORDER BY subject`, date)
}

func (r *Repository) distinct(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, rec *Record) error {
	return row.Scan(&rec.UID, &rec.Name, &rec.RollNumber, &rec.Present, &rec.Timestamp, &rec.Date,
		&rec.Subject, &rec.TimeSlot, &rec.TeacherEmail, &rec.TeacherID, &rec.Source)
}
