package session

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Store persists scope records and the current-teacher pointer.
type Store interface {
	Upsert(ctx context.Context, key string, s Session) (Session, error)
	Get(ctx context.Context, key string) (*Session, error)
	Deactivate(ctx context.Context, key string, at time.Time) (*Session, error)
	SetCurrent(ctx context.Context, cur CurrentTeacher) error
	Current(ctx context.Context) (*CurrentTeacher, error)
	ClearCurrent(ctx context.Context, at time.Time) error
}

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `teacher_id, teacher_email, teacher_name, date, subject, time_slot, is_active, created_at, updated_at`

// Upsert overwrites the scope record. created_at survives overwrites.
func (r *Repository) Upsert(ctx context.Context, key string, s Session) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (scope_key, `+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (scope_key) DO UPDATE SET
			teacher_id = EXCLUDED.teacher_id,
			teacher_email = EXCLUDED.teacher_email,
			teacher_name = EXCLUDED.teacher_name,
			date = EXCLUDED.date,
			subject = EXCLUDED.subject,
			time_slot = EXCLUDED.time_slot,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
		RETURNING `+sessionColumns,
		key, s.TeacherID, s.TeacherEmail, s.TeacherName, s.Date, s.Subject, s.TimeSlot, s.IsActive, s.CreatedAt, s.UpdatedAt)
	return scanSession(row)
}

// Get returns the scope record or nil.
func (r *Repository) Get(ctx context.Context, key string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE scope_key = $1`, key)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Deactivate flips is_active off and keeps the rest as a trace. Returns nil when the scope
// has no record.
func (r *Repository) Deactivate(ctx context.Context, key string, at time.Time) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE sessions SET is_active = FALSE, updated_at = $2
		WHERE scope_key = $1
		RETURNING `+sessionColumns, key, at)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// SetCurrent points ingestion at a teacher's scope.
func (r *Repository) SetCurrent(ctx context.Context, cur CurrentTeacher) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO active_teacher (id, teacher_id, teacher_email, teacher_name, date, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			teacher_id = EXCLUDED.teacher_id,
			teacher_email = EXCLUDED.teacher_email,
			teacher_name = EXCLUDED.teacher_name,
			date = EXCLUDED.date,
			updated_at = EXCLUDED.updated_at
	`, cur.TeacherID, cur.TeacherEmail, cur.TeacherName, cur.Date, cur.UpdatedAt)
	return err
}

// Current returns the pointer, or nil when unset or cleared.
func (r *Repository) Current(ctx context.Context) (*CurrentTeacher, error) {
	var cur CurrentTeacher
	err := r.db.QueryRowContext(ctx, `
		SELECT teacher_id, teacher_email, teacher_name, date, updated_at FROM active_teacher WHERE id = 1
	`).Scan(&cur.TeacherID, &cur.TeacherEmail, &cur.TeacherName, &cur.Date, &cur.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if cur.TeacherID == "" {
		return nil, nil
	}
	return &cur, nil
}

// ClearCurrent blanks the pointer.
func (r *Repository) ClearCurrent(ctx context.Context, at time.Time) error {
	return r.SetCurrent(ctx, CurrentTeacher{UpdatedAt: at})
}

func scanSession(row *sql.Row) (Session, error) {
	var s Session
	var created, updated time.Time
	if err := row.Scan(&s.TeacherID, &s.TeacherEmail, &s.TeacherName, &s.Date, &s.Subject, &s.TimeSlot,
		&s.IsActive, &created, &updated); err != nil {
		return Session{}, err
	}
	s.CreatedAt = &created
	s.UpdatedAt = &updated
	return s, nil
}
