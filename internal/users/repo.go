package users

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// errDuplicate is returned by Create when the email is already registered.
var errDuplicate = errors.New("duplicate account")

// Store is the persistence the service needs.
type Store interface {
	Create(ctx context.Context, acct Account, passwordHash string) error
	Count(ctx context.Context) (int, error)
	ByID(ctx context.Context, id string) (*Account, error)
	ByEmail(ctx context.Context, email string) (*Account, string, error)
	List(ctx context.Context) ([]Account, error)
	SetSubjects(ctx context.Context, id string, subjects []string) error
}

// Repository persists accounts in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts an account and its subjects.
func (r *Repository) Create(ctx context.Context, acct Account, passwordHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, acct.ID, acct.Email, acct.Name, acct.Role, passwordHash, acct.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errDuplicate
		}
		return err
	}
	if err := insertSubjects(ctx, tx, acct.ID, acct.Subjects); err != nil {
		return err
	}
	return tx.Commit()
}

// Count returns the number of registered accounts.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// ByID returns an account or nil when missing.
func (r *Repository) ByID(ctx context.Context, id string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, email, name, role, created_at FROM users WHERE id = $1`, id)
	var a Account
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Role, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	subjects, err := r.subjects(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	a.Subjects = subjects
	return &a, nil
}

// ByEmail returns an account with its password hash, or nil when missing.
func (r *Repository) ByEmail(ctx context.Context, email string) (*Account, string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, password_hash, created_at FROM users WHERE email = $1
	`, email)
	var a Account
	var hash string
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Role, &hash, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}
	subjects, err := r.subjects(ctx, a.ID)
	if err != nil {
		return nil, "", err
	}
	a.Subjects = subjects
	return &a, hash, nil
}

// List returns every account with its subjects, ordered by creation.
func (r *Repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.name, u.role, u.created_at, s.subject
		FROM users u
		LEFT JOIN user_subjects s ON s.user_id = u.id
		ORDER BY u.created_at, u.id, s.position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		var subject sql.NullString
		if err := rows.Scan(&a.ID, &a.Email, &a.Name, &a.Role, &a.CreatedAt, &subject); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].ID == a.ID {
			if subject.Valid {
				out[n-1].Subjects = append(out[n-1].Subjects, subject.String)
			}
			continue
		}
		if subject.Valid {
			a.Subjects = []string{subject.String}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetSubjects replaces the subject list of an account.
func (r *Repository) SetSubjects(ctx context.Context, id string, subjects []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_subjects WHERE user_id = $1`, id); err != nil {
		return err
	}
	if err := insertSubjects(ctx, tx, id, subjects); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) subjects(ctx context.Context, id string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT subject FROM user_subjects WHERE user_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func insertSubjects(ctx context.Context, tx *sql.Tx, id string, subjects []string) error {
	for i, s := range subjects {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_subjects (user_id, subject, position)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, subject) DO NOTHING
		`, id, s, i); err != nil {
			return err
		}
	}
	return nil
}
