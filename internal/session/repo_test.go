package session

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"rfidattendance/internal/store"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := store.NewDB(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db.Client
}

func TestRepositoryKeepsCreatedAt(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	teacher := "T-" + uuid.NewString()[:8]
	key := ScopeKey(teacher, "2024-01-05")
	t.Cleanup(func() { _, _ = db.Exec(`DELETE FROM sessions WHERE scope_key = $1`, key) })

	created := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	if _, err := repo.Upsert(ctx, key, Session{TeacherID: teacher, Date: "2024-01-05", Subject: "AI",
		IsActive: true, CreatedAt: &created, UpdatedAt: &created}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	later := created.Add(time.Hour)
	s, err := repo.Upsert(ctx, key, Session{TeacherID: teacher, Date: "2024-01-05", Subject: "IoT",
		IsActive: true, CreatedAt: &later, UpdatedAt: &later})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if !s.CreatedAt.Equal(created) || !s.UpdatedAt.Equal(later) || s.Subject != "IoT" {
		t.Fatalf("expected createdAt kept and fields overwritten, got %+v", s)
	}

	off, err := repo.Deactivate(ctx, key, later.Add(time.Minute))
	if err != nil || off == nil || off.IsActive {
		t.Fatalf("expected inactive record, got %v %+v", err, off)
	}
	if missing, err := repo.Deactivate(ctx, ScopeKey(teacher, "1999-01-01"), later); err != nil || missing != nil {
		t.Fatalf("expected nil for unknown scope, got %v %+v", err, missing)
	}
}

func TestRepositoryCurrentPointer(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.SetCurrent(ctx, CurrentTeacher{TeacherID: "T1", TeacherEmail: "t1@school.edu", Date: "2024-01-05", UpdatedAt: now}); err != nil {
		t.Fatalf("set current: %v", err)
	}
	cur, err := repo.Current(ctx)
	if err != nil || cur == nil || cur.TeacherID != "T1" || cur.Date != "2024-01-05" {
		t.Fatalf("unexpected pointer %v %+v", err, cur)
	}
	if err := repo.ClearCurrent(ctx, now); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cur, err := repo.Current(ctx); err != nil || cur != nil {
		t.Fatalf("expected cleared pointer, got %v %+v", err, cur)
	}
}
