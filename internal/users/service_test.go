package users

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"rfidattendance/internal/apperr"
	"rfidattendance/internal/auth"
)

type memStore struct {
	mu      sync.Mutex
	accts   []Account
	hashes  map[string]string
	listErr error
}

func newMemStore() *memStore {
	return &memStore{hashes: make(map[string]string)}
}

func (m *memStore) Create(_ context.Context, acct Account, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accts {
		if a.Email == acct.Email {
			return errDuplicate
		}
	}
	m.accts = append(m.accts, acct)
	m.hashes[acct.ID] = hash
	return nil
}

func (m *memStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accts), nil
}

func (m *memStore) ByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accts {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (m *memStore) ByEmail(_ context.Context, email string) (*Account, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accts {
		if a.Email == email {
			a := a
			return &a, m.hashes[a.ID], nil
		}
	}
	return nil, "", nil
}

func (m *memStore) List(context.Context) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]Account(nil), m.accts...), nil
}

func (m *memStore) SetSubjects(_ context.Context, id string, subjects []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.accts {
		if m.accts[i].ID == id {
			m.accts[i].Subjects = subjects
		}
	}
	return nil
}

func TestRegisterRoles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := NewService(newMemStore())

	first, err := svc.Register(ctx, RegisterInput{Email: "Head@School.edu ", Password: "password1", Role: "teacher"}, false)
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	if first.Role != auth.RoleAdmin || first.Email != "head@school.edu" {
		t.Fatalf("expected first account to be admin with normalized email, got %+v", first)
	}

	second, err := svc.Register(ctx, RegisterInput{Email: "t1@school.edu", Password: "password1"}, false)
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if second.Role != auth.RoleTeacher {
		t.Fatalf("expected teacher default, got %q", second.Role)
	}

	_, err = svc.Register(ctx, RegisterInput{Email: "x@school.edu", Password: "password1", Role: "admin"}, false)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for non-admin creating admin, got %v", err)
	}

	if _, err := svc.Register(ctx, RegisterInput{Email: "x@school.edu", Password: "password1", Role: "admin"}, true); err != nil {
		t.Fatalf("admin caller should create admin: %v", err)
	}

	_, err = svc.Register(ctx, RegisterInput{Email: "t1@school.edu", Password: "password1"}, false)
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != apperr.CodeEmailTaken {
		t.Fatalf("expected EMAIL_TAKEN, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemStore())
	cases := []RegisterInput{
		{Email: "", Password: "password1"},
		{Email: "not-an-email", Password: "password1"},
		{Email: "a@b.co", Password: "short"},
		{Email: "a@b.co", Password: "password1", Role: "principal"},
	}
	for _, in := range cases {
		_, err := svc.Register(context.Background(), in, false)
		if apperr.Status(err) != 400 {
			t.Fatalf("expected 400 for %+v, got %v", in, err)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := NewService(newMemStore())
	if _, err := svc.Register(ctx, RegisterInput{Email: "a@b.co", Password: "password1"}, false); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Authenticate(ctx, "A@B.CO", "password1"); err != nil {
		t.Fatalf("expected login to succeed: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "a@b.co", "wrong-pass"); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@b.co", "password1"); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected auth error for unknown email, got %v", err)
	}
}

func TestSubjectsAndRoster(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store)

	if got := svc.AllSubjects(ctx); !reflect.DeepEqual(got, FallbackSubjects) {
		t.Fatalf("expected fallback subjects on empty roster, got %v", got)
	}

	admin, _ := svc.Register(ctx, RegisterInput{Email: "admin@s.edu", Password: "password1"}, false)
	teacher, _ := svc.Register(ctx, RegisterInput{Email: "t@s.edu", Password: "password1", Subjects: []string{"IoT", " AI ", "AI", ""}}, false)
	if !reflect.DeepEqual(teacher.Subjects, []string{"IoT", "AI"}) {
		t.Fatalf("expected cleaned subjects, got %v", teacher.Subjects)
	}
	if _, err := svc.SetSubjects(ctx, admin.ID, []string{"PCE"}); err != nil {
		t.Fatal(err)
	}

	if got := svc.AllSubjects(ctx); !reflect.DeepEqual(got, []string{"AI", "IoT", "PCE"}) {
		t.Fatalf("unexpected subjects %v", got)
	}

	got, err := svc.SubjectsForEmail(ctx, "T@S.EDU")
	if err != nil || !reflect.DeepEqual(got, []string{"IoT", "AI"}) {
		t.Fatalf("unexpected teacher subjects %v err=%v", got, err)
	}
	got, err = svc.SubjectsForEmail(ctx, "ghost@s.edu")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty list for unknown email, got %v err=%v", got, err)
	}
	if _, err := svc.SubjectsForEmail(ctx, " "); apperr.Status(err) != 400 {
		t.Fatalf("expected 400 for missing email, got %v", err)
	}

	owner, err := svc.TeacherForSubject(ctx, "AI")
	if err != nil || owner.ID != teacher.ID {
		t.Fatalf("expected teacher to own AI, got %+v err=%v", owner, err)
	}
	_, err = svc.TeacherForSubject(ctx, "Astrology")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != apperr.CodeNoTeacherForSubject {
		t.Fatalf("expected NO_TEACHER_FOR_SUBJECT, got %v", err)
	}

	if _, err := svc.SetSubjects(ctx, "missing", nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAllSubjectsFallsBackOnStoreError(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.listErr = errors.New("connection refused")
	svc := NewService(store)
	if got := svc.AllSubjects(context.Background()); len(got) != len(FallbackSubjects) {
		t.Fatalf("expected fallback, got %v", got)
	}
}

func TestAccountCanSee(t *testing.T) {
	t.Parallel()

	teacher := Account{ID: "T1", Role: auth.RoleTeacher, Subjects: []string{"AI"}}
	admin := Account{ID: "A1", Role: auth.RoleAdmin}
	cases := []struct {
		name      string
		acct      Account
		teacherID string
		subject   string
		want      bool
	}{
		{"own record", teacher, "T1", "PCE", true},
		{"taught subject", teacher, "T2", "AI", true},
		{"foreign subject", teacher, "T2", "PCE", false},
		{"slot-only foreign session", teacher, "T2", "", false},
		{"admin", admin, "T2", "PCE", true},
		{"blank account", Account{}, "", "", false},
	}
	for _, tc := range cases {
		if got := tc.acct.CanSee(tc.teacherID, tc.subject); got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}
