package users

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"rfidattendance/internal/apperr"
	"rfidattendance/internal/auth"
	"rfidattendance/internal/logging"
	"rfidattendance/internal/validate"
)

// NotAssigned is reported for timetable subjects no teacher owns.
const NotAssigned = "Not assigned"

// FallbackSubjects is served when no teacher has subjects yet or the store is unreachable.
var FallbackSubjects = []string{
	"AT", "AI", "Cloud Computing", "PCE Lab", "Cloud Lab", "MAD Lab",
	"PCE", "IoT", "IoT Lab", "Cyber Security", "Mini Project",
}

// Account is a dashboard user.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Subjects  []string  `json:"subjects"`
	CreatedAt time.Time `json:"createdAt"`
}

// Teaches reports whether subject is on the account's list.
func (a Account) Teaches(subject string) bool {
	for _, s := range a.Subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// CanSee reports whether the account may read data owned by teacherID for subject. Admins see
// everything; teachers see their own records and their subjects.
func (a Account) CanSee(teacherID, subject string) bool {
	if a.Role == auth.RoleAdmin {
		return true
	}
	return (a.ID != "" && teacherID == a.ID) || (subject != "" && a.Teaches(subject))
}

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Email    string   `json:"email" binding:"required,email" validate:"required,email"`
	Password string   `json:"password" binding:"required,min=8" validate:"required,min=8"`
	Name     string   `json:"name"`
	Role     string   `json:"role" binding:"omitempty,oneof=admin teacher" validate:"omitempty,oneof=admin teacher"`
	Subjects []string `json:"subjects"`
}

// Service manages accounts and the teacher roster.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Register creates an account. The first account is always an admin; after that only an
// admin caller may create another admin and the role defaults to teacher.
func (s *Service) Register(ctx context.Context, in RegisterInput, callerIsAdmin bool) (Account, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate.Struct(in); err != nil {
		return Account{}, err
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return Account{}, apperr.Storage("count users", err)
	}
	role := in.Role
	switch {
	case count == 0:
		role = auth.RoleAdmin
	case role == "":
		role = auth.RoleTeacher
	case role == auth.RoleAdmin && !callerIsAdmin:
		return Account{}, apperr.Forbidden("only an admin can create admin accounts")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return Account{}, err
	}
	acct := Account{
		ID:        uuid.NewString(),
		Email:     in.Email,
		Name:      strings.TrimSpace(in.Name),
		Role:      role,
		Subjects:  cleanSubjects(in.Subjects),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, acct, hash); err != nil {
		if errors.Is(err, errDuplicate) {
			return Account{}, apperr.ValidationCode(apperr.CodeEmailTaken, "email already registered")
		}
		return Account{}, apperr.Storage("create user", err)
	}
	logging.FromContext(ctx).Info("account registered", "user_id", acct.ID, "role", acct.Role)
	return acct, nil
}

// Authenticate checks credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	acct, hash, err := s.store.ByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return Account{}, apperr.Storage("load user", err)
	}
	if acct == nil {
		return Account{}, apperr.Auth("invalid email or password")
	}
	ok, err := auth.CheckPassword(hash, password)
	if err != nil || !ok {
		return Account{}, apperr.Auth("invalid email or password")
	}
	return *acct, nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	acct, err := s.store.ByID(ctx, id)
	if err != nil {
		return Account{}, apperr.Storage("load user", err)
	}
	if acct == nil {
		return Account{}, apperr.NotFound("", "user not found")
	}
	return *acct, nil
}

// ByEmail returns an account by email.
func (s *Service) ByEmail(ctx context.Context, email string) (Account, error) {
	acct, _, err := s.store.ByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return Account{}, apperr.Storage("load user", err)
	}
	if acct == nil {
		return Account{}, apperr.NotFound("", "user not found")
	}
	return *acct, nil
}

// Roster lists every account with subjects.
func (s *Service) Roster(ctx context.Context) ([]Account, error) {
	accts, err := s.store.List(ctx)
	if err != nil {
		return nil, apperr.Storage("list users", err)
	}
	if accts == nil {
		accts = []Account{}
	}
	return accts, nil
}

// SetSubjects replaces the subjects an account teaches.
func (s *Service) SetSubjects(ctx context.Context, id string, subjects []string) (Account, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return Account{}, err
	}
	if err := s.store.SetSubjects(ctx, id, cleanSubjects(subjects)); err != nil {
		return Account{}, apperr.Storage("set subjects", err)
	}
	return s.Get(ctx, id)
}

// SubjectsForEmail returns the teacher's subjects, empty when the email is unknown.
func (s *Service) SubjectsForEmail(ctx context.Context, email string) ([]string, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperr.Validation("email parameter is required")
	}
	acct, err := s.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	if acct.Subjects == nil {
		return []string{}, nil
	}
	return acct.Subjects, nil
}

// AllSubjects returns the distinct sorted subjects across the roster.
func (s *Service) AllSubjects(ctx context.Context) []string {
	accts, err := s.store.List(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("subjects unavailable, serving fallback list", "error", err)
		return append([]string(nil), FallbackSubjects...)
	}
	seen := make(map[string]bool)
	var out []string
	for _, a := range accts {
		for _, subj := range a.Subjects {
			if !seen[subj] {
				seen[subj] = true
				out = append(out, subj)
			}
		}
	}
	if len(out) == 0 {
		return append([]string(nil), FallbackSubjects...)
	}
	sort.Strings(out)
	return out
}

// TeacherForSubject finds the first account whose subject list contains subject.
func (s *Service) TeacherForSubject(ctx context.Context, subject string) (Account, error) {
	accts, err := s.store.List(ctx)
	if err != nil {
		return Account{}, apperr.Storage("list users", err)
	}
	if acct, ok := MatchSubject(accts, subject); ok {
		return acct, nil
	}
	return Account{}, apperr.NotFound(apperr.CodeNoTeacherForSubject, "no teacher for subject "+subject)
}

// MatchSubject scans the roster for the first account teaching subject.
func MatchSubject(roster []Account, subject string) (Account, bool) {
	for _, a := range roster {
		if a.Teaches(subject) {
			return a, true
		}
	}
	return Account{}, false
}

func cleanSubjects(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
