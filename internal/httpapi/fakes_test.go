package httpapi

import (
	"context"
	"sort"
	"sync"
	"time"

	"rfidattendance/internal/attendance"
	"rfidattendance/internal/session"
	"rfidattendance/internal/timetable"
	"rfidattendance/internal/users"
)

type memUsers struct {
	mu     sync.Mutex
	accts  []users.Account
	hashes map[string]string
}

func (m *memUsers) Create(_ context.Context, acct users.Account, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accts = append(m.accts, acct)
	m.hashes[acct.ID] = hash
	return nil
}

func (m *memUsers) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accts), nil
}

func (m *memUsers) ByID(_ context.Context, id string) (*users.Account, error) {
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

func (m *memUsers) ByEmail(_ context.Context, email string) (*users.Account, string, error) {
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

func (m *memUsers) List(context.Context) ([]users.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]users.Account(nil), m.accts...), nil
}

func (m *memUsers) SetSubjects(_ context.Context, id string, subjects []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.accts {
		if m.accts[i].ID == id {
			m.accts[i].Subjects = subjects
		}
	}
	return nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]session.Session
	current  *session.CurrentTeacher
}

func (m *memSessions) Upsert(_ context.Context, key string, s session.Session) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.sessions[key]; ok {
		s.CreatedAt = prev.CreatedAt
	}
	m.sessions[key] = s
	return s, nil
}

func (m *memSessions) Get(_ context.Context, key string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *memSessions) Deactivate(_ context.Context, key string, at time.Time) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, nil
	}
	s.IsActive = false
	s.UpdatedAt = &at
	m.sessions[key] = s
	return &s, nil
}

func (m *memSessions) SetCurrent(_ context.Context, cur session.CurrentTeacher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &cur
	return nil
}

func (m *memSessions) Current(context.Context) (*session.CurrentTeacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.TeacherID == "" {
		return nil, nil
	}
	cur := *m.current
	return &cur, nil
}

func (m *memSessions) ClearCurrent(context.Context, time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}

type memAttendance struct {
	mu      sync.Mutex
	records map[attendance.Key]attendance.Record
}

func (m *memAttendance) Upsert(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[attendance.KeyOf(rec)] = rec
	return rec, nil
}

func (m *memAttendance) List(_ context.Context, date string, scope attendance.Scope) ([]attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []attendance.Record{}
	for _, r := range m.records {
		if r.Date != date || (scope.Subject != "" && r.Subject != scope.Subject) {
			continue
		}
		if scope.TimeSlot != "" && r.TimeSlot != scope.TimeSlot && r.Subject != scope.TimeSlot {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *memAttendance) Dates(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	out := []string{}
	for k := range m.records {
		if !seen[k.Date] {
			seen[k.Date] = true
			out = append(out, k.Date)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memAttendance) Subjects(_ context.Context, date string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for k := range m.records {
		if k.Date == date {
			out = append(out, k.Subject)
		}
	}
	sort.Strings(out)
	return out, nil
}

type memTimetable struct {
	mu   sync.Mutex
	days map[string][]timetable.Entry
}

func (m *memTimetable) Day(_ context.Context, day string) ([]timetable.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.days[day]
	return append([]timetable.Entry(nil), e...), len(e) > 0, nil
}

func (m *memTimetable) Replace(_ context.Context, day string, entries []timetable.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days[day] = append([]timetable.Entry(nil), entries...)
	return nil
}

type staticCheck bool

func (s staticCheck) Healthy(context.Context) bool { return bool(s) }
