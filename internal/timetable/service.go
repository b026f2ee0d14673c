// Package timetable stores the weekly timetable and enriches each slot with the teacher who owns
// the subject.
package timetable

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rfidattendance/internal/apperr"
	"rfidattendance/internal/logging"
	"rfidattendance/internal/users"
	"rfidattendance/internal/validate"
)

// DayCodes in week order. Thursday is spelled THUR.
var DayCodes = []string{"MON", "TUE", "WED", "THUR", "FRI", "SAT", "SUN"}

// Entry is one timetable slot.
type Entry struct {
	SubjectName  string `json:"subjectName"`
	TimeSlot     string `json:"timeSlot" binding:"omitempty,timeslot" validate:"omitempty,timeslot"`
	TeacherEmail string `json:"teacherEmail,omitempty"`
}

// Roster lists the accounts whose subject lists drive enrichment.
type Roster interface {
	Roster(ctx context.Context) ([]users.Account, error)
}

// Service reads and writes timetables.
type Service struct {
	store  Store
	roster Roster
}

func NewService(store Store, roster Roster) *Service {
	return &Service{store: store, roster: roster}
}

// ParseDay upper-cases and validates a day code.
func ParseDay(day string) (string, error) {
	day = strings.ToUpper(strings.TrimSpace(day))
	if day == "" {
		return "", apperr.Validation("Day parameter is required (e.g., MON, TUE, WED, THUR, FRI)")
	}
	if !validate.DayCode(day) {
		return "", apperr.Validation("Invalid day format. Use MON, TUE, WED, THUR, FRI, SAT, or SUN")
	}
	return day, nil
}

// DayFor maps a calendar date to its day code.
func DayFor(t time.Time) string {
	// time.Sunday == 0
	return DayCodes[(int(t.Weekday())+6)%7]
}

// Day returns the day's entries, each tagged with the first roster account teaching the subject.
func (s *Service) Day(ctx context.Context, day string) ([]Entry, error) {
	day, err := ParseDay(day)
	if err != nil {
		return nil, err
	}
	entries, ok, err := s.store.Day(ctx, day)
	if err != nil {
		return nil, apperr.Storage("load timetable", err)
	}
	if !ok {
		return nil, apperr.NotFound(apperr.CodeNoTimetable, "No timetable found for "+day)
	}
	roster, err := s.roster.Roster(ctx)
	if err != nil {
		return nil, err
	}
	out := Enrich(entries, roster)
	logging.FromContext(ctx).Debug("timetable served", "day", day, "entries", len(out))
	return out, nil
}

// Enrich fills names, slots and teacher emails. It is a plain entries x roster scan.
func Enrich(entries []Entry, roster []users.Account) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		if e.SubjectName == "" {
			e.SubjectName = fmt.Sprintf("Subject %d", i)
		}
		if e.TimeSlot == "" {
			e.TimeSlot = "Unknown"
		}
		e.TeacherEmail = users.NotAssigned
		if acct, ok := users.MatchSubject(roster, e.SubjectName); ok {
			e.TeacherEmail = acct.Email
		}
		out[i] = e
	}
	return out
}

// Put replaces a day's entries. Teacher emails are derived on read and never stored.
func (s *Service) Put(ctx context.Context, day string, entries []Entry) ([]Entry, error) {
	day, err := ParseDay(day)
	if err != nil {
		return nil, err
	}
	clean := make([]Entry, 0, len(entries))
	for _, e := range entries {
		e.SubjectName = strings.TrimSpace(e.SubjectName)
		e.TimeSlot = strings.TrimSpace(e.TimeSlot)
		e.TeacherEmail = ""
		if err := validate.Struct(e); err != nil {
			return nil, err
		}
		clean = append(clean, e)
	}
	if err := s.store.Replace(ctx, day, clean); err != nil {
		return nil, apperr.Storage("replace timetable", err)
	}
	logging.FromContext(ctx).Info("timetable replaced", "day", day, "entries", len(clean))
	return clean, nil
}
