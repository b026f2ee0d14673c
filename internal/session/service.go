package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"rfidattendance/internal/apperr"
	"rfidattendance/internal/auth"
	"rfidattendance/internal/live"
	"rfidattendance/internal/logging"
	"rfidattendance/internal/metrics"
	"rfidattendance/internal/users"
	"rfidattendance/internal/validate"
)

// Session is the per-teacher-per-date scope record. The zero value with IsActive false is
// the "no session" descriptor.
type Session struct {
	TeacherID    string     `json:"teacherId,omitempty"`
	TeacherEmail string     `json:"teacherEmail,omitempty"`
	TeacherName  string     `json:"teacherName,omitempty"`
	Date         string     `json:"date"`
	Subject      string     `json:"subject"`
	TimeSlot     string     `json:"timeSlot,omitempty"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// Scope is the second attendance key dimension: the subject, or the time slot when the
// session was opened for a slot only.
func (s Session) Scope() string {
	if s.Subject != "" {
		return s.Subject
	}
	return s.TimeSlot
}

// CurrentTeacher points scanners that do not send a teacherId at a scope.
type CurrentTeacher struct {
	TeacherID    string    `json:"teacherId"`
	TeacherEmail string    `json:"teacherEmail"`
	TeacherName  string    `json:"teacherName"`
	Date         string    `json:"date"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ScopeKey names the record holding a teacher's session for a date.
func ScopeKey(teacherID, date string) string {
	return teacherID + "_" + date
}

// SetInput is the payload of a set operation.
type SetInput struct {
	TeacherID    string `json:"teacherId"`
	TeacherEmail string `json:"teacherEmail"`
	TeacherName  string `json:"teacherName"`
	Date         string `json:"date" validate:"required,isodate"`
	Subject      string `json:"subject" validate:"required_without=TimeSlot"`
	TimeSlot     string `json:"timeSlot" validate:"omitempty,timeslot"`
}

// Teachers resolves teacher accounts.
type Teachers interface {
	Get(ctx context.Context, id string) (users.Account, error)
}

// Controller owns the active-session state machine.
type Controller struct {
	store    Store
	teachers Teachers
	pub      live.Publisher
	loc      *time.Location
	now      func() time.Time
}

// NewController wires a controller. loc decides what "today" means.
func NewController(store Store, teachers Teachers, pub live.Publisher, loc *time.Location) *Controller {
	if pub == nil {
		pub = live.Nop{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Controller{store: store, teachers: teachers, pub: pub, loc: loc, now: time.Now}
}

// Today returns the current calendar date in the controller's zone.
func (c *Controller) Today() string {
	return c.now().In(c.loc).Format(validate.DateLayout)
}

// Set opens (or overwrites) the session for the resolved teacher and date and points the
// current-teacher record at it.
func (c *Controller) Set(ctx context.Context, actor auth.Identity, in SetInput) (Session, error) {
	in.TeacherID = strings.TrimSpace(in.TeacherID)
	in.Subject = strings.TrimSpace(in.Subject)
	in.TimeSlot = strings.TrimSpace(in.TimeSlot)

	if !actor.IsAdmin() {
		if in.TeacherID != "" && in.TeacherID != actor.ID {
			return Session{}, apperr.Forbidden("teachers can only manage their own session")
		}
		in.TeacherID = actor.ID
	}
	if in.TeacherID == "" {
		in.TeacherID = actor.ID
	}
	if in.TeacherID == actor.ID {
		if in.TeacherEmail == "" {
			in.TeacherEmail = actor.Email
		}
		if in.TeacherName == "" {
			in.TeacherName = actor.Name
		}
	}
	if err := validate.Struct(in); err != nil {
		return Session{}, err
	}
	if err := c.fillTeacher(ctx, actor, &in); err != nil {
		return Session{}, err
	}

	now := c.now().UTC()
	stored, err := c.store.Upsert(ctx, ScopeKey(in.TeacherID, in.Date), Session{
		TeacherID:    in.TeacherID,
		TeacherEmail: in.TeacherEmail,
		TeacherName:  in.TeacherName,
		Date:         in.Date,
		Subject:      in.Subject,
		TimeSlot:     in.TimeSlot,
		IsActive:     true,
		CreatedAt:    &now,
		UpdatedAt:    &now,
	})
	if err != nil {
		return Session{}, apperr.Storage("set session", err)
	}
	if err := c.store.SetCurrent(ctx, CurrentTeacher{
		TeacherID:    in.TeacherID,
		TeacherEmail: in.TeacherEmail,
		TeacherName:  in.TeacherName,
		Date:         in.Date,
		UpdatedAt:    now,
	}); err != nil {
		return Session{}, apperr.Storage("set current teacher", err)
	}

	metrics.SessionChanges.WithLabelValues("set").Inc()
	c.announce(ctx, live.TypeSessionSet, stored)
	logging.FromContext(ctx).Info("active session set",
		"teacher_id", stored.TeacherID, "date", stored.Date, "subject", stored.Subject, "time_slot", stored.TimeSlot)
	return stored, nil
}

// fillTeacher completes email and name from the roster and enforces that teachers only open
// sessions for subjects they teach.
func (c *Controller) fillTeacher(ctx context.Context, actor auth.Identity, in *SetInput) error {
	needAccount := in.TeacherEmail == "" || in.TeacherName == "" || (!actor.IsAdmin() && in.Subject != "")
	if !needAccount || c.teachers == nil {
		return nil
	}
	acct, err := c.teachers.Get(ctx, in.TeacherID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) && in.TeacherEmail != "" && actor.IsAdmin() {
			return nil
		}
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.NotFound("", "teacher "+in.TeacherID+" not found")
		}
		return err
	}
	if in.TeacherEmail == "" {
		in.TeacherEmail = acct.Email
	}
	if in.TeacherName == "" {
		in.TeacherName = acct.Name
	}
	if !actor.IsAdmin() && in.Subject != "" && !acct.Teaches(in.Subject) {
		return apperr.Forbidden("subject " + in.Subject + " is not assigned to you")
	}
	return nil
}

// Get returns the descriptor for a scope. An empty teacherID resolves through the current
// teacher pointer; an empty date is the pointer's date, else today. Absence is not an error.
func (c *Controller) Get(ctx context.Context, teacherID, date string) (Session, error) {
	teacherID, date, ok, err := c.resolve(ctx, teacherID, date)
	if err != nil || !ok {
		return Session{}, err
	}
	s, err := c.store.Get(ctx, ScopeKey(teacherID, date))
	if err != nil {
		return Session{}, apperr.Storage("get session", err)
	}
	if s == nil {
		return Session{}, nil
	}
	return *s, nil
}

// Active returns the scope's session only when it is active.
func (c *Controller) Active(ctx context.Context, teacherID, date string) (Session, error) {
	teacherID, date, ok, err := c.resolve(ctx, teacherID, date)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, apperr.NotFound(apperr.CodeNoActiveTeacher, "No active teacher found")
	}
	s, err := c.store.Get(ctx, ScopeKey(teacherID, date))
	if err != nil {
		return Session{}, apperr.Storage("get session", err)
	}
	if s == nil || !s.IsActive {
		return Session{}, apperr.NotFound(apperr.CodeNoActiveSession, "No active session")
	}
	return *s, nil
}

// Deactivate ends a scope's session and clears the current-teacher pointer. Teachers can
// only end their own session. Deactivating when nothing is resolvable is a no-op.
func (c *Controller) Deactivate(ctx context.Context, actor auth.Identity, teacherID, date string) (Session, error) {
	teacherID = strings.TrimSpace(teacherID)
	if !actor.IsAdmin() {
		if teacherID != "" && teacherID != actor.ID {
			return Session{}, apperr.Forbidden("teachers can only manage their own session")
		}
		teacherID = actor.ID
	}
	teacherID, date, ok, err := c.resolve(ctx, teacherID, date)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, nil
	}

	now := c.now().UTC()
	s, err := c.store.Deactivate(ctx, ScopeKey(teacherID, date), now)
	if err != nil {
		return Session{}, apperr.Storage("deactivate session", err)
	}

	cur, err := c.store.Current(ctx)
	if err != nil {
		return Session{}, apperr.Storage("load current teacher", err)
	}
	if cur != nil && cur.TeacherID == teacherID {
		if err := c.store.ClearCurrent(ctx, now); err != nil {
			return Session{}, apperr.Storage("clear current teacher", err)
		}
	}

	metrics.SessionChanges.WithLabelValues("deactivate").Inc()
	out := Session{TeacherID: teacherID, Date: date}
	if s != nil {
		out = *s
	}
	c.announce(ctx, live.TypeSessionCleared, out)
	logging.FromContext(ctx).Info("session deactivated", "teacher_id", teacherID, "date", date)
	return out, nil
}

// CurrentTeacher returns the pointer or NotFound when no teacher is active.
func (c *Controller) CurrentTeacher(ctx context.Context) (CurrentTeacher, error) {
	cur, err := c.store.Current(ctx)
	if err != nil {
		return CurrentTeacher{}, apperr.Storage("load current teacher", err)
	}
	if cur == nil {
		return CurrentTeacher{}, apperr.NotFound(apperr.CodeNoActiveTeacher, "No active teacher")
	}
	return *cur, nil
}

// resolve fills teacherID from the pointer, and date from the pointer when it points at that
// teacher, else today. ok is false when no teacher could be determined.
func (c *Controller) resolve(ctx context.Context, teacherID, date string) (string, string, bool, error) {
	teacherID = strings.TrimSpace(teacherID)
	date = strings.TrimSpace(date)
	if date != "" && !validate.Date(date) {
		return "", "", false, apperr.Validation("Invalid date format. Use YYYY-MM-DD")
	}
	if teacherID == "" || date == "" {
		cur, err := c.store.Current(ctx)
		if err != nil {
			return "", "", false, apperr.Storage("load current teacher", err)
		}
		if teacherID == "" {
			if cur == nil {
				return "", "", false, nil
			}
			teacherID = cur.TeacherID
		}
		if date == "" && cur != nil && cur.TeacherID == teacherID {
			date = cur.Date
		}
	}
	if date == "" {
		date = c.Today()
	}
	return teacherID, date, true, nil
}

func (c *Controller) announce(ctx context.Context, typ string, s Session) {
	evt, err := live.NewEvent(typ, c.now(), s)
	if err != nil {
		return
	}
	if err := c.pub.Publish(ctx, evt); err != nil {
		logging.FromContext(ctx).Warn("live publish failed", "type", typ, "error", err)
	}
}
