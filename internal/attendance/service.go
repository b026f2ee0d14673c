package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"rfidattendance/internal/apperr"
	"rfidattendance/internal/auth"
	"rfidattendance/internal/directory"
	"rfidattendance/internal/live"
	"rfidattendance/internal/logging"
	"rfidattendance/internal/metrics"
	"rfidattendance/internal/scanlog"
	"rfidattendance/internal/session"
	"rfidattendance/internal/users"
	"rfidattendance/internal/validate"
)

// Record sources.
const (
	SourceDevice = "device"
	SourceManual = "manual"
)

// Record is one student's attendance for a (date, subject) scope.
type Record struct {
	UID          string    `json:"uid"`
	Name         string    `json:"name"`
	RollNumber   string    `json:"rollNumber"`
	Present      bool      `json:"present"`
	Timestamp    time.Time `json:"timestamp"`
	Date         string    `json:"date"`
	Subject      string    `json:"subject"`
	TimeSlot     string    `json:"timeSlot,omitempty"`
	TeacherEmail string    `json:"teacherEmail"`
	TeacherID    string    `json:"teacherId,omitempty"`
	Source       string    `json:"source"`
}

// Key identifies a record. At most one record exists per key.
type Key struct {
	Date    string
	Subject string
	UID     string
}

func (k Key) String() string {
	return k.Date + "/" + k.Subject + "/" + k.UID
}

// KeyOf returns the key a record is stored under.
func KeyOf(r Record) Key {
	return Key{Date: r.Date, Subject: r.Subject, UID: r.UID}
}

// Scope selects records for a date by subject or by time slot.
type Scope struct {
	Subject  string
	TimeSlot string
}

// ScanInput is the device payload. uid and cardId are aliases.
type ScanInput struct {
	UID          string `json:"uid" validate:"required_without=CardID"`
	CardID       string `json:"cardId"`
	TeacherID    string `json:"teacherId"`
	TeacherEmail string `json:"teacherEmail"`
	Subject      string `json:"subject"`
	TimeSlot     string `json:"timeSlot" validate:"omitempty,timeslot"`
	Date         string `json:"date" validate:"omitempty,isodate"`
	Timestamp    string `json:"timestamp"`
}

// MarkInput is a manual mark from the dashboard.
type MarkInput struct {
	UID      string `json:"uid" validate:"required"`
	Subject  string `json:"subject" validate:"required"`
	TimeSlot string `json:"timeSlot" validate:"omitempty,timeslot"`
	Date     string `json:"date" validate:"omitempty,isodate"`
	Present  *bool  `json:"present" validate:"required"`
}

// Sessions resolves the active session gating device scans.
type Sessions interface {
	Active(ctx context.Context, teacherID, date string) (session.Session, error)
}

// Roster resolves teachers for records.
type Roster interface {
	Get(ctx context.Context, id string) (users.Account, error)
	TeacherForSubject(ctx context.Context, subject string) (users.Account, error)
}

// Service records and reads attendance.
type Service struct {
	store    Store
	dir      *directory.Directory
	sessions Sessions
	roster   Roster
	scans    *scanlog.Publisher
	pub      live.Publisher
	loc      *time.Location
	now      func() time.Time
}

// Deps are the collaborators of a Service. Scans and Live are optional.
type Deps struct {
	Store     Store
	Directory *directory.Directory
	Sessions  Sessions
	Roster    Roster
	Scans     *scanlog.Publisher
	Live      live.Publisher
	Location  *time.Location
}

// NewService creates a service from its collaborators.
func NewService(d Deps) *Service {
	if d.Live == nil {
		d.Live = live.Nop{}
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Directory == nil {
		d.Directory = directory.Default()
	}
	return &Service{
		store:    d.Store,
		dir:      d.Directory,
		sessions: d.Sessions,
		roster:   d.Roster,
		scans:    d.Scans,
		pub:      d.Live,
		loc:      d.Location,
		now:      time.Now,
	}
}

// Ingest records a device scan against the active session. The session decides the date and
// subject; a body subject that disagrees with it is rejected.
func (s *Service) Ingest(ctx context.Context, in ScanInput) (Record, Key, error) {
	if err := validate.Struct(in); err != nil {
		metrics.Scans.WithLabelValues(metrics.OutcomeRejected).Inc()
		return Record{}, Key{}, err
	}
	raw := in.UID
	if strings.TrimSpace(raw) == "" {
		raw = in.CardID
	}
	uid := directory.NormalizeUID(raw)
	if uid == "" {
		metrics.Scans.WithLabelValues(metrics.OutcomeRejected).Inc()
		return Record{}, Key{}, apperr.Validation("Missing required field: uid")
	}
	_, known := s.dir.Lookup(uid)

	sess, err := s.sessions.Active(ctx, strings.TrimSpace(in.TeacherID), strings.TrimSpace(in.Date))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.audit(ctx, scanlog.ScanEvent{UID: uid, Known: known, Date: in.Date, Subject: in.Subject,
				TeacherID: in.TeacherID, Outcome: metrics.OutcomeNoActiveSession})
			metrics.Scans.WithLabelValues(metrics.OutcomeNoActiveSession).Inc()
			return Record{}, Key{}, apperr.ValidationCode(apperr.CodeNoActiveSession,
				"No active session. Ask the teacher to start the class first")
		}
		return Record{}, Key{}, err
	}

	subject := strings.TrimSpace(in.Subject)
	slot := strings.TrimSpace(in.TimeSlot)
	if (subject != "" && sess.Subject != "" && subject != sess.Subject) ||
		(slot != "" && sess.TimeSlot != "" && slot != sess.TimeSlot) {
		s.audit(ctx, scanlog.ScanEvent{UID: uid, Known: known, Date: sess.Date, Subject: subject,
			TeacherID: sess.TeacherID, Outcome: metrics.OutcomeRejected})
		metrics.Scans.WithLabelValues(metrics.OutcomeRejected).Inc()
		return Record{}, Key{}, apperr.ValidationCode(apperr.CodeSessionMismatch,
			"scan does not match the active session ("+sess.Scope()+")")
	}
	if sess.TimeSlot != "" {
		slot = sess.TimeSlot
	}

	teacherEmail := sess.TeacherEmail
	if teacherEmail == "" && s.roster != nil {
		if acct, err := s.roster.Get(ctx, sess.TeacherID); err == nil {
			teacherEmail = acct.Email
		}
	}
	if teacherEmail == "" {
		teacherEmail = strings.TrimSpace(in.TeacherEmail)
	}

	return s.record(ctx, Record{
		UID:          uid,
		Present:      true,
		Date:         sess.Date,
		Subject:      sess.Scope(),
		TimeSlot:     slot,
		TeacherEmail: teacherEmail,
		TeacherID:    sess.TeacherID,
		Source:       SourceDevice,
	})
}

// Mark records a manual entry. The subject must belong to a teacher on the roster; teachers
// may only mark their own subjects.
func (s *Service) Mark(ctx context.Context, actor auth.Identity, in MarkInput) (Record, Key, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Date = strings.TrimSpace(in.Date)
	if err := validate.Struct(in); err != nil {
		return Record{}, Key{}, err
	}
	if in.Date == "" {
		in.Date = s.today()
	}

	var owner users.Account
	var err error
	if actor.IsAdmin() {
		owner, err = s.roster.TeacherForSubject(ctx, in.Subject)
	} else {
		owner, err = s.roster.Get(ctx, actor.ID)
		if err == nil && !owner.Teaches(in.Subject) {
			err = apperr.Forbidden("subject " + in.Subject + " is not assigned to you")
		}
	}
	if err != nil {
		return Record{}, Key{}, err
	}

	return s.record(ctx, Record{
		UID:          in.UID,
		Present:      *in.Present,
		Date:         in.Date,
		Subject:      in.Subject,
		TimeSlot:     strings.TrimSpace(in.TimeSlot),
		TeacherEmail: owner.Email,
		TeacherID:    owner.ID,
		Source:       SourceManual,
	})
}

// record normalizes, resolves the student and writes the record at its key.
func (s *Service) record(ctx context.Context, rec Record) (Record, Key, error) {
	rec.UID = directory.NormalizeUID(rec.UID)
	if rec.UID == "" {
		return Record{}, Key{}, apperr.Validation("Missing required field: uid")
	}
	student, known := s.dir.Resolve(rec.UID)
	rec.Name = student.Name
	rec.RollNumber = student.RollNumber
	rec.Timestamp = s.now().UTC()

	stored, err := s.store.Upsert(ctx, rec)
	if err != nil {
		metrics.Scans.WithLabelValues(metrics.OutcomeStorageError).Inc()
		s.audit(ctx, scanlog.ScanEvent{UID: rec.UID, Known: known, Date: rec.Date, Subject: rec.Subject,
			TeacherID: rec.TeacherID, Outcome: metrics.OutcomeStorageError})
		return Record{}, Key{}, apperr.Storage("record attendance", err)
	}

	if rec.Source == SourceDevice {
		metrics.Scans.WithLabelValues(metrics.OutcomeRecorded).Inc()
	}
	if !known {
		metrics.UnknownCards.Inc()
	}
	s.audit(ctx, scanlog.ScanEvent{UID: stored.UID, Known: known, Date: stored.Date, Subject: stored.Subject,
		TeacherID: stored.TeacherID, Outcome: metrics.OutcomeRecorded, At: stored.Timestamp})
	if evt, err := live.NewEvent(live.TypeAttendanceRecorded, stored.Timestamp, stored); err == nil {
		if err := s.pub.Publish(ctx, evt); err != nil {
			logging.FromContext(ctx).Warn("live publish failed", "error", err)
		}
	}

	logging.FromContext(ctx).Info("attendance recorded",
		"key", KeyOf(stored).String(), "name", stored.Name, "teacher", stored.TeacherEmail,
		"source", stored.Source, "known", known)
	return stored, KeyOf(stored), nil
}

func (s *Service) audit(ctx context.Context, evt scanlog.ScanEvent) {
	if err := s.scans.Publish(ctx, evt); err != nil {
		logging.FromContext(ctx).Warn("scan audit publish failed", "uid", evt.UID, "error", err)
	}
}

// List returns a scope's records newest first. Teachers only see their own subjects.
func (s *Service) List(ctx context.Context, actor auth.Identity, date string, scope Scope) ([]Record, error) {
	date = strings.TrimSpace(date)
	scope.Subject = strings.TrimSpace(scope.Subject)
	scope.TimeSlot = strings.TrimSpace(scope.TimeSlot)
	if date == "" || (scope.Subject == "" && scope.TimeSlot == "") {
		return nil, apperr.Validation("Missing required parameters: date and subject or timeSlot")
	}
	if !validate.Date(date) {
		return nil, apperr.Validation("Invalid date format. Use YYYY-MM-DD")
	}
	if scope.TimeSlot != "" && !validate.TimeSlot(scope.TimeSlot) {
		return nil, apperr.Validation("Invalid timeSlot format. Use e.g. 9-10")
	}

	var self users.Account
	if !actor.IsAdmin() {
		acct, err := s.roster.Get(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if scope.Subject != "" && !acct.Teaches(scope.Subject) {
			return nil, apperr.Forbidden("subject " + scope.Subject + " is not assigned to you")
		}
		self = acct
	}

	recs, err := s.store.List(ctx, date, scope)
	if err != nil {
		return nil, apperr.Storage("list attendance", err)
	}
	if actor.IsAdmin() || scope.Subject != "" {
		if recs == nil {
			recs = []Record{}
		}
		return recs, nil
	}
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if self.CanSee(r.TeacherID, r.Subject) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Dates lists the dates with recorded attendance.
func (s *Service) Dates(ctx context.Context) ([]string, error) {
	dates, err := s.store.Dates(ctx)
	if err != nil {
		return nil, apperr.Storage("list dates", err)
	}
	return dates, nil
}

// Subjects lists the subjects recorded on date.
func (s *Service) Subjects(ctx context.Context, date string) ([]string, error) {
	if !validate.Date(date) {
		return nil, apperr.Validation("Invalid date format. Use YYYY-MM-DD")
	}
	subjects, err := s.store.Subjects(ctx, date)
	if err != nil {
		return nil, apperr.Storage("list subjects", err)
	}
	return subjects, nil
}

func (s *Service) today() string {
	return s.now().In(s.loc).Format(validate.DateLayout)
}
