package attendance

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"rfidattendance/internal/auth"
)

var exportHeader = []string{"uid", "name", "rollNumber", "present", "timestamp", "date", "subject", "timeSlot", "teacherEmail"}

// Export writes a scope's records as CSV, with the same visibility rules as List.
func (s *Service) Export(ctx context.Context, actor auth.Identity, w io.Writer, date string, scope Scope) (int, error) {
	recs, err := s.List(ctx, actor, date, scope)
	if err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}
	for _, r := range recs {
		if err := cw.Write([]string{
			r.UID, r.Name, r.RollNumber, strconv.FormatBool(r.Present), r.Timestamp.Format(time.RFC3339),
			r.Date, r.Subject, r.TimeSlot, r.TeacherEmail,
		}); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(recs), cw.Error()
}
