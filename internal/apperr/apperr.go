package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindStorage
)

// Codes surfaced to clients next to the message.
const (
	CodeNoActiveSession     = "NO_ACTIVE_SESSION"
	CodeNoActiveTeacher     = "NO_ACTIVE_TEACHER"
	CodeNoTeacherForSubject = "NO_TEACHER_FOR_SUBJECT"
	CodeNoTimetable         = "NO_TIMETABLE"
	CodeSessionMismatch     = "SESSION_MISMATCH"
	CodeEmailTaken          = "EMAIL_TAKEN"
	CodeNotFound            = "NOT_FOUND"
)

// Error is the single error type returned by the service layer.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind and Code so sentinels like ErrNoActiveSession work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrNoActiveSession = &Error{Kind: KindValidation, Code: CodeNoActiveSession}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrAuth            = &Error{Kind: KindAuth}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrStorage         = &Error{Kind: KindStorage}
)

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func ValidationCode(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func Auth(msg string) *Error {
	return &Error{Kind: KindAuth, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NotFound(code, msg string) *Error {
	if code == "" {
		code = CodeNotFound
	}
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

// Storage wraps a failure of the backing store. op names the failed operation.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Message: op + " failed", Err: err}
}

// FromValidator converts validator.ValidationErrors into a Validation error listing the fields.
// Other errors are passed through unchanged.
func FromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
		names = append(names, fe.Field())
	}
	return &Error{
		Kind:    KindValidation,
		Message: "invalid or missing fields: " + strings.Join(names, ", "),
		Fields:  fields,
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "isodate":
		return "must be a date in YYYY-MM-DD format"
	case "timeslot":
		return "must be a time slot like 9-10"
	case "daycode":
		return "must be one of MON, TUE, WED, THUR, FRI, SAT, SUN"
	case "email":
		return "must be an email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}

// Status maps an error onto an HTTP status code.
func Status(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
