// Package validate holds the shared validator instance and the custom tags used by request
// structs: isodate, timeslot and daycode.
package validate

import (
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"rfidattendance/internal/apperr"
)

// DateLayout is the calendar date format used for sessions and attendance keys.
const DateLayout = "2006-01-02"

var (
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeSlotRe = regexp.MustCompile(`^\d{1,2}-\d{1,2}$`)

	dayCodes = map[string]bool{
		"MON": true, "TUE": true, "WED": true, "THUR": true,
		"FRI": true, "SAT": true, "SUN": true,
	}

	once sync.Once
	v    *validator.Validate
)

// Date reports whether s is YYYY-MM-DD and a real calendar day.
func Date(s string) bool {
	if !dateRe.MatchString(s) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// TimeSlot reports whether s looks like "9-10".
func TimeSlot(s string) bool {
	return timeSlotRe.MatchString(s)
}

// DayCode reports whether s is one of the seven timetable day codes (case-insensitive).
func DayCode(s string) bool {
	return dayCodes[strings.ToUpper(s)]
}

// Register installs the custom tags on a validator, e.g. gin's binding engine. Field names in
// errors are reported by their json name.
func Register(val *validator.Validate) error {
	val.RegisterTagNameFunc(jsonName)
	if err := val.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		return Date(fl.Field().String())
	}); err != nil {
		return err
	}
	if err := val.RegisterValidation("timeslot", func(fl validator.FieldLevel) bool {
		return TimeSlot(fl.Field().String())
	}); err != nil {
		return err
	}
	return val.RegisterValidation("daycode", func(fl validator.FieldLevel) bool {
		return DayCode(fl.Field().String())
	})
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// Validator returns the process-wide validator with custom tags installed.
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		if err := Register(v); err != nil {
			panic(err)
		}
	})
	return v
}

// Struct validates s and converts failures into *apperr.Error.
func Struct(s any) error {
	if err := Validator().Struct(s); err != nil {
		return apperr.FromValidator(err)
	}
	return nil
}
