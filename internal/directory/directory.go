package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Unknown is the name and roll number attached to cards missing from the directory.
const Unknown = "Unknown"

// Student is one entry of the static card directory.
type Student struct {
	UID        string `json:"uid"`
	Name       string `json:"name"`
	RollNumber string `json:"rollNumber"`
}

// Directory maps normalized card UIDs to students. It is read-only after construction.
type Directory struct {
	byUID map[string]Student
}

// NormalizeUID trims, collapses internal whitespace to single spaces and upper-cases.
func NormalizeUID(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), " "))
}

// New builds a directory; UIDs are normalized and later duplicates win.
func New(students []Student) *Directory {
	d := &Directory{byUID: make(map[string]Student, len(students))}
	for _, s := range students {
		s.UID = NormalizeUID(s.UID)
		if s.UID == "" {
			continue
		}
		d.byUID[s.UID] = s
	}
	return d
}

// LoadFile reads a JSON array of students.
func LoadFile(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read students file: %w", err)
	}
	var students []Student
	if err := json.Unmarshal(raw, &students); err != nil {
		return nil, fmt.Errorf("decode students file: %w", err)
	}
	return New(students), nil
}

// Lookup returns the student for uid, normalizing it first.
func (d *Directory) Lookup(uid string) (Student, bool) {
	s, ok := d.byUID[NormalizeUID(uid)]
	return s, ok
}

// Resolve never fails: unrecognized cards come back as an Unknown student carrying the uid.
func (d *Directory) Resolve(uid string) (Student, bool) {
	if s, ok := d.Lookup(uid); ok {
		return s, true
	}
	return Student{UID: NormalizeUID(uid), Name: Unknown, RollNumber: Unknown}, false
}

// All returns every student ordered by roll number.
func (d *Directory) All() []Student {
	out := make([]Student, 0, len(d.byUID))
	for _, s := range d.byUID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RollNumber == out[j].RollNumber {
			return out[i].UID < out[j].UID
		}
		return out[i].RollNumber < out[j].RollNumber
	})
	return out
}

// Len reports the number of students.
func (d *Directory) Len() int { return len(d.byUID) }

// Default is the roster shipped with the binary, used when no STUDENTS_FILE is configured.
func Default() *Directory {
	return New([]Student{
		{UID: "2C CC D6 B0", Name: "Aarav Sharma", RollNumber: "CS001"},
		{UID: "93 4A 1F 2D", Name: "Diya Patel", RollNumber: "CS002"},
		{UID: "A1 B2 C3 D4", Name: "Rohan Mehta", RollNumber: "CS003"},
		{UID: "5E 77 0B 9C", Name: "Ananya Iyer", RollNumber: "CS004"},
		{UID: "E4 12 8F 63", Name: "Kabir Singh", RollNumber: "CS005"},
		{UID: "0D 3C 71 AA", Name: "Meera Nair", RollNumber: "CS006"},
	})
}
