package directory

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeUID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{" ab cd ", "AB CD"},
		{"AB CD", "AB CD"},
		{"2c  cc\td6 b0", "2C CC D6 B0"},
		{"", ""},
		{"   ", ""},
		{"\n2C CC D6 B0\r\n", "2C CC D6 B0"},
	}
	for _, tc := range cases {
		if got := NormalizeUID(tc.in); got != tc.want {
			t.Fatalf("NormalizeUID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if NormalizeUID(" ab cd ") != NormalizeUID("AB CD") {
		t.Fatalf("expected case and whitespace insensitivity")
	}
}

func TestNormalizeUIDIdempotent(t *testing.T) {
	t.Parallel()

	for _, in := range []string{" ab cd ", "x", "  Mixed\tCase  uid ", "ÿ ß"} {
		once := NormalizeUID(in)
		if twice := NormalizeUID(once); twice != once {
			t.Fatalf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	t.Parallel()

	d := New([]Student{{UID: "aa bb", Name: "Known", RollNumber: "R1"}})

	s, ok := d.Resolve(" AA  BB ")
	if !ok || s.Name != "Known" || s.UID != "AA BB" {
		t.Fatalf("expected known student, got %+v ok=%v", s, ok)
	}

	s, ok = d.Resolve("ff ff")
	if ok {
		t.Fatalf("expected miss")
	}
	if s.Name != Unknown || s.RollNumber != Unknown || s.UID != "FF FF" {
		t.Fatalf("expected unknown placeholder, got %+v", s)
	}
}

func TestDefaultContainsReferenceCard(t *testing.T) {
	t.Parallel()

	if _, ok := Default().Lookup("2c cc d6 b0"); !ok {
		t.Fatalf("expected default roster to contain 2C CC D6 B0")
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "students.json")
	body := `[{"uid":"de ad be ef","name":"Test","rollNumber":"T9"},{"uid":"","name":"skip","rollNumber":"x"}]`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	d, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if d.Len() != 1 {
		t.Fatalf("expected 1 student, got %d", d.Len())
	}
	all := d.All()
	if all[0].UID != "DE AD BE EF" {
		t.Fatalf("expected normalized uid, got %q", all[0].UID)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
