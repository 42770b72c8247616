package classroom

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mahudhurio/core"
)

const dateLayout = "2006-01-02"

// Date is a calendar day with no time component.
// It marshals to/from "YYYY-MM-DD".
type Date struct {
	time.Time
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ClassStats is the summary derived from a class's Student and
// AttendanceRecord sets. It is a cache of ComputeStats' output and is
// never authoritative: it gets recomputed after every mutation that
// touches either set.
type ClassStats struct {
	StudentCount   int `json:"students"`
	SessionCount   int `json:"sessions"`
	AttendanceRate int `json:"attendanceRate"` // percentage, 0-100
}

type ClassRoom struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"` // UTC

	ClassStats
}

type Student struct {
	ID                 string `json:"id"`
	ClassID            string `json:"classId"`
	Name               string `json:"name"`
	RegistrationNumber string `json:"registrationNumber"`
}

type AttendanceRecord struct {
	ClassID   string `json:"classId"`
	StudentID string `json:"studentId"`
	Date      Date   `json:"date"`
	Present   bool   `json:"present"`
}

// Snapshot is the full per-user view returned by reads; consumers
// replace their cache with it wholesale.
type Snapshot struct {
	Classes     []ClassRoom                   `json:"classes"`
	Students    map[string][]Student          `json:"students"`
	Attendance  map[string][]AttendanceRecord `json:"attendance"`
	DisplayName string                        `json:"displayName,omitempty"`
}

// MutationResult carries the authoritative post-mutation view the
// caller needs to refresh its cache. Classes is always set; Students
// and Attendance are set for the mutations that touch them and apply
// to the mutated class only. Untouched slices stay nil (null on the
// wire) so an emptied slice is still distinguishable from one the
// mutation did not affect.
type MutationResult struct {
	Classes    []ClassRoom        `json:"classes"`
	Students   []Student          `json:"students"`
	Attendance []AttendanceRecord `json:"attendance"`
	NewClass   *ClassRoom         `json:"newClass,omitempty"`
	NewStudent *Student           `json:"newStudent,omitempty"`
}

// NewClass contains information needed to create a new ClassRoom.
type NewClass struct {
	Name string `json:"name" validate:"required"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

// NewStudent contains information needed to enroll a Student.
type NewStudent struct {
	Name               string `json:"name" validate:"required"`
	RegistrationNumber string `json:"registrationNumber" validate:"required"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.RegistrationNumber = core.CleanString(ns.RegistrationNumber)
	return validate.Struct(ns)
}

type (
	// AttendanceSheet is one day's submission for a class. Students not
	// mentioned in Records keep whatever was previously recorded for
	// that day (per-student upsert, not full-day overwrite).
	AttendanceSheet struct {
		Date    string            `json:"date" validate:"required,datetime=2006-01-02"`
		Records []AttendanceEntry `json:"records" validate:"required,min=1,dive"`
	}

	AttendanceEntry struct {
		StudentID string `json:"studentId" validate:"required"`
		Present   bool   `json:"present"`
	}
)

func (as *AttendanceSheet) Validate(validate *validator.Validate) error {
	as.Date = core.CleanString(as.Date)
	return validate.Struct(as)
}

// Day returns the sheet's parsed calendar day.
// Validate must have accepted the sheet first.
func (as AttendanceSheet) Day() Date {
	d, _ := ParseDate(as.Date)
	return d
}
