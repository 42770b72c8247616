package classroom_test

import (
	"context"
	"sync"
	"testing"

	"github.com/trezcool/mahudhurio/core/classroom"
	inmemdb "github.com/trezcool/mahudhurio/storage/database/inmem"
)

var ctx = context.Background()

func setup(t *testing.T) classroom.ServiceInterface {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}
	return classroom.NewService(inmemdb.NewClassRepository(db))
}

func createClass(t *testing.T, svc classroom.ServiceInterface, ownerID, name string) classroom.ClassRoom {
	t.Helper()
	res, err := svc.CreateClass(ctx, ownerID, classroom.NewClass{Name: name})
	if err != nil {
		t.Fatalf("CreateClass(): %v", err)
	}
	return *res.NewClass
}

func enroll(t *testing.T, svc classroom.ServiceInterface, ownerID, classID, name, regNo string) classroom.Student {
	t.Helper()
	res, err := svc.EnrollStudent(ctx, ownerID, classID, classroom.NewStudent{Name: name, RegistrationNumber: regNo})
	if err != nil {
		t.Fatalf("EnrollStudent(): %v", err)
	}
	return *res.NewStudent
}

func record(t *testing.T, svc classroom.ServiceInterface, ownerID, classID, day string, entries ...classroom.AttendanceEntry) classroom.MutationResult {
	t.Helper()
	res, err := svc.RecordAttendance(ctx, ownerID, classID, classroom.AttendanceSheet{Date: day, Records: entries})
	if err != nil {
		t.Fatalf("RecordAttendance(): %v", err)
	}
	return res
}

func Test_service_CreateClass(t *testing.T) {
	svc := setup(t)

	res, err := svc.CreateClass(ctx, "owner1", classroom.NewClass{Name: "Form 1A"})
	if err != nil {
		t.Fatalf("CreateClass(): %v", err)
	}
	if res.NewClass == nil || res.NewClass.ID == "" {
		t.Fatal("CreateClass() returned no NewClass")
	}
	if res.NewClass.OwnerID != "owner1" {
		t.Errorf("OwnerID = %q, want %q", res.NewClass.OwnerID, "owner1")
	}
	if len(res.Classes) != 1 {
		t.Fatalf("len(Classes) = %d, want 1", len(res.Classes))
	}
	if got := res.Classes[0].ClassStats; got != (classroom.ClassStats{}) {
		t.Errorf("new class stats = %+v, want zero", got)
	}
}

func Test_service_ownership(t *testing.T) {
	svc := setup(t)

	class := createClass(t, svc, "owner1", "Form 1A")
	std := enroll(t, svc, "owner1", class.ID, "Amani", "A1")

	// every class-scoped op must be invisible to other owners,
	// indistinguishably from a missing class
	ops := []struct {
		name string
		call func(ownerID, classID string) error
	}{
		{"ClassDetail", func(o, c string) error { _, _, _, err := svc.ClassDetail(ctx, o, c); return err }},
		{"DeleteClass", func(o, c string) error { _, err := svc.DeleteClass(ctx, o, c); return err }},
		{"EnrollStudent", func(o, c string) error {
			_, err := svc.EnrollStudent(ctx, o, c, classroom.NewStudent{Name: "X", RegistrationNumber: "X1"})
			return err
		}},
		{"DropStudent", func(o, c string) error { _, err := svc.DropStudent(ctx, o, c, std.ID); return err }},
		{"RecordAttendance", func(o, c string) error {
			_, err := svc.RecordAttendance(ctx, o, c, classroom.AttendanceSheet{
				Date:    "2026-03-02",
				Records: []classroom.AttendanceEntry{{StudentID: std.ID, Present: true}},
			})
			return err
		}},
	}
	for _, op := range ops {
		t.Run(op.name+": other owner", func(t *testing.T) {
			if err := op.call("owner2", class.ID); err != classroom.ErrClassNotFound {
				t.Errorf("error = %v, want %v", err, classroom.ErrClassNotFound)
			}
		})
		t.Run(op.name+": unknown class", func(t *testing.T) {
			if err := op.call("owner1", "nope"); err != classroom.ErrClassNotFound {
				t.Errorf("error = %v, want %v", err, classroom.ErrClassNotFound)
			}
		})
	}
}

func Test_service_RecordAttendance_upsert(t *testing.T) {
	svc := setup(t)

	class := createClass(t, svc, "owner1", "Form 1A")
	s1 := enroll(t, svc, "owner1", class.ID, "Amani", "A1")
	s2 := enroll(t, svc, "owner1", class.ID, "Baraka", "A2")

	record(t, svc, "owner1", class.ID, "2026-03-02",
		classroom.AttendanceEntry{StudentID: s1.ID, Present: true},
		classroom.AttendanceEntry{StudentID: s2.ID, Present: true},
	)

	// re-submitting for s1 only flips s1 and leaves s2 untouched
	res := record(t, svc, "owner1", class.ID, "2026-03-02",
		classroom.AttendanceEntry{StudentID: s1.ID, Present: false},
	)

	if len(res.Attendance) != 2 {
		t.Fatalf("len(Attendance) = %d, want 2", len(res.Attendance))
	}
	got := make(map[string]bool, 2)
	for _, rec := range res.Attendance {
		got[rec.StudentID] = rec.Present
	}
	if got[s1.ID] {
		t.Error("s1 should have been flipped to absent")
	}
	if !got[s2.ID] {
		t.Error("s2 should have stayed present")
	}

	if res.Classes[0].SessionCount != 1 {
		t.Errorf("SessionCount = %d, want 1", res.Classes[0].SessionCount)
	}
	if res.Classes[0].AttendanceRate != 50 {
		t.Errorf("AttendanceRate = %d, want 50", res.Classes[0].AttendanceRate)
	}
	if res.Students != nil {
		t.Error("RecordAttendance() must not return Students")
	}
}

func Test_service_RecordAttendance_unknownStudent(t *testing.T) {
	svc := setup(t)

	class := createClass(t, svc, "owner1", "Form 1A")
	s1 := enroll(t, svc, "owner1", class.ID, "Amani", "A1")

	_, err := svc.RecordAttendance(ctx, "owner1", class.ID, classroom.AttendanceSheet{
		Date: "2026-03-02",
		Records: []classroom.AttendanceEntry{
			{StudentID: s1.ID, Present: true},
			{StudentID: "nope", Present: true},
		},
	})
	if err != classroom.ErrStudentNotFound {
		t.Fatalf("error = %v, want %v", err, classroom.ErrStudentNotFound)
	}

	// the whole sheet must have been rejected
	_, _, records, err := svc.ClassDetail(ctx, "owner1", class.ID)
	if err != nil {
		t.Fatalf("ClassDetail(): %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}

func Test_service_DropStudent_cascades(t *testing.T) {
	svc := setup(t)

	class := createClass(t, svc, "owner1", "Form 1A")
	s1 := enroll(t, svc, "owner1", class.ID, "Amani", "A1")
	s2 := enroll(t, svc, "owner1", class.ID, "Baraka", "A2")

	record(t, svc, "owner1", class.ID, "2026-03-02",
		classroom.AttendanceEntry{StudentID: s1.ID, Present: true},
		classroom.AttendanceEntry{StudentID: s2.ID, Present: false},
	)

	res, err := svc.DropStudent(ctx, "owner1", class.ID, s1.ID)
	if err != nil {
		t.Fatalf("DropStudent(): %v", err)
	}
	if len(res.Students) != 1 || res.Students[0].ID != s2.ID {
		t.Errorf("Students = %+v, want only s2", res.Students)
	}
	for _, rec := range res.Attendance {
		if rec.StudentID == s1.ID {
			t.Error("dropped student still has attendance records")
		}
	}
	if res.Classes[0].StudentCount != 1 {
		t.Errorf("StudentCount = %d, want 1", res.Classes[0].StudentCount)
	}
	// only s2's absent record remains
	if res.Classes[0].AttendanceRate != 0 {
		t.Errorf("AttendanceRate = %d, want 0", res.Classes[0].AttendanceRate)
	}

	if _, err = svc.DropStudent(ctx, "owner1", class.ID, s1.ID); err != classroom.ErrStudentNotFound {
		t.Errorf("second drop error = %v, want %v", err, classroom.ErrStudentNotFound)
	}
}

func Test_service_DeleteClass_cascades(t *testing.T) {
	svc := setup(t)

	class := createClass(t, svc, "owner1", "Form 1A")
	keep := createClass(t, svc, "owner1", "Form 1B")
	s1 := enroll(t, svc, "owner1", class.ID, "Amani", "A1")
	record(t, svc, "owner1", class.ID, "2026-03-02",
		classroom.AttendanceEntry{StudentID: s1.ID, Present: true},
	)

	res, err := svc.DeleteClass(ctx, "owner1", class.ID)
	if err != nil {
		t.Fatalf("DeleteClass(): %v", err)
	}
	if len(res.Classes) != 1 || res.Classes[0].ID != keep.ID {
		t.Errorf("Classes = %+v, want only %q", res.Classes, keep.ID)
	}

	snap, err := svc.Snapshot(ctx, "owner1")
	if err != nil {
		t.Fatalf("Snapshot(): %v", err)
	}
	if _, ok := snap.Students[class.ID]; ok {
		t.Error("deleted class still present in Students")
	}
	if _, ok := snap.Attendance[class.ID]; ok {
		t.Error("deleted class still present in Attendance")
	}
}

func Test_service_Snapshot(t *testing.T) {
	svc := setup(t)

	// empty owner
	snap, err := svc.Snapshot(ctx, "owner1")
	if err != nil {
		t.Fatalf("Snapshot(): %v", err)
	}
	if len(snap.Classes) != 0 {
		t.Errorf("len(Classes) = %d, want 0", len(snap.Classes))
	}

	class := createClass(t, svc, "owner1", "Form 1A")
	createClass(t, svc, "owner2", "Other")

	snap, err = svc.Snapshot(ctx, "owner1")
	if err != nil {
		t.Fatalf("Snapshot(): %v", err)
	}
	if len(snap.Classes) != 1 {
		t.Fatalf("len(Classes) = %d, want 1 (must not see other owners)", len(snap.Classes))
	}
	// every class gets non-nil slices even when empty
	if snap.Students[class.ID] == nil {
		t.Error("Students[class] is nil, want empty slice")
	}
	if snap.Attendance[class.ID] == nil {
		t.Error("Attendance[class] is nil, want empty slice")
	}
}

// Dropping a student while a sheet mentioning them is being recorded
// must end in one of the two serialized outcomes, never orphan records.
func Test_service_concurrentDropAndRecord(t *testing.T) {
	svc := setup(t)

	class := createClass(t, svc, "owner1", "Form 1A")
	s1 := enroll(t, svc, "owner1", class.ID, "Amani", "A1")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.DropStudent(ctx, "owner1", class.ID, s1.ID)
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.RecordAttendance(ctx, "owner1", class.ID, classroom.AttendanceSheet{
				Date:    "2026-03-02",
				Records: []classroom.AttendanceEntry{{StudentID: s1.ID, Present: true}},
			})
		}()
		wg.Wait()
	}

	_, students, records, err := svc.ClassDetail(ctx, "owner1", class.ID)
	if err != nil {
		t.Fatalf("ClassDetail(): %v", err)
	}
	enrolled := make(map[string]bool, len(students))
	for _, std := range students {
		enrolled[std.ID] = true
	}
	for _, rec := range records {
		if !enrolled[rec.StudentID] {
			t.Errorf("orphan attendance record for %q", rec.StudentID)
		}
	}
}
