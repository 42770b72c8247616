package classroom

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// errors

	// ErrClassNotFound is returned both when a class does not exist and
	// when it is not owned by the caller; the two cases are deliberately
	// indistinguishable so that class IDs cannot be probed.
	ErrClassNotFound = errors.New("class not found")

	ErrStudentNotFound = errors.New("student not found")
)

type (
	// Repository is the ledger of classes, students and attendance
	// records. Implementations enforce referential integrity (cascading
	// deletes, attendance must reference an enrolled student) and
	// serialize writes per class; they do no authorization.
	Repository interface {
		CreateClass(ctx context.Context, class ClassRoom) (ClassRoom, error)
		GetClassByID(ctx context.Context, id string) (ClassRoom, error)
		QueryClassesByOwner(ctx context.Context, ownerID string) ([]ClassRoom, error)
		// DeleteClass removes the class, its Students and its
		// AttendanceRecords; no reader observes a partial cascade.
		DeleteClass(ctx context.Context, id string) error

		CreateStudent(ctx context.Context, std Student) (Student, error)
		QueryStudentsByClass(ctx context.Context, classID string) ([]Student, error)
		// DeleteStudent removes the student and all their AttendanceRecords.
		DeleteStudent(ctx context.Context, classID, studentID string) error

		// UpsertAttendance replaces records for the given (student, day)
		// keys and leaves other students' records for that day untouched.
		UpsertAttendance(ctx context.Context, classID string, day Date, entries []AttendanceEntry) error
		QueryAttendanceByClass(ctx context.Context, classID string) ([]AttendanceRecord, error)
	}

	ServiceInterface interface {
		Snapshot(ctx context.Context, ownerID string) (Snapshot, error)
		ClassDetail(ctx context.Context, ownerID, classID string) (ClassRoom, []Student, []AttendanceRecord, error)
		CreateClass(ctx context.Context, ownerID string, nc NewClass) (MutationResult, error)
		DeleteClass(ctx context.Context, ownerID, classID string) (MutationResult, error)
		EnrollStudent(ctx context.Context, ownerID, classID string, ns NewStudent) (MutationResult, error)
		DropStudent(ctx context.Context, ownerID, classID, studentID string) (MutationResult, error)
		RecordAttendance(ctx context.Context, ownerID, classID string, sheet AttendanceSheet) (MutationResult, error)
	}

	// service orchestrates mutations: ownership check, write, stats
	// recompute, fresh snapshot slices back to the caller. It holds no
	// state across calls.
	service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository) *service {
	return &service{repo: repo}
}

// getOwnedClass loads a class and checks ownership. A missing class and
// a class owned by someone else yield the same ErrClassNotFound.
func (svc *service) getOwnedClass(ctx context.Context, ownerID, classID string) (ClassRoom, error) {
	class, err := svc.repo.GetClassByID(ctx, classID)
	if err != nil {
		return ClassRoom{}, err
	}
	if class.OwnerID != ownerID {
		return ClassRoom{}, ErrClassNotFound
	}
	return class, nil
}

// withStats loads a class's students and records and fills in freshly
// computed stats.
func (svc *service) withStats(ctx context.Context, class ClassRoom) (ClassRoom, error) {
	students, err := svc.repo.QueryStudentsByClass(ctx, class.ID)
	if err != nil {
		return ClassRoom{}, errors.Wrap(err, "querying students")
	}
	records, err := svc.repo.QueryAttendanceByClass(ctx, class.ID)
	if err != nil {
		return ClassRoom{}, errors.Wrap(err, "querying attendance")
	}
	class.ClassStats = ComputeStats(students, records)
	return class, nil
}

func (svc *service) classesWithStats(ctx context.Context, ownerID string) ([]ClassRoom, error) {
	classes, err := svc.repo.QueryClassesByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	for i, class := range classes {
		if classes[i], err = svc.withStats(ctx, class); err != nil {
			return nil, err
		}
	}
	return classes, nil
}

func (svc *service) Snapshot(ctx context.Context, ownerID string) (Snapshot, error) {
	classes, err := svc.classesWithStats(ctx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Classes:    classes,
		Students:   make(map[string][]Student, len(classes)),
		Attendance: make(map[string][]AttendanceRecord, len(classes)),
	}
	for _, class := range classes {
		students, err := svc.repo.QueryStudentsByClass(ctx, class.ID)
		if err != nil {
			return Snapshot{}, errors.Wrap(err, "querying students")
		}
		records, err := svc.repo.QueryAttendanceByClass(ctx, class.ID)
		if err != nil {
			return Snapshot{}, errors.Wrap(err, "querying attendance")
		}
		if students == nil {
			students = []Student{}
		}
		if records == nil {
			records = []AttendanceRecord{}
		}
		snap.Students[class.ID] = students
		snap.Attendance[class.ID] = records
	}
	return snap, nil
}

func (svc *service) ClassDetail(ctx context.Context, ownerID, classID string) (ClassRoom, []Student, []AttendanceRecord, error) {
	class, err := svc.getOwnedClass(ctx, ownerID, classID)
	if err != nil {
		return ClassRoom{}, nil, nil, err
	}
	students, err := svc.repo.QueryStudentsByClass(ctx, classID)
	if err != nil {
		return ClassRoom{}, nil, nil, errors.Wrap(err, "querying students")
	}
	records, err := svc.repo.QueryAttendanceByClass(ctx, classID)
	if err != nil {
		return ClassRoom{}, nil, nil, errors.Wrap(err, "querying attendance")
	}
	class.ClassStats = ComputeStats(students, records)
	return class, students, records, nil
}

func (svc *service) CreateClass(ctx context.Context, ownerID string, nc NewClass) (MutationResult, error) {
	class := ClassRoom{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      nc.Name,
		CreatedAt: time.Now().UTC(),
	}
	class, err := svc.repo.CreateClass(ctx, class)
	if err != nil {
		return MutationResult{}, errors.Wrap(err, "creating class")
	}

	classes, err := svc.classesWithStats(ctx, ownerID)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{Classes: classes, NewClass: &class}, nil
}

func (svc *service) DeleteClass(ctx context.Context, ownerID, classID string) (MutationResult, error) {
	if _, err := svc.getOwnedClass(ctx, ownerID, classID); err != nil {
		return MutationResult{}, err
	}
	if err := svc.repo.DeleteClass(ctx, classID); err != nil {
		return MutationResult{}, errors.Wrap(err, "deleting class")
	}

	classes, err := svc.classesWithStats(ctx, ownerID)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{Classes: classes}, nil
}

func (svc *service) EnrollStudent(ctx context.Context, ownerID, classID string, ns NewStudent) (MutationResult, error) {
	if _, err := svc.getOwnedClass(ctx, ownerID, classID); err != nil {
		return MutationResult{}, err
	}

	std := Student{
		ID:                 uuid.New().String(),
		ClassID:            classID,
		Name:               ns.Name,
		RegistrationNumber: ns.RegistrationNumber,
	}
	std, err := svc.repo.CreateStudent(ctx, std)
	if err != nil {
		return MutationResult{}, errors.Wrap(err, "enrolling student")
	}

	res, err := svc.refreshClass(ctx, ownerID, classID, true /* students */, false /* attendance */)
	if err != nil {
		return MutationResult{}, err
	}
	res.NewStudent = &std
	return res, nil
}

func (svc *service) DropStudent(ctx context.Context, ownerID, classID, studentID string) (MutationResult, error) {
	if _, err := svc.getOwnedClass(ctx, ownerID, classID); err != nil {
		return MutationResult{}, err
	}
	if err := svc.repo.DeleteStudent(ctx, classID, studentID); err != nil {
		if errors.Cause(err) == ErrStudentNotFound {
			return MutationResult{}, err
		}
		return MutationResult{}, errors.Wrap(err, "dropping student")
	}
	return svc.refreshClass(ctx, ownerID, classID, true /* students */, true /* attendance */)
}

func (svc *service) RecordAttendance(ctx context.Context, ownerID, classID string, sheet AttendanceSheet) (MutationResult, error) {
	if _, err := svc.getOwnedClass(ctx, ownerID, classID); err != nil {
		return MutationResult{}, err
	}
	if err := svc.repo.UpsertAttendance(ctx, classID, sheet.Day(), sheet.Records); err != nil {
		if errors.Cause(err) == ErrStudentNotFound {
			return MutationResult{}, err
		}
		return MutationResult{}, errors.Wrap(err, "recording attendance")
	}
	return svc.refreshClass(ctx, ownerID, classID, false /* students */, true /* attendance */)
}

// refreshClass builds the post-mutation result for one class: all of the
// owner's classes with fresh stats, plus the requested slices for the
// mutated class.
func (svc *service) refreshClass(ctx context.Context, ownerID, classID string, students, attendance bool) (MutationResult, error) {
	classes, err := svc.classesWithStats(ctx, ownerID)
	if err != nil {
		return MutationResult{}, err
	}
	res := MutationResult{Classes: classes}

	if students {
		stds, err := svc.repo.QueryStudentsByClass(ctx, classID)
		if err != nil {
			return MutationResult{}, errors.Wrap(err, "querying students")
		}
		if stds == nil {
			stds = []Student{}
		}
		res.Students = stds
	}
	if attendance {
		records, err := svc.repo.QueryAttendanceByClass(ctx, classID)
		if err != nil {
			return MutationResult{}, errors.Wrap(err, "querying attendance")
		}
		if records == nil {
			records = []AttendanceRecord{}
		}
		res.Attendance = records
	}
	return res, nil
}
