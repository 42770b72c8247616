package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/mahudhurio/core/classroom"
)

type classRepository struct {
	db *classTable
}

var _ classroom.Repository = (*classRepository)(nil)

func NewClassRepository(db *DB) *classRepository {
	return &classRepository{db: db.class}
}

func (repo *classRepository) CreateClass(_ context.Context, class classroom.ClassRoom) (classroom.ClassRoom, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.classes[class.ID] = &class
	repo.db.students[class.ID] = make(map[string]*classroom.Student)
	repo.db.attendance[class.ID] = nil
	return class, nil
}

func (repo *classRepository) GetClassByID(_ context.Context, id string) (classroom.ClassRoom, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if class, ok := repo.db.classes[id]; ok {
		return *class, nil
	}
	return classroom.ClassRoom{}, classroom.ErrClassNotFound
}

func (repo *classRepository) QueryClassesByOwner(_ context.Context, ownerID string) ([]classroom.ClassRoom, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	classes := make([]classroom.ClassRoom, 0)
	for _, class := range repo.db.classes {
		if class.OwnerID == ownerID {
			classes = append(classes, *class)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].CreatedAt.Before(classes[j].CreatedAt) })
	return classes, nil
}

func (repo *classRepository) DeleteClass(_ context.Context, id string) error {
	mu := repo.db.lockClass(id)
	defer mu.Unlock()

	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[id]; !ok {
		return classroom.ErrClassNotFound
	}
	// single critical section: readers never observe a partial cascade
	delete(repo.db.classes, id)
	delete(repo.db.students, id)
	delete(repo.db.attendance, id)
	return nil
}

func (repo *classRepository) CreateStudent(_ context.Context, std classroom.Student) (classroom.Student, error) {
	mu := repo.db.lockClass(std.ClassID)
	defer mu.Unlock()

	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stds, ok := repo.db.students[std.ClassID]
	if !ok {
		return classroom.Student{}, classroom.ErrClassNotFound
	}
	stds[std.ID] = &std
	return std, nil
}

func (repo *classRepository) QueryStudentsByClass(_ context.Context, classID string) ([]classroom.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]classroom.Student, 0, len(repo.db.students[classID]))
	for _, std := range repo.db.students[classID] {
		students = append(students, *std)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func (repo *classRepository) DeleteStudent(_ context.Context, classID, studentID string) error {
	mu := repo.db.lockClass(classID)
	defer mu.Unlock()

	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stds, ok := repo.db.students[classID]
	if !ok {
		return classroom.ErrClassNotFound
	}
	if _, ok = stds[studentID]; !ok {
		return classroom.ErrStudentNotFound
	}
	delete(stds, studentID)

	// cascade: drop the student's attendance records
	records := repo.db.attendance[classID][:0]
	for _, rec := range repo.db.attendance[classID] {
		if rec.StudentID != studentID {
			records = append(records, rec)
		}
	}
	repo.db.attendance[classID] = records
	return nil
}

func (repo *classRepository) UpsertAttendance(_ context.Context, classID string, day classroom.Date, entries []classroom.AttendanceEntry) error {
	mu := repo.db.lockClass(classID)
	defer mu.Unlock()

	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stds, ok := repo.db.students[classID]
	if !ok {
		return classroom.ErrClassNotFound
	}
	for _, e := range entries {
		if _, ok = stds[e.StudentID]; !ok {
			return classroom.ErrStudentNotFound
		}
	}

	records := repo.db.attendance[classID]
	for _, e := range entries {
		var updated bool
		for i, rec := range records {
			if rec.StudentID == e.StudentID && rec.Date.String() == day.String() {
				records[i].Present = e.Present
				updated = true
				break
			}
		}
		if !updated {
			records = append(records, classroom.AttendanceRecord{
				ClassID:   classID,
				StudentID: e.StudentID,
				Date:      day,
				Present:   e.Present,
			})
		}
	}
	repo.db.attendance[classID] = records
	return nil
}

func (repo *classRepository) QueryAttendanceByClass(_ context.Context, classID string) ([]classroom.AttendanceRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	records := make([]classroom.AttendanceRecord, len(repo.db.attendance[classID]))
	copy(records, repo.db.attendance[classID])
	sort.SliceStable(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date.Time) })
	return records, nil
}
