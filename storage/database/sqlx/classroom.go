package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core/classroom"
)

type classRow struct {
	ID        string    `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func (r classRow) toClass() classroom.ClassRoom {
	return classroom.ClassRoom{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type studentRow struct {
	ID                 string `db:"id"`
	ClassID            string `db:"class_id"`
	Name               string `db:"name"`
	RegistrationNumber string `db:"registration_number"`
}

func (r studentRow) toStudent() classroom.Student {
	return classroom.Student{
		ID:                 r.ID,
		ClassID:            r.ClassID,
		Name:               r.Name,
		RegistrationNumber: r.RegistrationNumber,
	}
}

type attendanceRow struct {
	ClassID   string    `db:"class_id"`
	StudentID string    `db:"student_id"`
	Day       time.Time `db:"day"`
	Present   bool      `db:"present"`
}

func (r attendanceRow) toRecord() classroom.AttendanceRecord {
	return classroom.AttendanceRecord{
		ClassID:   r.ClassID,
		StudentID: r.StudentID,
		Date:      classroom.DateOf(r.Day),
		Present:   r.Present,
	}
}

type classRepository struct {
	db *sqlx.DB
}

var _ classroom.Repository = (*classRepository)(nil)

func NewClassRepository(db *sqlx.DB) *classRepository {
	return &classRepository{db: db}
}

func (repo *classRepository) CreateClass(ctx context.Context, class classroom.ClassRoom) (classroom.ClassRoom, error) {
	query := `INSERT INTO classroom (id, owner_id, name, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := repo.db.ExecContext(ctx, query, class.ID, class.OwnerID, class.Name, class.CreatedAt); err != nil {
		return classroom.ClassRoom{}, errors.Wrap(err, "inserting class")
	}
	return class, nil
}

func (repo *classRepository) GetClassByID(ctx context.Context, id string) (classroom.ClassRoom, error) {
	var row classRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM classroom WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return classroom.ClassRoom{}, classroom.ErrClassNotFound
		}
		return classroom.ClassRoom{}, errors.Wrap(err, "getting class by ID")
	}
	return row.toClass(), nil
}

func (repo *classRepository) QueryClassesByOwner(ctx context.Context, ownerID string) ([]classroom.ClassRoom, error) {
	var rows []classRow
	err := repo.db.SelectContext(
		ctx, &rows, `SELECT * FROM classroom WHERE owner_id = $1 ORDER BY created_at`, ownerID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes by owner")
	}

	classes := make([]classroom.ClassRoom, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.toClass())
	}
	return classes, nil
}

func (repo *classRepository) DeleteClass(ctx context.Context, id string) error {
	return repo.inClassTx(ctx, id, func(tx *sqlx.Tx) error {
		// cascade: attendance -> students -> class, in one transaction
		if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_record WHERE class_id = $1`, id); err != nil {
			return errors.Wrap(err, "deleting class attendance")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM student WHERE class_id = $1`, id); err != nil {
			return errors.Wrap(err, "deleting class students")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM classroom WHERE id = $1`, id); err != nil {
			return errors.Wrap(err, "deleting class")
		}
		return nil
	})
}

func (repo *classRepository) CreateStudent(ctx context.Context, std classroom.Student) (classroom.Student, error) {
	err := repo.inClassTx(ctx, std.ClassID, func(tx *sqlx.Tx) error {
		query := `INSERT INTO student (id, class_id, name, registration_number) VALUES ($1, $2, $3, $4)`
		_, err := tx.ExecContext(ctx, query, std.ID, std.ClassID, std.Name, std.RegistrationNumber)
		return errors.Wrap(err, "inserting student")
	})
	if err != nil {
		return classroom.Student{}, err
	}
	return std, nil
}

func (repo *classRepository) QueryStudentsByClass(ctx context.Context, classID string) ([]classroom.Student, error) {
	var rows []studentRow
	err := repo.db.SelectContext(
		ctx, &rows, `SELECT * FROM student WHERE class_id = $1 ORDER BY name`, classID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying students by class")
	}

	students := make([]classroom.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.toStudent())
	}
	return students, nil
}

func (repo *classRepository) DeleteStudent(ctx context.Context, classID, studentID string) error {
	return repo.inClassTx(ctx, classID, func(tx *sqlx.Tx) error {
		query := `DELETE FROM attendance_record WHERE class_id = $1 AND student_id = $2`
		if _, err := tx.ExecContext(ctx, query, classID, studentID); err != nil {
			return errors.Wrap(err, "deleting student attendance")
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM student WHERE id = $1 AND class_id = $2`, studentID, classID)
		if err != nil {
			return errors.Wrap(err, "deleting student")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return classroom.ErrStudentNotFound
		}
		return nil
	})
}

func (repo *classRepository) UpsertAttendance(ctx context.Context, classID string, day classroom.Date, entries []classroom.AttendanceEntry) error {
	return repo.inClassTx(ctx, classID, func(tx *sqlx.Tx) error {
		// all submitted students must still be enrolled
		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.StudentID)
		}
		var count int
		query := `SELECT COUNT(DISTINCT id) FROM student WHERE class_id = $1 AND id = ANY($2)`
		if err := tx.GetContext(ctx, &count, query, classID, pq.Array(ids)); err != nil {
			return errors.Wrap(err, "checking enrolled students")
		}
		if count != len(dedupe(ids)) {
			return classroom.ErrStudentNotFound
		}

		query = `
INSERT INTO attendance_record (class_id, student_id, day, present)
VALUES ($1, $2, $3, $4)
ON CONFLICT (class_id, student_id, day) DO UPDATE SET present = EXCLUDED.present`
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, query, classID, e.StudentID, day.Time, e.Present); err != nil {
				return errors.Wrap(err, "upserting attendance record")
			}
		}
		return nil
	})
}

func (repo *classRepository) QueryAttendanceByClass(ctx context.Context, classID string) ([]classroom.AttendanceRecord, error) {
	var rows []attendanceRow
	err := repo.db.SelectContext(
		ctx, &rows, `SELECT * FROM attendance_record WHERE class_id = $1 ORDER BY day, student_id`, classID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance by class")
	}

	records := make([]classroom.AttendanceRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

// inClassTx runs fn in a transaction holding a row lock on the class,
// serializing all writes to that class and its children.
func (repo *classRepository) inClassTx(ctx context.Context, classID string, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.GetContext(ctx, &id, `SELECT id FROM classroom WHERE id = $1 FOR UPDATE`, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return classroom.ErrClassNotFound
		}
		return errors.Wrap(err, "locking class")
	}

	if err = fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
