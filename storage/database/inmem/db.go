package inmemdb

import (
	"sync"

	"github.com/trezcool/mahudhurio/core/classroom"
	"github.com/trezcool/mahudhurio/core/user"
)

type (
	// DB is an in-memory ledger used by tests and local development.
	// It mirrors the semantics of the SQL store: cascading deletes,
	// attendance upsert per (student, day) and per-class write locks.
	DB struct {
		user  *userTable
		class *classTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	classTable struct {
		classes    map[string]*classroom.ClassRoom
		students   map[string]map[string]*classroom.Student      // classID -> studentID -> student
		attendance map[string][]classroom.AttendanceRecord       // classID -> records
		mutex      sync.RWMutex

		// classMu serializes writes per class so that cascades and
		// upserts on the same class never interleave.
		classMu   map[string]*sync.Mutex
		classMuMu sync.Mutex
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		class: &classTable{
			classes:    make(map[string]*classroom.ClassRoom),
			students:   make(map[string]map[string]*classroom.Student),
			attendance: make(map[string][]classroom.AttendanceRecord),
			classMu:    make(map[string]*sync.Mutex),
		},
	}
	return db, nil
}

func (t *classTable) lockClass(classID string) *sync.Mutex {
	t.classMuMu.Lock()
	mu, ok := t.classMu[classID]
	if !ok {
		mu = new(sync.Mutex)
		t.classMu[classID] = mu
	}
	t.classMuMu.Unlock()

	mu.Lock()
	return mu
}
