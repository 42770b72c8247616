package classroom

import "testing"

func date(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func TestComputeStats(t *testing.T) {
	students := []Student{
		{ID: "s1", ClassID: "c1", Name: "Amani", RegistrationNumber: "A1"},
		{ID: "s2", ClassID: "c1", Name: "Baraka", RegistrationNumber: "A2"},
	}
	rec := func(studentID, day string, present bool) AttendanceRecord {
		return AttendanceRecord{ClassID: "c1", StudentID: studentID, Date: date(t, day), Present: present}
	}

	tests := []struct {
		name     string
		students []Student
		records  []AttendanceRecord
		want     ClassStats
	}{
		{name: "empty class", want: ClassStats{}},
		{name: "students but no records", students: students, want: ClassStats{StudentCount: 2}},
		{
			name:     "two students over two days",
			students: students,
			records: []AttendanceRecord{
				rec("s1", "2026-03-02", true),
				rec("s2", "2026-03-02", true),
				rec("s1", "2026-03-03", true),
				rec("s2", "2026-03-03", false),
			},
			want: ClassStats{StudentCount: 2, SessionCount: 2, AttendanceRate: 75},
		},
		{
			name:     "same day counts as one session",
			students: students,
			records: []AttendanceRecord{
				rec("s1", "2026-03-02", true),
				rec("s2", "2026-03-02", false),
			},
			want: ClassStats{StudentCount: 2, SessionCount: 1, AttendanceRate: 50},
		},
		{
			name:     "rate rounds half up",
			students: students[:1],
			records: []AttendanceRecord{
				rec("s1", "2026-03-02", true),
				rec("s1", "2026-03-03", true),
				rec("s1", "2026-03-04", true),
				rec("s1", "2026-03-05", true),
				rec("s1", "2026-03-06", true),
				rec("s1", "2026-03-09", false),
				rec("s1", "2026-03-10", false),
				rec("s1", "2026-03-11", false),
			},
			// 5/8 = 62.5% -> 63
			want: ClassStats{StudentCount: 1, SessionCount: 8, AttendanceRate: 63},
		},
		{
			name:     "all present",
			students: students[:1],
			records:  []AttendanceRecord{rec("s1", "2026-03-02", true)},
			want:     ClassStats{StudentCount: 1, SessionCount: 1, AttendanceRate: 100},
		},
		{
			name:     "all absent",
			students: students[:1],
			records:  []AttendanceRecord{rec("s1", "2026-03-02", false)},
			want:     ClassStats{StudentCount: 1, SessionCount: 1, AttendanceRate: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStats(tt.students, tt.records)
			if got != tt.want {
				t.Errorf("ComputeStats() = %+v, want %+v", got, tt.want)
			}

			// deterministic: recomputing must not drift
			if again := ComputeStats(tt.students, tt.records); again != got {
				t.Errorf("ComputeStats() not deterministic: %+v then %+v", got, again)
			}
		})
	}
}
