package classroom

import "math"

// ComputeStats derives a class's ClassStats from its current Student and
// AttendanceRecord sets. A session is one distinct calendar day with at
// least one record, regardless of how many students were recorded that
// day. The attendance rate is the percentage of individual records
// marked present, rounded half-up; it is 0 when there are no records.
//
// Pure and deterministic: identical inputs always yield identical stats.
func ComputeStats(students []Student, records []AttendanceRecord) ClassStats {
	stats := ClassStats{StudentCount: len(students)}
	if len(records) == 0 {
		return stats
	}

	days := make(map[string]struct{}, len(records))
	var present int
	for _, rec := range records {
		days[rec.Date.String()] = struct{}{}
		if rec.Present {
			present++
		}
	}
	stats.SessionCount = len(days)

	rate := int(math.Floor(100*float64(present)/float64(len(records)) + 0.5))
	if rate < 0 {
		rate = 0
	} else if rate > 100 {
		rate = 100
	}
	stats.AttendanceRate = rate
	return stats
}
