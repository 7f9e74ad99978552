package academic

import "time"

// Semester is one academic term. At most one semester is active at a time;
// activation is an exclusive switch handled by the repository.
type Semester struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Subject is a course taught within one semester.
type Subject struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SemesterID string    `json:"semester_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClassSession is a single taught class. Seq is unique within the semester
// and monotonically increasing; gaps after deletions are fine.
type ClassSession struct {
	ID         string    `json:"id"`
	SemesterID string    `json:"semester_id"`
	SubjectID  string    `json:"subject_id"`
	Seq        int       `json:"seq"`
	Date       time.Time `json:"date"`
	Hours      int       `json:"hours"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionFilter selects sessions for listing. A zero Date means no date
// filter. Ascending orders by Seq ascending (attendance-marking views);
// management views use descending.
type SessionFilter struct {
	SemesterID string
	Date       time.Time
	Ascending  bool
}
