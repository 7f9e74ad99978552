package attendance

import (
	"errors"
	"time"
)

// Mark records one student's presence for one class session. At most one
// mark exists per (student, session) pair; the repository enforces this
// atomically. SemesterID is denormalized from the session so a student's
// marks can be listed per semester without a join.
type Mark struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	SessionID  string    `json:"session_id"`
	SemesterID string    `json:"semester_id"`
	Present    bool      `json:"present"`
	CreatedAt  time.Time `json:"created_at"`
}

// Outcome reports what MarkPresent did.
type Outcome string

const (
	Added         Outcome = "added"
	AlreadyMarked Outcome = "already_marked"
)

// BatchResult counts outcomes of a multi-session marking call.
type BatchResult struct {
	Added         int `json:"added"`
	AlreadyMarked int `json:"already_marked"`
}

// SubjectCoverage is the per-subject hour totals of a coverage report.
type SubjectCoverage struct {
	Subject       string `json:"subject"`
	TotalHours    int    `json:"total_hours"`
	AttendedHours int    `json:"attended_hours"`
}

// Coverage is a student's attendance report: scheduled vs attended hours per
// subject and overall, with the overall percentage.
type Coverage struct {
	Subjects      []SubjectCoverage `json:"subjects"`
	TotalHours    int               `json:"total_hours"`
	AttendedHours int               `json:"attended_hours"`
	Percent       float64           `json:"percent"`
}

// ErrNotFound signals a missing mark or session id.
var ErrNotFound = errors.New("not found")
