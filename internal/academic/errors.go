package academic

import "errors"

var (
	// ErrNoActiveSemester is returned by every operation that needs a
	// current semester when none is active.
	ErrNoActiveSemester = errors.New("no active semester")

	// ErrInvalidSubject signals a session referencing a subject outside
	// the target semester (or a subject that does not exist).
	ErrInvalidSubject = errors.New("subject does not belong to semester")

	// ErrInvalidHours signals non-positive session hours.
	ErrInvalidHours = errors.New("hours must be a positive integer")

	// ErrNotFound signals a missing semester, subject or session id.
	ErrNotFound = errors.New("not found")
)
