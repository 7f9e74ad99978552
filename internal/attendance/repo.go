package attendance

import "context"

// Repository persists attendance marks. InsertMarkIfAbsent must detect an
// existing (student, session) pair atomically and skip the write; a plain
// read-check-then-insert is a race and is not an acceptable implementation.
// UpsertMark creates the mark when missing and otherwise updates only the
// presence flag.
type Repository interface {
	InsertMarkIfAbsent(ctx context.Context, m Mark) (inserted bool, err error)
	UpsertMark(ctx context.Context, m Mark) (Mark, error)
	MarkByID(ctx context.Context, id string) (Mark, error)
	DeleteMark(ctx context.Context, id string) error
	// MarksByStudent returns a student's marks, restricted to one semester
	// when semesterID is non-empty.
	MarksByStudent(ctx context.Context, studentID, semesterID string) ([]Mark, error)
}
