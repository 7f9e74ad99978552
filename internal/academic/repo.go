package academic

import "context"

// Repository persists semesters, subjects and class sessions. Implementations
// live in internal/storage and must keep these guarantees regardless of
// backend:
//
//   - ActivateSemester deactivates every other semester and activates the new
//     one atomically; readers never observe zero or two active semesters.
//   - NextSeq is an atomic fetch-and-increment per semester; concurrent
//     callers never receive the same value.
//   - DeleteSessionCascade removes the session and every attendance mark
//     referencing it as one atomic operation.
type Repository interface {
	ActivateSemester(ctx context.Context, sem Semester) (Semester, error)
	ActiveSemester(ctx context.Context) (Semester, error)
	ListSemesters(ctx context.Context) ([]Semester, error)

	CreateSubject(ctx context.Context, sub Subject) (Subject, error)
	SubjectByID(ctx context.Context, id string) (Subject, error)
	SubjectsBySemester(ctx context.Context, semesterID string) ([]Subject, error)

	NextSeq(ctx context.Context, semesterID string) (int, error)

	CreateSession(ctx context.Context, s ClassSession) (ClassSession, error)
	SessionByID(ctx context.Context, id string) (ClassSession, error)
	UpdateSession(ctx context.Context, s ClassSession) error
	DeleteSessionCascade(ctx context.Context, id string) error
	SessionsByFilter(ctx context.Context, f SessionFilter) ([]ClassSession, error)
}
