package roster

import "context"

// Repository persists users and students. DeleteUserCascade removes the
// user's attendance marks, then the student record, then the user, as one
// atomic operation. UpsertStudent is keyed on UserID: a resubmission updates
// name and roll rather than inserting a duplicate, and never rebinds the
// user link or the enrollment semester.
type Repository interface {
	CreateUser(ctx context.Context, u User) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUserRole(ctx context.Context, id, role string) error
	DeleteUserCascade(ctx context.Context, id string) error

	UpsertStudent(ctx context.Context, st Student) (Student, error)
	StudentByID(ctx context.Context, id string) (Student, error)
	StudentByUserID(ctx context.Context, userID string) (Student, error)
}
