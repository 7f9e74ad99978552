package roster

import "errors"

var (
	// ErrNotFound signals a missing user or student id.
	ErrNotFound = errors.New("not found")

	// ErrEmailExists signals a registration against an email already taken.
	ErrEmailExists = errors.New("email already registered")

	// ErrBadCredentials signals a failed login.
	ErrBadCredentials = errors.New("invalid email or password")

	// ErrProtectedRole guards the owner account against deletion and the
	// owner role against assignment or removal.
	ErrProtectedRole = errors.New("owner role is protected")

	// ErrSelfDeletion rejects a user deleting their own account.
	ErrSelfDeletion = errors.New("cannot delete own account")

	// ErrInvalidRole rejects role values outside editor/student transitions.
	ErrInvalidRole = errors.New("invalid role")
)
