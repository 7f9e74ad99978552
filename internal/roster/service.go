package roster

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"classtrack/internal/academic"
)

// SemesterSource resolves the currently active semester. Satisfied by
// *academic.Service.
type SemesterSource interface {
	ActiveSemester(ctx context.Context) (academic.Semester, error)
}

// Service manages accounts, student profiles and role transitions.
type Service struct {
	repo       Repository
	semesters  SemesterSource
	ownerEmail string
}

// NewService creates a service. ownerEmail is the reserved address whose
// first registrant becomes the owner.
func NewService(repo Repository, semesters SemesterSource, ownerEmail string) *Service {
	return &Service{
		repo:       repo,
		semesters:  semesters,
		ownerEmail: strings.ToLower(strings.TrimSpace(ownerEmail)),
	}
}

// Register creates an account. The reserved owner email registers as owner,
// everyone else as student.
func (s *Service) Register(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	role := RoleStudent
	if email == s.ownerEmail {
		role = RoleOwner
	}
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	return s.repo.CreateUser(ctx, u)
}

// Authenticate checks email and password. It returns ErrBadCredentials for
// both unknown emails and wrong passwords.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := s.repo.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrBadCredentials
		}
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

// UserByID returns one user.
func (s *Service) UserByID(ctx context.Context, id string) (User, error) {
	return s.repo.UserByID(ctx, id)
}

// ListUsers returns all accounts for the management screen.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// CompleteProfile creates or updates the caller's student profile against
// the active semester. Resubmission updates name and roll; the user link and
// enrollment semester never change.
func (s *Service) CompleteProfile(ctx context.Context, userID, name, roll string) (Student, error) {
	sem, err := s.semesters.ActiveSemester(ctx)
	if err != nil {
		return Student{}, err
	}
	st := Student{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       strings.TrimSpace(name),
		Roll:       strings.TrimSpace(roll),
		SemesterID: sem.ID,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	return s.repo.UpsertStudent(ctx, st)
}

// StudentForUser resolves the student profile linked to a user, or
// ErrNotFound when the profile has not been completed yet.
func (s *Service) StudentForUser(ctx context.Context, userID string) (Student, error) {
	return s.repo.StudentByUserID(ctx, userID)
}

// StudentByID returns one student.
func (s *Service) StudentByID(ctx context.Context, id string) (Student, error) {
	return s.repo.StudentByID(ctx, id)
}

// SetRole switches a user between editor and student. The transition is
// reversible and touches no other field. Owner accounts are untouchable and
// the owner role cannot be handed out.
func (s *Service) SetRole(ctx context.Context, userID, role string) error {
	if role != RoleEditor && role != RoleStudent {
		return ErrInvalidRole
	}
	u, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role == RoleOwner {
		return ErrProtectedRole
	}
	return s.repo.UpdateUserRole(ctx, userID, role)
}

// DeleteUser removes an account with its student record and attendance
// marks. Owner accounts are never deletable this way and users may not
// delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return ErrSelfDeletion
	}
	u, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role == RoleOwner {
		return ErrProtectedRole
	}
	return s.repo.DeleteUserCascade(ctx, userID)
}
