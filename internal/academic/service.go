package academic

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service coordinates semesters, subjects and the class session log.
type Service struct {
	repo Repository
}

// NewService creates a service backed by a repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ActivateSemester creates a new semester and makes it the only active one.
func (s *Service) ActivateSemester(ctx context.Context, name string) (Semester, error) {
	name = strings.TrimSpace(name)
	sem := Semester{
		ID:        uuid.NewString(),
		Name:      name,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	return s.repo.ActivateSemester(ctx, sem)
}

// ActiveSemester returns the single active semester, or ErrNoActiveSemester.
func (s *Service) ActiveSemester(ctx context.Context) (Semester, error) {
	return s.repo.ActiveSemester(ctx)
}

// ListSemesters returns all semesters, newest first.
func (s *Service) ListSemesters(ctx context.Context) ([]Semester, error) {
	return s.repo.ListSemesters(ctx)
}

// AddSubject registers a subject under a semester. Names are not required to
// be unique within a semester.
func (s *Service) AddSubject(ctx context.Context, semesterID, name string) (Subject, error) {
	sub := Subject{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(name),
		SemesterID: semesterID,
		CreatedAt:  time.Now().UTC(),
	}
	return s.repo.CreateSubject(ctx, sub)
}

// ListSubjects returns a semester's subjects in insertion order.
func (s *Service) ListSubjects(ctx context.Context, semesterID string) ([]Subject, error) {
	return s.repo.SubjectsBySemester(ctx, semesterID)
}

// RecordSession appends a class session to the log. The subject must belong
// to the target semester and hours must be positive. The session sequence
// number is allocated atomically so concurrent writers never collide.
func (s *Service) RecordSession(ctx context.Context, semesterID, subjectID string, date time.Time, hours int, note string) (ClassSession, error) {
	if hours <= 0 {
		return ClassSession{}, ErrInvalidHours
	}
	sub, err := s.repo.SubjectByID(ctx, subjectID)
	if err != nil {
		return ClassSession{}, ErrInvalidSubject
	}
	if sub.SemesterID != semesterID {
		return ClassSession{}, ErrInvalidSubject
	}
	seq, err := s.repo.NextSeq(ctx, semesterID)
	if err != nil {
		return ClassSession{}, err
	}
	sess := ClassSession{
		ID:         uuid.NewString(),
		SemesterID: semesterID,
		SubjectID:  subjectID,
		Seq:        seq,
		Date:       date.UTC().Truncate(24 * time.Hour),
		Hours:      hours,
		Note:       strings.TrimSpace(note),
		CreatedAt:  time.Now().UTC(),
	}
	return s.repo.CreateSession(ctx, sess)
}

// SessionByID returns one session from the log.
func (s *Service) SessionByID(ctx context.Context, id string) (ClassSession, error) {
	return s.repo.SessionByID(ctx, id)
}

// EditSession updates date, subject and hours in place. The sequence number
// is never reallocated.
func (s *Service) EditSession(ctx context.Context, sessionID string, date time.Time, subjectID string, hours int) error {
	if hours <= 0 {
		return ErrInvalidHours
	}
	sess, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	sub, err := s.repo.SubjectByID(ctx, subjectID)
	if err != nil {
		return ErrInvalidSubject
	}
	if sub.SemesterID != sess.SemesterID {
		return ErrInvalidSubject
	}
	sess.Date = date.UTC().Truncate(24 * time.Hour)
	sess.SubjectID = subjectID
	sess.Hours = hours
	return s.repo.UpdateSession(ctx, sess)
}

// DeleteSession removes a session together with every attendance mark
// referencing it.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.repo.DeleteSessionCascade(ctx, sessionID)
}

// ListSessions returns sessions matching the filter, ordered by sequence
// number in the requested direction.
func (s *Service) ListSessions(ctx context.Context, f SessionFilter) ([]ClassSession, error) {
	if !f.Date.IsZero() {
		f.Date = f.Date.UTC().Truncate(24 * time.Hour)
	}
	return s.repo.SessionsByFilter(ctx, f)
}
