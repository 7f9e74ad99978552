package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/academic"
	"classtrack/internal/roster"
)

// Schedule exposes the class session log the ledger validates marks against.
// Satisfied by *academic.Service.
type Schedule interface {
	SessionByID(ctx context.Context, id string) (academic.ClassSession, error)
	ListSessions(ctx context.Context, f academic.SessionFilter) ([]academic.ClassSession, error)
	ListSubjects(ctx context.Context, semesterID string) ([]academic.Subject, error)
}

// Directory resolves students. Satisfied by *roster.Service.
type Directory interface {
	StudentByID(ctx context.Context, id string) (roster.Student, error)
}

// Service is the attendance ledger and the coverage aggregator.
type Service struct {
	repo     Repository
	schedule Schedule
	students Directory
}

// NewService creates a service.
func NewService(repo Repository, schedule Schedule, students Directory) *Service {
	return &Service{repo: repo, schedule: schedule, students: students}
}

// MarkPresent records a presence mark for one session. It is idempotent: a
// duplicate submission reports AlreadyMarked and writes nothing.
func (s *Service) MarkPresent(ctx context.Context, studentID, sessionID string) (Outcome, error) {
	sess, err := s.schedule.SessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, academic.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	m := Mark{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		SessionID:  sessionID,
		SemesterID: sess.SemesterID,
		Present:    true,
		CreatedAt:  time.Now().UTC(),
	}
	inserted, err := s.repo.InsertMarkIfAbsent(ctx, m)
	if err != nil {
		return "", err
	}
	if !inserted {
		return AlreadyMarked, nil
	}
	return Added, nil
}

// MarkSessions marks several sessions in one call. Sessions are processed
// independently: one duplicate never fails the batch, and the result counts
// both outcomes.
func (s *Service) MarkSessions(ctx context.Context, studentID string, sessionIDs []string) (BatchResult, error) {
	var res BatchResult
	for _, id := range sessionIDs {
		out, err := s.MarkPresent(ctx, studentID, id)
		if err != nil {
			return res, err
		}
		switch out {
		case Added:
			res.Added++
		case AlreadyMarked:
			res.AlreadyMarked++
		}
	}
	return res, nil
}

// SetPresence upserts a mark with the given flag. Unlike MarkPresent this
// overwrites an existing mark's presence.
func (s *Service) SetPresence(ctx context.Context, studentID, sessionID string, present bool) (Mark, error) {
	sess, err := s.schedule.SessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, academic.ErrNotFound) {
			return Mark{}, ErrNotFound
		}
		return Mark{}, err
	}
	m := Mark{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		SessionID:  sessionID,
		SemesterID: sess.SemesterID,
		Present:    present,
		CreatedAt:  time.Now().UTC(),
	}
	return s.repo.UpsertMark(ctx, m)
}

// MarkByID returns one mark.
func (s *Service) MarkByID(ctx context.Context, markID string) (Mark, error) {
	return s.repo.MarkByID(ctx, markID)
}

// DeleteMark removes one mark.
func (s *Service) DeleteMark(ctx context.Context, markID string) error {
	return s.repo.DeleteMark(ctx, markID)
}

// ListMarks returns a student's marks, restricted to one semester when
// semesterID is non-empty.
func (s *Service) ListMarks(ctx context.Context, studentID, semesterID string) ([]Mark, error) {
	return s.repo.MarksByStudent(ctx, studentID, semesterID)
}
