// Package memory is the mutex-guarded in-memory storage backend, used by
// tests and dev mode. One lock covers every table so the read-modify-write
// invariants (exclusive semester activation, sequence allocation, duplicate
// mark detection) hold under concurrent callers.
package memory

import (
	"context"
	"sort"
	"sync"

	"classtrack/internal/academic"
	"classtrack/internal/attendance"
	"classtrack/internal/roster"
)

// Store implements academic.Repository, attendance.Repository and
// roster.Repository over in-process maps.
type Store struct {
	mu sync.RWMutex

	semesters []*academic.Semester
	subjects  []*academic.Subject
	sessions  map[string]*academic.ClassSession
	seqs      map[string]int

	users         map[string]*roster.User
	students      map[string]*roster.Student
	studentByUser map[string]string

	marks   map[string]*attendance.Mark
	markKey map[string]string // studentID+"\x00"+sessionID -> mark id
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions:      make(map[string]*academic.ClassSession),
		seqs:          make(map[string]int),
		users:         make(map[string]*roster.User),
		students:      make(map[string]*roster.Student),
		studentByUser: make(map[string]string),
		marks:         make(map[string]*attendance.Mark),
		markKey:       make(map[string]string),
	}
}

func markKey(studentID, sessionID string) string {
	return studentID + "\x00" + sessionID
}

// --- academic.Repository ---

func (s *Store) ActivateSemester(ctx context.Context, sem academic.Semester) (academic.Semester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.semesters {
		existing.Active = false
	}
	cp := sem
	cp.Active = true
	s.semesters = append(s.semesters, &cp)
	return cp, nil
}

func (s *Store) ActiveSemester(ctx context.Context) (academic.Semester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sem := range s.semesters {
		if sem.Active {
			return *sem, nil
		}
	}
	return academic.Semester{}, academic.ErrNoActiveSemester
}

func (s *Store) ListSemesters(ctx context.Context) ([]academic.Semester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]academic.Semester, 0, len(s.semesters))
	for i := len(s.semesters) - 1; i >= 0; i-- {
		out = append(out, *s.semesters[i])
	}
	return out, nil
}

func (s *Store) CreateSubject(ctx context.Context, sub academic.Subject) (academic.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := sub
	s.subjects = append(s.subjects, &cp)
	return cp, nil
}

func (s *Store) SubjectByID(ctx context.Context, id string) (academic.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subjects {
		if sub.ID == id {
			return *sub, nil
		}
	}
	return academic.Subject{}, academic.ErrNotFound
}

func (s *Store) SubjectsBySemester(ctx context.Context, semesterID string) ([]academic.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []academic.Subject
	for _, sub := range s.subjects {
		if sub.SemesterID == semesterID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *Store) NextSeq(ctx context.Context, semesterID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seqs[semesterID]++
	return s.seqs[semesterID], nil
}

func (s *Store) CreateSession(ctx context.Context, sess academic.ClassSession) (academic.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := sess
	s.sessions[cp.ID] = &cp
	return cp, nil
}

func (s *Store) SessionByID(ctx context.Context, id string) (academic.ClassSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[id]; ok {
		return *sess, nil
	}
	return academic.ClassSession{}, academic.ErrNotFound
}

func (s *Store) UpdateSession(ctx context.Context, sess academic.ClassSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[sess.ID]
	if !ok {
		return academic.ErrNotFound
	}
	existing.Date = sess.Date
	existing.SubjectID = sess.SubjectID
	existing.Hours = sess.Hours
	existing.Note = sess.Note
	return nil
}

func (s *Store) DeleteSessionCascade(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return academic.ErrNotFound
	}
	for markID, m := range s.marks {
		if m.SessionID == id {
			delete(s.markKey, markKey(m.StudentID, m.SessionID))
			delete(s.marks, markID)
		}
	}
	delete(s.sessions, id)
	return nil
}

func (s *Store) SessionsByFilter(ctx context.Context, f academic.SessionFilter) ([]academic.ClassSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []academic.ClassSession
	for _, sess := range s.sessions {
		if sess.SemesterID != f.SemesterID {
			continue
		}
		if !f.Date.IsZero() && !sess.Date.Equal(f.Date) {
			continue
		}
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if f.Ascending {
			return out[i].Seq < out[j].Seq
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

// --- roster.Repository ---

func (s *Store) CreateUser(ctx context.Context, u roster.User) (roster.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return roster.User{}, roster.ErrEmailExists
		}
	}
	cp := u
	s.users[cp.ID] = &cp
	return cp, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (roster.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.users[id]; ok {
		return *u, nil
	}
	return roster.User{}, roster.ErrNotFound
}

func (s *Store) UserByEmail(ctx context.Context, email string) (roster.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return roster.User{}, roster.ErrNotFound
}

func (s *Store) ListUsers(ctx context.Context) ([]roster.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]roster.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateUserRole(ctx context.Context, id, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return roster.ErrNotFound
	}
	u.Role = role
	return nil
}

func (s *Store) DeleteUserCascade(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return roster.ErrNotFound
	}
	if stID, ok := s.studentByUser[id]; ok {
		for markID, m := range s.marks {
			if m.StudentID == stID {
				delete(s.markKey, markKey(m.StudentID, m.SessionID))
				delete(s.marks, markID)
			}
		}
		delete(s.students, stID)
		delete(s.studentByUser, id)
	}
	delete(s.users, id)
	return nil
}

func (s *Store) UpsertStudent(ctx context.Context, st roster.Student) (roster.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.studentByUser[st.UserID]; ok {
		existing := s.students[existingID]
		existing.Name = st.Name
		existing.Roll = st.Roll
		return *existing, nil
	}
	cp := st
	s.students[cp.ID] = &cp
	s.studentByUser[cp.UserID] = cp.ID
	return cp, nil
}

func (s *Store) StudentByID(ctx context.Context, id string) (roster.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.students[id]; ok {
		return *st, nil
	}
	return roster.Student{}, roster.ErrNotFound
}

func (s *Store) StudentByUserID(ctx context.Context, userID string) (roster.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if stID, ok := s.studentByUser[userID]; ok {
		return *s.students[stID], nil
	}
	return roster.Student{}, roster.ErrNotFound
}

// --- attendance.Repository ---

func (s *Store) InsertMarkIfAbsent(ctx context.Context, m attendance.Mark) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := markKey(m.StudentID, m.SessionID)
	if _, ok := s.markKey[key]; ok {
		return false, nil
	}
	cp := m
	s.marks[cp.ID] = &cp
	s.markKey[key] = cp.ID
	return true, nil
}

func (s *Store) UpsertMark(ctx context.Context, m attendance.Mark) (attendance.Mark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := markKey(m.StudentID, m.SessionID)
	if existingID, ok := s.markKey[key]; ok {
		existing := s.marks[existingID]
		existing.Present = m.Present
		return *existing, nil
	}
	cp := m
	s.marks[cp.ID] = &cp
	s.markKey[key] = cp.ID
	return cp, nil
}

func (s *Store) MarkByID(ctx context.Context, id string) (attendance.Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.marks[id]; ok {
		return *m, nil
	}
	return attendance.Mark{}, attendance.ErrNotFound
}

func (s *Store) DeleteMark(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.marks[id]
	if !ok {
		return attendance.ErrNotFound
	}
	delete(s.markKey, markKey(m.StudentID, m.SessionID))
	delete(s.marks, id)
	return nil
}

func (s *Store) MarksByStudent(ctx context.Context, studentID, semesterID string) ([]attendance.Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []attendance.Mark
	for _, m := range s.marks {
		if m.StudentID != studentID {
			continue
		}
		if semesterID != "" && m.SemesterID != semesterID {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
