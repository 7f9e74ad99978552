// Package postgres is the relational storage backend, using raw SQL over
// database/sql with the pgx stdlib driver. Foreign keys back the cascades
// and ON CONFLICT clauses make the uniqueness-sensitive writes atomic.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"classtrack/internal/academic"
	"classtrack/internal/attendance"
	"classtrack/internal/roster"
)

// Schema is the DDL applied by Migrate. Kept as plain statements so it can
// also be applied by hand.
const Schema = `
CREATE TABLE IF NOT EXISTS semesters (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS subjects (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL,
	semester_id UUID NOT NULL REFERENCES semesters(id),
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS seq_counters (
	semester_id UUID PRIMARY KEY,
	value       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS class_sessions (
	id          UUID PRIMARY KEY,
	semester_id UUID NOT NULL REFERENCES semesters(id),
	subject_id  UUID NOT NULL REFERENCES subjects(id),
	seq         INTEGER NOT NULL,
	date        DATE NOT NULL,
	hours       INTEGER NOT NULL CHECK (hours > 0),
	note        TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (semester_id, seq)
);

CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash BYTEA NOT NULL,
	role          TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS students (
	id          UUID PRIMARY KEY,
	user_id     UUID NOT NULL UNIQUE REFERENCES users(id),
	name        TEXT NOT NULL,
	roll        TEXT NOT NULL,
	semester_id UUID NOT NULL REFERENCES semesters(id),
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS marks (
	id          UUID PRIMARY KEY,
	student_id  UUID NOT NULL REFERENCES students(id),
	session_id  UUID NOT NULL REFERENCES class_sessions(id),
	semester_id UUID NOT NULL,
	present     BOOLEAN NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (student_id, session_id)
);
`

// semesterSwitchLock serializes semester activation. READ COMMITTED alone
// lets two concurrent activators each miss the other's uncommitted insert
// and leave two active rows.
const semesterSwitchLock = 7201

// Store implements academic.Repository, attendance.Repository and
// roster.Repository over Postgres.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	return nil
}

// --- academic.Repository ---

func (s *Store) ActivateSemester(ctx context.Context, sem academic.Semester) (academic.Semester, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return academic.Semester{}, fmt.Errorf("storage: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, semesterSwitchLock); err != nil {
		return academic.Semester{}, fmt.Errorf("storage: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE semesters SET active = FALSE WHERE active`); err != nil {
		return academic.Semester{}, fmt.Errorf("storage: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO semesters (id, name, active, created_at)
		VALUES ($1, $2, TRUE, $3)
	`, sem.ID, sem.Name, sem.CreatedAt)
	if err != nil {
		return academic.Semester{}, fmt.Errorf("storage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return academic.Semester{}, fmt.Errorf("storage: %w", err)
	}
	sem.Active = true
	return sem, nil
}

func (s *Store) ActiveSemester(ctx context.Context) (academic.Semester, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, active, created_at FROM semesters WHERE active
	`)
	var sem academic.Semester
	if err := row.Scan(&sem.ID, &sem.Name, &sem.Active, &sem.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return academic.Semester{}, academic.ErrNoActiveSemester
		}
		return academic.Semester{}, fmt.Errorf("storage: %w", err)
	}
	return sem, nil
}

func (s *Store) ListSemesters(ctx context.Context) ([]academic.Semester, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, active, created_at FROM semesters ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	defer rows.Close()

	var out []academic.Semester
	for rows.Next() {
		var sem academic.Semester
		if err := rows.Scan(&sem.ID, &sem.Name, &sem.Active, &sem.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		out = append(out, sem)
	}
	return out, rows.Err()
}

func (s *Store) CreateSubject(ctx context.Context, sub academic.Subject) (academic.Subject, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subjects (id, name, semester_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, sub.ID, sub.Name, sub.SemesterID, sub.CreatedAt)
	if err != nil {
		return academic.Subject{}, fmt.Errorf("storage: %w", err)
	}
	return sub, nil
}

func (s *Store) SubjectByID(ctx context.Context, id string) (academic.Subject, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, semester_id, created_at FROM subjects WHERE id = $1
	`, id)
	var sub academic.Subject
	if err := row.Scan(&sub.ID, &sub.Name, &sub.SemesterID, &sub.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return academic.Subject{}, academic.ErrNotFound
		}
		return academic.Subject{}, fmt.Errorf("storage: %w", err)
	}
	return sub, nil
}

func (s *Store) SubjectsBySemester(ctx context.Context, semesterID string) ([]academic.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, semester_id, created_at FROM subjects
		WHERE semester_id = $1 ORDER BY created_at, id
	`, semesterID)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	defer rows.Close()

	var out []academic.Subject
	for rows.Next() {
		var sub academic.Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.SemesterID, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) NextSeq(ctx context.Context, semesterID string) (int, error) {
	// single-statement upsert keeps fetch-and-increment atomic
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO seq_counters (semester_id, value) VALUES ($1, 1)
		ON CONFLICT (semester_id) DO UPDATE SET value = seq_counters.value + 1
		RETURNING value
	`, semesterID)
	var seq int
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("storage: %w", err)
	}
	return seq, nil
}

func (s *Store) CreateSession(ctx context.Context, sess academic.ClassSession) (academic.ClassSession, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO class_sessions (id, semester_id, subject_id, seq, date, hours, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sess.ID, sess.SemesterID, sess.SubjectID, sess.Seq, sess.Date, sess.Hours, sess.Note, sess.CreatedAt)
	if err != nil {
		return academic.ClassSession{}, fmt.Errorf("storage: %w", err)
	}
	return sess, nil
}

func (s *Store) SessionByID(ctx context.Context, id string) (academic.ClassSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, semester_id, subject_id, seq, date, hours, note, created_at
		FROM class_sessions WHERE id = $1
	`, id)
	var sess academic.ClassSession
	if err := row.Scan(&sess.ID, &sess.SemesterID, &sess.SubjectID, &sess.Seq, &sess.Date, &sess.Hours, &sess.Note, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return academic.ClassSession{}, academic.ErrNotFound
		}
		return academic.ClassSession{}, fmt.Errorf("storage: %w", err)
	}
	return sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, sess academic.ClassSession) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE class_sessions SET date = $2, subject_id = $3, hours = $4, note = $5
		WHERE id = $1
	`, sess.ID, sess.Date, sess.SubjectID, sess.Hours, sess.Note)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if n == 0 {
		return academic.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSessionCascade(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM marks WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM class_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if n == 0 {
		return academic.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) SessionsByFilter(ctx context.Context, f academic.SessionFilter) ([]academic.ClassSession, error) {
	query := `
		SELECT id, semester_id, subject_id, seq, date, hours, note, created_at
		FROM class_sessions WHERE semester_id = $1`
	args := []any{f.SemesterID}
	if !f.Date.IsZero() {
		query += ` AND date = $2`
		args = append(args, f.Date)
	}
	if f.Ascending {
		query += ` ORDER BY seq ASC`
	} else {
		query += ` ORDER BY seq DESC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	defer rows.Close()

	var out []academic.ClassSession
	for rows.Next() {
		var sess academic.ClassSession
		if err := rows.Scan(&sess.ID, &sess.SemesterID, &sess.SubjectID, &sess.Seq, &sess.Date, &sess.Hours, &sess.Note, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// --- roster.Repository ---

func (s *Store) CreateUser(ctx context.Context, u roster.User) (roster.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "users_email_key") || strings.Contains(err.Error(), "duplicate key") {
			return roster.User{}, roster.ErrEmailExists
		}
		return roster.User{}, fmt.Errorf("storage: %w", err)
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (roster.User, error) {
	return s.userBy(ctx, `id = $1`, id)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (roster.User, error) {
	return s.userBy(ctx, `email = $1`, email)
}

func (s *Store) userBy(ctx context.Context, where string, arg any) (roster.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, created_at FROM users WHERE `+where, arg)
	var u roster.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return roster.User{}, roster.ErrNotFound
		}
		return roster.User{}, fmt.Errorf("storage: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]roster.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, password_hash, role, created_at FROM users ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	defer rows.Close()

	var out []roster.User
	for rows.Next() {
		var u roster.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUserRole(ctx context.Context, id, role string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, role)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if n == 0 {
		return roster.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUserCascade(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer tx.Rollback()

	// marks first, then the student, then the user
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM marks WHERE student_id IN (SELECT id FROM students WHERE user_id = $1)
	`, id); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM students WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if n == 0 {
		return roster.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) UpsertStudent(ctx context.Context, st roster.Student) (roster.Student, error) {
	// user link and enrollment semester are immutable on conflict
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO students (id, user_id, name, roll, semester_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET name = EXCLUDED.name, roll = EXCLUDED.roll
		RETURNING id, user_id, name, roll, semester_id, active, created_at
	`, st.ID, st.UserID, st.Name, st.Roll, st.SemesterID, st.Active, st.CreatedAt)
	var out roster.Student
	if err := row.Scan(&out.ID, &out.UserID, &out.Name, &out.Roll, &out.SemesterID, &out.Active, &out.CreatedAt); err != nil {
		return roster.Student{}, fmt.Errorf("storage: %w", err)
	}
	return out, nil
}

func (s *Store) StudentByID(ctx context.Context, id string) (roster.Student, error) {
	return s.studentBy(ctx, `id = $1`, id)
}

func (s *Store) StudentByUserID(ctx context.Context, userID string) (roster.Student, error) {
	return s.studentBy(ctx, `user_id = $1`, userID)
}

func (s *Store) studentBy(ctx context.Context, where string, arg any) (roster.Student, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, roll, semester_id, active, created_at FROM students WHERE `+where, arg)
	var st roster.Student
	if err := row.Scan(&st.ID, &st.UserID, &st.Name, &st.Roll, &st.SemesterID, &st.Active, &st.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return roster.Student{}, roster.ErrNotFound
		}
		return roster.Student{}, fmt.Errorf("storage: %w", err)
	}
	return st, nil
}

// --- attendance.Repository ---

func (s *Store) InsertMarkIfAbsent(ctx context.Context, m attendance.Mark) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO marks (id, student_id, session_id, semester_id, present, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, session_id) DO NOTHING
	`, m.ID, m.StudentID, m.SessionID, m.SemesterID, m.Present, m.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("storage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage: %w", err)
	}
	return n == 1, nil
}

func (s *Store) UpsertMark(ctx context.Context, m attendance.Mark) (attendance.Mark, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO marks (id, student_id, session_id, semester_id, present, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, session_id) DO UPDATE SET present = EXCLUDED.present
		RETURNING id, student_id, session_id, semester_id, present, created_at
	`, m.ID, m.StudentID, m.SessionID, m.SemesterID, m.Present, m.CreatedAt)
	var out attendance.Mark
	if err := row.Scan(&out.ID, &out.StudentID, &out.SessionID, &out.SemesterID, &out.Present, &out.CreatedAt); err != nil {
		return attendance.Mark{}, fmt.Errorf("storage: %w", err)
	}
	return out, nil
}

func (s *Store) MarkByID(ctx context.Context, id string) (attendance.Mark, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, session_id, semester_id, present, created_at FROM marks WHERE id = $1
	`, id)
	var m attendance.Mark
	if err := row.Scan(&m.ID, &m.StudentID, &m.SessionID, &m.SemesterID, &m.Present, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendance.Mark{}, attendance.ErrNotFound
		}
		return attendance.Mark{}, fmt.Errorf("storage: %w", err)
	}
	return m, nil
}

func (s *Store) DeleteMark(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM marks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

func (s *Store) MarksByStudent(ctx context.Context, studentID, semesterID string) ([]attendance.Mark, error) {
	query := `
		SELECT id, student_id, session_id, semester_id, present, created_at
		FROM marks WHERE student_id = $1`
	args := []any{studentID}
	if semesterID != "" {
		query += ` AND semester_id = $2`
		args = append(args, semesterID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	defer rows.Close()

	var out []attendance.Mark
	for rows.Next() {
		var m attendance.Mark
		if err := rows.Scan(&m.ID, &m.StudentID, &m.SessionID, &m.SemesterID, &m.Present, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
