package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classtrack/internal/academic"
	"classtrack/internal/attendance"
	"classtrack/internal/roster"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestActivateSemesterTransaction(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(semesterSwitchLock).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE semesters SET active = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO semesters").
		WithArgs("sem-1", "Fall", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := s.ActivateSemester(context.Background(), academic.Semester{
		ID: "sem-1", Name: "Fall", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextSeqAtomicUpsert(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO seq_counters").
		WithArgs("sem-1").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(7))

	seq, err := s.NextSeq(context.Background(), "sem-1")
	require.NoError(t, err)
	assert.Equal(t, 7, seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMarkIfAbsent(t *testing.T) {
	m := attendance.Mark{
		ID: "m-1", StudentID: "st-1", SessionID: "se-1",
		SemesterID: "sem-1", Present: true, CreatedAt: time.Now().UTC(),
	}

	t.Run("inserted", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO marks").
			WithArgs(m.ID, m.StudentID, m.SessionID, m.SemesterID, m.Present, m.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		inserted, err := s.InsertMarkIfAbsent(context.Background(), m)
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict swallowed", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO marks").
			WithArgs(m.ID, m.StudentID, m.SessionID, m.SemesterID, m.Present, m.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 0))

		inserted, err := s.InsertMarkIfAbsent(context.Background(), m)
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "users_email_key"`))

	_, err := s.CreateUser(context.Background(), roster.User{
		ID: "u-1", Email: "a@b.c", PasswordHash: []byte("x"),
		Role: roster.RoleStudent, CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, roster.ErrEmailExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSessionCascadeMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM marks WHERE session_id").
		WithArgs("se-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM class_sessions WHERE id").
		WithArgs("se-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.DeleteSessionCascade(context.Background(), "se-1")
	assert.ErrorIs(t, err, academic.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSessionCascade(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM marks WHERE session_id").
		WithArgs("se-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM class_sessions WHERE id").
		WithArgs("se-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteSessionCascade(context.Background(), "se-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM class_sessions").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.SessionByID(context.Background(), "missing")
	assert.ErrorIs(t, err, academic.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
