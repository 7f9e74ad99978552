// Package storagetest is a conformance suite run against every storage
// backend. The invariants here are the ones each backend must guarantee with
// its own atomic primitives: exclusive semester activation, unique sequence
// allocation under concurrency, duplicate-mark detection and the deletion
// cascades.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classtrack/internal/academic"
	"classtrack/internal/attendance"
	"classtrack/internal/roster"
)

// Store is the combined repository surface a backend provides.
type Store interface {
	academic.Repository
	attendance.Repository
	roster.Repository
}

// Run executes the conformance suite. open must return a fresh, empty store.
func Run(t *testing.T, open func(t *testing.T) Store) {
	t.Run("ExclusiveActivation", func(t *testing.T) { testExclusiveActivation(t, open(t)) })
	t.Run("ConcurrentActivation", func(t *testing.T) { testConcurrentActivation(t, open(t)) })
	t.Run("SeqUniqueUnderConcurrency", func(t *testing.T) { testSeqUnique(t, open(t)) })
	t.Run("MarkDuplicateDetection", func(t *testing.T) { testMarkDuplicate(t, open(t)) })
	t.Run("MarkUpsert", func(t *testing.T) { testMarkUpsert(t, open(t)) })
	t.Run("SessionOrdering", func(t *testing.T) { testSessionOrdering(t, open(t)) })
	t.Run("SessionCascade", func(t *testing.T) { testSessionCascade(t, open(t)) })
	t.Run("UserCascade", func(t *testing.T) { testUserCascade(t, open(t)) })
	t.Run("StudentUpsertImmutableLink", func(t *testing.T) { testStudentUpsert(t, open(t)) })
}

func newSemester(name string) academic.Semester {
	return academic.Semester{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
}

func mustSemester(t *testing.T, s Store) academic.Semester {
	t.Helper()
	sem, err := s.ActivateSemester(context.Background(), newSemester("S1"))
	require.NoError(t, err)
	return sem
}

func mustSubject(t *testing.T, s Store, semID string) academic.Subject {
	t.Helper()
	sub, err := s.CreateSubject(context.Background(), academic.Subject{
		ID: uuid.NewString(), Name: "Math", SemesterID: semID, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return sub
}

func mustSession(t *testing.T, s Store, semID, subID string, hours int) academic.ClassSession {
	t.Helper()
	ctx := context.Background()
	seq, err := s.NextSeq(ctx, semID)
	require.NoError(t, err)
	sess, err := s.CreateSession(ctx, academic.ClassSession{
		ID:         uuid.NewString(),
		SemesterID: semID,
		SubjectID:  subID,
		Seq:        seq,
		Date:       time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Hours:      hours,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return sess
}

func mustUser(t *testing.T, s Store, email, role string) roster.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), roster.User{
		ID: uuid.NewString(), Email: email, PasswordHash: []byte("x"), Role: role, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return u
}

func mustStudent(t *testing.T, s Store, userID, semID string) roster.Student {
	t.Helper()
	st, err := s.UpsertStudent(context.Background(), roster.Student{
		ID: uuid.NewString(), UserID: userID, Name: "A", Roll: "1", SemesterID: semID, Active: true, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return st
}

func newMark(studentID, sessionID, semID string, present bool) attendance.Mark {
	return attendance.Mark{
		ID: uuid.NewString(), StudentID: studentID, SessionID: sessionID,
		SemesterID: semID, Present: present, CreatedAt: time.Now().UTC(),
	}
}

func testExclusiveActivation(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.ActiveSemester(ctx)
	require.ErrorIs(t, err, academic.ErrNoActiveSemester)

	first, err := s.ActivateSemester(ctx, newSemester("Fall"))
	require.NoError(t, err)
	second, err := s.ActivateSemester(ctx, newSemester("Spring"))
	require.NoError(t, err)

	active, err := s.ActiveSemester(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	sems, err := s.ListSemesters(ctx)
	require.NoError(t, err)
	require.Len(t, sems, 2)
	var activeCount int
	for _, sem := range sems {
		if sem.Active {
			activeCount++
			assert.NotEqual(t, first.ID, sem.ID)
		}
	}
	assert.Equal(t, 1, activeCount)
}

func testConcurrentActivation(t *testing.T, s Store) {
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ActivateSemester(ctx, newSemester("T"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sems, err := s.ListSemesters(ctx)
	require.NoError(t, err)
	require.Len(t, sems, 10)
	var activeCount int
	for _, sem := range sems {
		if sem.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func testSeqUnique(t *testing.T, s Store) {
	ctx := context.Background()
	sem := mustSemester(t, s)

	const workers, perWorker = 10, 10
	results := make(chan int, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				seq, err := s.NextSeq(ctx, sem.ID)
				assert.NoError(t, err)
				results <- seq
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool)
	for seq := range results {
		assert.False(t, seen[seq], "sequence %d allocated twice", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, workers*perWorker)
}

func testMarkDuplicate(t *testing.T, s Store) {
	ctx := context.Background()
	sem := mustSemester(t, s)
	sub := mustSubject(t, s, sem.ID)
	sess := mustSession(t, s, sem.ID, sub.ID, 2)
	u := mustUser(t, s, "a@test.local", roster.RoleStudent)
	st := mustStudent(t, s, u.ID, sem.ID)

	const n = 8
	inserted := make(chan bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.InsertMarkIfAbsent(ctx, newMark(st.ID, sess.ID, sem.ID, true))
			assert.NoError(t, err)
			inserted <- ok
		}()
	}
	wg.Wait()
	close(inserted)

	var wins int
	for ok := range inserted {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent insert must win")

	marks, err := s.MarksByStudent(ctx, st.ID, sem.ID)
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.True(t, marks[0].Present)
}

func testMarkUpsert(t *testing.T, s Store) {
	ctx := context.Background()
	sem := mustSemester(t, s)
	sub := mustSubject(t, s, sem.ID)
	sess := mustSession(t, s, sem.ID, sub.ID, 2)
	u := mustUser(t, s, "b@test.local", roster.RoleStudent)
	st := mustStudent(t, s, u.ID, sem.ID)

	created, err := s.UpsertMark(ctx, newMark(st.ID, sess.ID, sem.ID, false))
	require.NoError(t, err)
	assert.False(t, created.Present)

	updated, err := s.UpsertMark(ctx, newMark(st.ID, sess.ID, sem.ID, true))
	require.NoError(t, err)
	assert.True(t, updated.Present)
	assert.Equal(t, created.ID, updated.ID, "upsert must update, not duplicate")

	marks, err := s.MarksByStudent(ctx, st.ID, "")
	require.NoError(t, err)
	require.Len(t, marks, 1)
}

func testSessionOrdering(t *testing.T, s Store) {
	ctx := context.Background()
	sem := mustSemester(t, s)
	sub := mustSubject(t, s, sem.ID)
	for i := 0; i < 3; i++ {
		mustSession(t, s, sem.ID, sub.ID, i+1)
	}

	asc, err := s.SessionsByFilter(ctx, academic.SessionFilter{SemesterID: sem.ID, Ascending: true})
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.True(t, asc[0].Seq < asc[1].Seq && asc[1].Seq < asc[2].Seq)

	desc, err := s.SessionsByFilter(ctx, academic.SessionFilter{SemesterID: sem.ID, Ascending: false})
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.True(t, desc[0].Seq > desc[1].Seq && desc[1].Seq > desc[2].Seq)
}

func testSessionCascade(t *testing.T, s Store) {
	ctx := context.Background()
	sem := mustSemester(t, s)
	sub := mustSubject(t, s, sem.ID)
	kept := mustSession(t, s, sem.ID, sub.ID, 2)
	doomed := mustSession(t, s, sem.ID, sub.ID, 3)
	u := mustUser(t, s, "c@test.local", roster.RoleStudent)
	st := mustStudent(t, s, u.ID, sem.ID)

	for _, sess := range []academic.ClassSession{kept, doomed} {
		_, err := s.InsertMarkIfAbsent(ctx, newMark(st.ID, sess.ID, sem.ID, true))
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteSessionCascade(ctx, doomed.ID))

	_, err := s.SessionByID(ctx, doomed.ID)
	assert.ErrorIs(t, err, academic.ErrNotFound)

	marks, err := s.MarksByStudent(ctx, st.ID, sem.ID)
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.Equal(t, kept.ID, marks[0].SessionID)

	assert.ErrorIs(t, s.DeleteSessionCascade(ctx, doomed.ID), academic.ErrNotFound)
}

func testUserCascade(t *testing.T, s Store) {
	ctx := context.Background()
	sem := mustSemester(t, s)
	sub := mustSubject(t, s, sem.ID)
	sess := mustSession(t, s, sem.ID, sub.ID, 2)

	u1 := mustUser(t, s, "d@test.local", roster.RoleStudent)
	st1 := mustStudent(t, s, u1.ID, sem.ID)
	u2 := mustUser(t, s, "e@test.local", roster.RoleStudent)
	st2 := mustStudent(t, s, u2.ID, sem.ID)

	for _, st := range []roster.Student{st1, st2} {
		_, err := s.InsertMarkIfAbsent(ctx, newMark(st.ID, sess.ID, sem.ID, true))
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteUserCascade(ctx, u1.ID))

	_, err := s.UserByID(ctx, u1.ID)
	assert.ErrorIs(t, err, roster.ErrNotFound)
	_, err = s.StudentByUserID(ctx, u1.ID)
	assert.ErrorIs(t, err, roster.ErrNotFound)
	marks, err := s.MarksByStudent(ctx, st1.ID, "")
	require.NoError(t, err)
	assert.Empty(t, marks)

	// the other student's data is untouched
	_, err = s.UserByID(ctx, u2.ID)
	assert.NoError(t, err)
	marks, err = s.MarksByStudent(ctx, st2.ID, "")
	require.NoError(t, err)
	assert.Len(t, marks, 1)
}

func testStudentUpsert(t *testing.T, s Store) {
	ctx := context.Background()
	sem := mustSemester(t, s)
	u := mustUser(t, s, "f@test.local", roster.RoleStudent)

	first, err := s.UpsertStudent(ctx, roster.Student{
		ID: uuid.NewString(), UserID: u.ID, Name: "Old", Roll: "10",
		SemesterID: sem.ID, Active: true, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	other, err := s.ActivateSemester(ctx, newSemester("Next"))
	require.NoError(t, err)

	second, err := s.UpsertStudent(ctx, roster.Student{
		ID: uuid.NewString(), UserID: u.ID, Name: "New", Roll: "11",
		SemesterID: other.ID, Active: true, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "resubmission must update, not duplicate")
	assert.Equal(t, "New", second.Name)
	assert.Equal(t, "11", second.Roll)
	assert.Equal(t, sem.ID, second.SemesterID, "enrollment semester is immutable")
}
