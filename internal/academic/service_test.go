package academic_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classtrack/internal/academic"
	"classtrack/internal/storage/memory"
)

func newService() *academic.Service {
	return academic.NewService(memory.NewStore())
}

func TestActivateSemesterExclusive(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.ActiveSemester(ctx)
	require.ErrorIs(t, err, academic.ErrNoActiveSemester)

	fall, err := svc.ActivateSemester(ctx, "  Fall 2026  ")
	require.NoError(t, err)
	assert.Equal(t, "Fall 2026", fall.Name)

	spring, err := svc.ActivateSemester(ctx, "Spring 2027")
	require.NoError(t, err)

	active, err := svc.ActiveSemester(ctx)
	require.NoError(t, err)
	assert.Equal(t, spring.ID, active.ID)

	sems, err := svc.ListSemesters(ctx)
	require.NoError(t, err)
	var activeCount int
	for _, s := range sems {
		if s.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestRecordSessionValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	sem, err := svc.ActivateSemester(ctx, "Fall")
	require.NoError(t, err)
	sub, err := svc.AddSubject(ctx, sem.ID, "Math")
	require.NoError(t, err)
	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	_, err = svc.RecordSession(ctx, sem.ID, sub.ID, date, 0, "")
	assert.ErrorIs(t, err, academic.ErrInvalidHours)
	_, err = svc.RecordSession(ctx, sem.ID, sub.ID, date, -1, "")
	assert.ErrorIs(t, err, academic.ErrInvalidHours)

	_, err = svc.RecordSession(ctx, sem.ID, "no-such-subject", date, 1, "")
	assert.ErrorIs(t, err, academic.ErrInvalidSubject)

	// a subject registered under another semester is rejected
	other, err := svc.ActivateSemester(ctx, "Spring")
	require.NoError(t, err)
	foreign, err := svc.AddSubject(ctx, other.ID, "Physics")
	require.NoError(t, err)
	_, err = svc.RecordSession(ctx, sem.ID, foreign.ID, date, 1, "")
	assert.ErrorIs(t, err, academic.ErrInvalidSubject)
}

func TestRecordSessionSequencesAndDate(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	sem, err := svc.ActivateSemester(ctx, "Fall")
	require.NoError(t, err)
	sub, err := svc.AddSubject(ctx, sem.ID, "Math")
	require.NoError(t, err)

	// wall-clock time in the request collapses to the day
	at := time.Date(2026, 9, 1, 14, 30, 12, 0, time.UTC)
	for want := 1; want <= 3; want++ {
		sess, err := svc.RecordSession(ctx, sem.ID, sub.ID, at, 2, "intro")
		require.NoError(t, err)
		assert.Equal(t, want, sess.Seq)
		assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), sess.Date)
	}

	// a fresh semester starts its own counter at 1
	other, err := svc.ActivateSemester(ctx, "Spring")
	require.NoError(t, err)
	osub, err := svc.AddSubject(ctx, other.ID, "Physics")
	require.NoError(t, err)
	sess, err := svc.RecordSession(ctx, other.ID, osub.ID, at, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Seq)
}

func TestRecordSessionConcurrentSequences(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	sem, err := svc.ActivateSemester(ctx, "Fall")
	require.NoError(t, err)
	sub, err := svc.AddSubject(ctx, sem.ID, "Math")
	require.NoError(t, err)
	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	const n = 20
	seqs := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := svc.RecordSession(ctx, sem.ID, sub.ID, date, 1, "")
			assert.NoError(t, err)
			seqs <- sess.Seq
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int]bool)
	for seq := range seqs {
		assert.False(t, seen[seq], "sequence %d allocated twice", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, n)
}

func TestSessionByID(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	sem, err := svc.ActivateSemester(ctx, "Fall")
	require.NoError(t, err)
	sub, err := svc.AddSubject(ctx, sem.ID, "Math")
	require.NoError(t, err)
	sess, err := svc.RecordSession(ctx, sem.ID, sub.ID,
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), 2, "")
	require.NoError(t, err)

	got, err := svc.SessionByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	_, err = svc.SessionByID(ctx, "missing")
	assert.ErrorIs(t, err, academic.ErrNotFound)
}

func TestEditSessionKeepsSequence(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	sem, err := svc.ActivateSemester(ctx, "Fall")
	require.NoError(t, err)
	math, err := svc.AddSubject(ctx, sem.ID, "Math")
	require.NoError(t, err)
	physics, err := svc.AddSubject(ctx, sem.ID, "Physics")
	require.NoError(t, err)

	sess, err := svc.RecordSession(ctx, sem.ID, math.ID,
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), 2, "")
	require.NoError(t, err)

	newDate := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, svc.EditSession(ctx, sess.ID, newDate, physics.ID, 3))

	got, err := svc.ListSessions(ctx, academic.SessionFilter{SemesterID: sem.ID, Ascending: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sess.Seq, got[0].Seq)
	assert.Equal(t, physics.ID, got[0].SubjectID)
	assert.Equal(t, 3, got[0].Hours)
	assert.Equal(t, time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC), got[0].Date)

	require.ErrorIs(t, svc.EditSession(ctx, sess.ID, newDate, physics.ID, 0), academic.ErrInvalidHours)
	require.ErrorIs(t, svc.EditSession(ctx, "missing", newDate, physics.ID, 1), academic.ErrNotFound)
}

func TestListSessionsByDate(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	sem, err := svc.ActivateSemester(ctx, "Fall")
	require.NoError(t, err)
	sub, err := svc.AddSubject(ctx, sem.ID, "Math")
	require.NoError(t, err)

	day1 := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	_, err = svc.RecordSession(ctx, sem.ID, sub.ID, day1, 1, "")
	require.NoError(t, err)
	_, err = svc.RecordSession(ctx, sem.ID, sub.ID, day2, 1, "")
	require.NoError(t, err)
	_, err = svc.RecordSession(ctx, sem.ID, sub.ID, day2, 2, "")
	require.NoError(t, err)

	// the filter date may carry a time of day, it still matches the whole day
	got, err := svc.ListSessions(ctx, academic.SessionFilter{
		SemesterID: sem.ID,
		Date:       day2.Add(16 * time.Hour),
		Ascending:  true,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Seq < got[1].Seq)

	all, err := svc.ListSessions(ctx, academic.SessionFilter{SemesterID: sem.ID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Seq > all[1].Seq, "default ordering is newest first")
}

func TestListSubjectsInsertionOrder(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	sem, err := svc.ActivateSemester(ctx, "Fall")
	require.NoError(t, err)

	for _, name := range []string{"Math", "Physics", "Chemistry"} {
		_, err := svc.AddSubject(ctx, sem.ID, name)
		require.NoError(t, err)
	}

	subs, err := svc.ListSubjects(ctx, sem.ID)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, "Math", subs[0].Name)
	assert.Equal(t, "Physics", subs[1].Name)
	assert.Equal(t, "Chemistry", subs[2].Name)
}
