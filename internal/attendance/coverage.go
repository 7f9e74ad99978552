package attendance

import (
	"context"

	"classtrack/internal/academic"
)

// ComputeCoverage reports scheduled vs attended hours for the student's
// enrollment semester. The join runs in memory over plain repository reads
// so every storage backend produces identical numbers: sessions are grouped
// by subject and hours summed for totals; attended hours count only sessions
// carrying a Present mark for this student. Sessions with no mark or an
// absent mark contribute zero to attended but still count toward total.
// Marks referencing a deleted session are ignored. A student with no
// scheduled sessions reports zero percent, not a division error.
func (s *Service) ComputeCoverage(ctx context.Context, studentID string) (Coverage, error) {
	st, err := s.students.StudentByID(ctx, studentID)
	if err != nil {
		return Coverage{}, err
	}
	sessions, err := s.schedule.ListSessions(ctx, academic.SessionFilter{SemesterID: st.SemesterID, Ascending: true})
	if err != nil {
		return Coverage{}, err
	}
	subjects, err := s.schedule.ListSubjects(ctx, st.SemesterID)
	if err != nil {
		return Coverage{}, err
	}
	marks, err := s.repo.MarksByStudent(ctx, studentID, st.SemesterID)
	if err != nil {
		return Coverage{}, err
	}

	present := make(map[string]bool, len(marks))
	for _, m := range marks {
		if m.Present {
			present[m.SessionID] = true
		}
	}

	type sums struct{ total, attended int }
	bySubject := make(map[string]*sums, len(subjects))
	for _, sess := range sessions {
		agg, ok := bySubject[sess.SubjectID]
		if !ok {
			agg = &sums{}
			bySubject[sess.SubjectID] = agg
		}
		agg.total += sess.Hours
		if present[sess.ID] {
			agg.attended += sess.Hours
		}
	}

	var cov Coverage
	// subjects without sessions are omitted, matching the roll-up screens
	for _, sub := range subjects {
		agg, ok := bySubject[sub.ID]
		if !ok {
			continue
		}
		cov.Subjects = append(cov.Subjects, SubjectCoverage{
			Subject:       sub.Name,
			TotalHours:    agg.total,
			AttendedHours: agg.attended,
		})
		cov.TotalHours += agg.total
		cov.AttendedHours += agg.attended
	}
	if cov.TotalHours > 0 {
		cov.Percent = float64(cov.AttendedHours) / float64(cov.TotalHours) * 100
	}
	return cov, nil
}
