// Package metrics registers the service's Prometheus collectors on the
// default registry, exposed by the API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MarksRecorded counts presence marks by outcome (added, already_marked).
	MarksRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classtrack_marks_recorded_total",
		Help: "Attendance marks submitted, by outcome.",
	}, []string{"outcome"})

	// SessionsRecorded counts class sessions appended to the log.
	SessionsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtrack_sessions_recorded_total",
		Help: "Class sessions recorded.",
	})

	// SessionsDeleted counts cascading session deletions.
	SessionsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtrack_sessions_deleted_total",
		Help: "Class sessions deleted (marks cascade with them).",
	})

	// CoverageComputed counts aggregator runs by cache result.
	CoverageComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classtrack_coverage_computed_total",
		Help: "Coverage reports served, by cache hit/miss.",
	}, []string{"cache"})
)
