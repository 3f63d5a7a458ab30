// Package metrics exposes Prometheus collectors for the scheduling and
// attendance flows. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "class_attendance"

type Metrics struct {
	conflictChecks   *prometheus.CounterVec
	conflictsFound   *prometheus.CounterVec
	conflictDuration prometheus.Histogram
	sessionsCreated  prometheus.Counter
	attendanceMarks  *prometheus.CounterVec
	markRejections   *prometheus.CounterVec
	absencesRecorded prometheus.Counter
	httpRequests     *prometheus.CounterVec
	notifications    *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		conflictChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_checks_total",
			Help:      "Conflict checks by outcome (clear, conflict, error).",
		}, []string{"outcome"}),
		conflictsFound: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_found_total",
			Help:      "Overlapping bookings found, by conflict type.",
		}, []string{"type"}),
		conflictDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conflict_check_duration_seconds",
			Help:      "Time spent querying for conflicts.",
			Buckets:   prometheus.DefBuckets,
		}),
		sessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Session occurrences persisted.",
		}),
		attendanceMarks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_marks_total",
			Help:      "Accepted attendance marks by status and method.",
		}, []string{"status", "method"}),
		markRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_rejections_total",
			Help:      "Rejected attendance marks by reason.",
		}, []string{"reason"}),
		absencesRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "absences_recorded_total",
			Help:      "Absent records written when a window closed.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Student notifications by kind and outcome (sent, failed).",
		}, []string{"kind", "outcome"}),
	}
}

func (m *Metrics) ConflictCheck(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.conflictChecks.WithLabelValues(outcome).Inc()
	m.conflictDuration.Observe(took.Seconds())
}

func (m *Metrics) ConflictFound(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.conflictsFound.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) SessionsCreated(n int) {
	if m == nil {
		return
	}
	m.sessionsCreated.Add(float64(n))
}

func (m *Metrics) AttendanceMarked(status, method string) {
	if m == nil {
		return
	}
	m.attendanceMarks.WithLabelValues(status, method).Inc()
}

func (m *Metrics) AttendanceRejected(reason string) {
	if m == nil {
		return
	}
	m.markRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) AbsencesRecorded(n int64) {
	if m == nil {
		return
	}
	m.absencesRecorded.Add(float64(n))
}

func (m *Metrics) HTTPRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}

func (m *Metrics) NotificationSent(kind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}
