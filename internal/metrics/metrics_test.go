package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ConflictCheck("conflict", 20*time.Millisecond)
	m.ConflictFound("room", 2)
	m.ConflictFound("lecturer", 0)
	m.AttendanceMarked("late", "manual")
	m.AbsencesRecorded(3)
	m.NotificationSent("class_cancelled", "sent")
	m.NotificationSent("class_cancelled", "failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflictChecks.WithLabelValues("conflict")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.conflictsFound.WithLabelValues("room")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attendanceMarks.WithLabelValues("late", "manual")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.absencesRecorded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("class_cancelled", "failed")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConflictCheck("clear", time.Second)
		m.SessionsCreated(4)
		m.AttendanceRejected("closed")
		m.HTTPRequest("/health", "200")
		m.NotificationSent("class_updated", "sent")
	})
}
