package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Freeeeeet/class_attendance/internal/metrics"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentNotification struct {
	studentID int64
	n         Notification
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	// failFor отклоняет отправку этим студентам
	failFor map[int64]bool
}

func (f *fakeNotifier) Notify(_ context.Context, student *model.User, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[student.ID] {
		return errors.New("forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, sentNotification{studentID: student.ID, n: n})
	return nil
}

type fakeStudents struct {
	byAssignment map[int64][]*model.User
	err          error
	calls        int
}

func (f *fakeStudents) ListNotifiableStudents(_ context.Context, assignmentID int64) ([]*model.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byAssignment[assignmentID], nil
}

var secondStudent = &model.User{ID: 101, FullName: "Kofi Asante", Role: model.RoleStudent}

func withNotifier(f *sessionFixture) (*fakeStudents, *fakeNotifier) {
	students := &fakeStudents{byAssignment: map[int64][]*model.User{1: {student, secondStudent}}}
	notifier := &fakeNotifier{failFor: map[int64]bool{}}
	f.svc.SetNotifier(students, notifier)
	return students, notifier
}

func TestNotify_CreateSendsOneMessagePerStudent(t *testing.T) {
	f := newSessionFixture(t)
	_, notifier := withNotifier(f)

	in := validInput()
	in.IsRecurring = true
	in.RecurrenceEndDate = datePtr("2024-01-16")

	created, err := f.svc.Create(context.Background(), lecturer, in)
	require.NoError(t, err)

	require.Len(t, notifier.sent, 2)
	assert.Equal(t, student.ID, notifier.sent[0].studentID)
	assert.Equal(t, secondStudent.ID, notifier.sent[1].studentID)
	assert.Equal(t, NotifyScheduled, notifier.sent[0].n.Kind)
	assert.Equal(t, created, notifier.sent[0].n.Sessions)
}

func TestNotify_UpdateAndCancel(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, lecturer, validInput())
	require.NoError(t, err)
	id := created[0].ID

	_, notifier := withNotifier(f)

	in := validInput()
	in.StartTime = "13:00"
	_, err = f.svc.Update(ctx, lecturer, id, in)
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, lecturer, id, "  lecturer ill "))

	require.Len(t, notifier.sent, 4)
	updated := notifier.sent[0].n
	assert.Equal(t, NotifyUpdated, updated.Kind)
	require.Len(t, updated.Sessions, 1)
	assert.Equal(t, "13:00", updated.Sessions[0].StartTime)

	cancelled := notifier.sent[2].n
	assert.Equal(t, NotifyCancelled, cancelled.Kind)
	assert.Equal(t, "lecturer ill", cancelled.Reason)
	assert.True(t, cancelled.Sessions[0].IsCancelled)
}

func TestNotify_FailuresDoNotFailTheWrite(t *testing.T) {
	f := newSessionFixture(t)
	reg := prometheus.NewRegistry()
	f.svc.metrics = metrics.New(reg)
	_, notifier := withNotifier(f)
	notifier.failFor[student.ID] = true

	created, err := f.svc.Create(context.Background(), lecturer, validInput())
	require.NoError(t, err)
	assert.Len(t, created, 1)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, secondStudent.ID, notifier.sent[0].studentID)

	count, err := testutil.GatherAndCount(reg, "class_attendance_notifications_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNotify_ListFailureIsLoggedOnly(t *testing.T) {
	f := newSessionFixture(t)
	students, notifier := withNotifier(f)
	students.err = errors.New("connection reset")

	_, err := f.svc.Create(context.Background(), lecturer, validInput())
	require.NoError(t, err)
	assert.Equal(t, 1, students.calls)
	assert.Empty(t, notifier.sent)
}

func TestNotify_NothingSentOnRejectedWrite(t *testing.T) {
	f := newSessionFixture(t)
	students, notifier := withNotifier(f)

	in := validInput()
	in.Title = ""
	_, err := f.svc.Create(context.Background(), lecturer, in)
	require.Error(t, err)

	f.sessions.createErr = errors.New("connection reset")
	_, err = f.svc.Create(context.Background(), lecturer, validInput())
	require.Error(t, err)

	assert.Zero(t, students.calls)
	assert.Empty(t, notifier.sent)
}

func TestNotify_WithoutNotifierIsNoop(t *testing.T) {
	f := newSessionFixture(t)

	assert.NotPanics(t, func() {
		_, err := f.svc.Create(context.Background(), lecturer, validInput())
		require.NoError(t, err)
	})
}
