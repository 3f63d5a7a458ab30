package service

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/face"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type attendanceFixture struct {
	svc        *AttendanceService
	sessions   *fakeSessions
	attendance *fakeAttendance
	verifier   *fakeVerifier
	clock      *manualClock
	session    *model.Session
}

func newAttendanceFixture(t *testing.T, method model.AttendanceMethod) *attendanceFixture {
	t.Helper()

	sessions := newFakeSessions()
	sessions.lecturers[1] = lecturer.ID
	session := sessions.put(&model.Session{
		AssignmentID:          1,
		Title:                 "Algorithms",
		ScheduledDate:         day("2024-01-02"),
		StartTime:             "09:00",
		EndTime:               "10:30",
		AttendanceWindowStart: "09:00",
		AttendanceWindowEnd:   "10:45",
		AttendanceMethod:      method,
	})

	assignments := &fakeAssignments{
		enrolled: map[int64]map[int64]bool{1: {student.ID: true, 101: true, 102: true}},
	}
	attendance := &fakeAttendance{roster: map[int64][]int64{session.ID: {student.ID, 101, 102}}}
	verifier := &fakeVerifier{verdict: face.Verdict{Match: true, Confidence: 91}}
	classifier, clock := newClassifier(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC))

	return &attendanceFixture{
		svc:        NewAttendanceService(sessions, assignments, attendance, verifier, classifier, nil, zap.NewNop()),
		sessions:   sessions,
		attendance: attendance,
		verifier:   verifier,
		clock:      clock,
		session:    session,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 1, 2, hour, minute, 0, 0, time.UTC)
}

func TestAttendanceService_MarkStatusFollowsWindow(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		status  model.AttendanceStatus
		wantErr error
	}{
		{name: "before window", now: at(8, 59), wantErr: ErrAttendanceNotOpen},
		{name: "at session start", now: at(9, 0), status: model.AttendancePresent},
		{name: "after start", now: at(9, 1), status: model.AttendanceLate},
		{name: "at window end", now: at(10, 45), status: model.AttendanceLate},
		{name: "after window", now: at(10, 46), wantErr: ErrAttendanceClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAttendanceFixture(t, model.MethodManual)
			f.clock.Set(tt.now)

			a, err := f.svc.Mark(context.Background(), student, MarkRequest{SessionID: f.session.ID})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, f.attendance.records)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, a.Status)
			assert.Equal(t, tt.now, a.MarkedAt)
			assert.Equal(t, model.MethodManual, a.VerificationMethod)
		})
	}
}

func TestAttendanceService_MarkRejections(t *testing.T) {
	t.Run("not enrolled", func(t *testing.T) {
		f := newAttendanceFixture(t, model.MethodManual)
		_, err := f.svc.Mark(context.Background(), &model.User{ID: 555, Role: model.RoleStudent}, MarkRequest{SessionID: f.session.ID})
		assert.ErrorIs(t, err, ErrNotEnrolled)
	})

	t.Run("lecturer cannot mark", func(t *testing.T) {
		f := newAttendanceFixture(t, model.MethodManual)
		_, err := f.svc.Mark(context.Background(), lecturer, MarkRequest{SessionID: f.session.ID})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("second mark", func(t *testing.T) {
		f := newAttendanceFixture(t, model.MethodManual)
		_, err := f.svc.Mark(context.Background(), student, MarkRequest{SessionID: f.session.ID})
		require.NoError(t, err)
		_, err = f.svc.Mark(context.Background(), student, MarkRequest{SessionID: f.session.ID})
		assert.ErrorIs(t, err, ErrAlreadyMarked)
	})

	t.Run("cancelled session", func(t *testing.T) {
		f := newAttendanceFixture(t, model.MethodManual)
		f.session.IsCancelled = true
		_, err := f.svc.Mark(context.Background(), student, MarkRequest{SessionID: f.session.ID})
		assert.ErrorIs(t, err, ErrSessionCancelled)
	})

	t.Run("finalized session", func(t *testing.T) {
		f := newAttendanceFixture(t, model.MethodManual)
		f.session.AttendanceFinalized = true
		_, err := f.svc.Mark(context.Background(), student, MarkRequest{SessionID: f.session.ID})
		assert.ErrorIs(t, err, ErrAttendanceClosed)
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newAttendanceFixture(t, model.MethodManual)
		_, err := f.svc.Mark(context.Background(), student, MarkRequest{SessionID: 404})
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("face mark on manual session", func(t *testing.T) {
		f := newAttendanceFixture(t, model.MethodManual)
		_, err := f.svc.Mark(context.Background(), student, MarkRequest{SessionID: f.session.ID, Method: model.MethodFaceRecognition, Image: []byte("img")})
		assert.ErrorIs(t, err, ErrMethodNotAllowed)
	})
}

func TestAttendanceService_FaceVerification(t *testing.T) {
	t.Run("recognized", func(t *testing.T) {
		f := newAttendanceFixture(t, model.MethodBoth)
		a, err := f.svc.Mark(context.Background(), student, MarkRequest{
			SessionID: f.session.ID,
			Method:    model.MethodFaceRecognition,
			Image:     []byte("jpeg"),
		})
		require.NoError(t, err)
		assert.True(t, a.FaceVerified)
		assert.Equal(t, 1, f.verifier.calls)
	})

	t.Run("image required", func(t *testing.T) {
		f := newAttendanceFixture(t, model.MethodFaceRecognition)
		_, err := f.svc.Mark(context.Background(), student, MarkRequest{SessionID: f.session.ID, Method: model.MethodFaceRecognition})
		assert.ErrorIs(t, err, ErrImageRequired)
		assert.Zero(t, f.verifier.calls)
	})

	t.Run("manual mark on face-only session", func(t *testing.T) {
		f := newAttendanceFixture(t, model.MethodFaceRecognition)
		_, err := f.svc.Mark(context.Background(), student, MarkRequest{SessionID: f.session.ID})
		assert.ErrorIs(t, err, ErrMethodNotAllowed)
	})

	t.Run("not recognized", func(t *testing.T) {
		f := newAttendanceFixture(t, model.MethodFaceRecognition)
		f.verifier.verdict = face.Verdict{Match: false, Confidence: 12}
		_, err := f.svc.Mark(context.Background(), student, MarkRequest{SessionID: f.session.ID, Method: model.MethodFaceRecognition, Image: []byte("jpeg")})
		assert.ErrorIs(t, err, ErrFaceNotRecognized)
		assert.Empty(t, f.attendance.records)
	})

	t.Run("service down", func(t *testing.T) {
		f := newAttendanceFixture(t, model.MethodFaceRecognition)
		f.verifier.err = face.ErrUnavailable
		_, err := f.svc.Mark(context.Background(), student, MarkRequest{SessionID: f.session.ID, Method: model.MethodFaceRecognition, Image: []byte("jpeg")})
		assert.ErrorIs(t, err, ErrFaceUnavailable)
	})
}

func TestAttendanceService_Roster(t *testing.T) {
	f := newAttendanceFixture(t, model.MethodManual)
	_, err := f.svc.Mark(context.Background(), student, MarkRequest{SessionID: f.session.ID})
	require.NoError(t, err)

	list, err := f.svc.Roster(context.Background(), lecturer, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.Roster(context.Background(), otherLecturer, f.session.ID)
	assert.ErrorIs(t, err, ErrNotAssignmentOwner)
}

func TestAttendanceService_FinalizeClosed(t *testing.T) {
	f := newAttendanceFixture(t, model.MethodManual)
	f.clock.Set(at(9, 10))
	_, err := f.svc.Mark(context.Background(), student, MarkRequest{SessionID: f.session.ID})
	require.NoError(t, err)

	// window still open: nothing is finalized
	n, err := f.svc.FinalizeClosed(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.attendance.finalized)

	f.clock.Set(at(11, 0))
	n, err = f.svc.FinalizeClosed(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, []int64{f.session.ID}, f.attendance.finalized)

	statuses := map[int64]model.AttendanceStatus{}
	for _, a := range f.attendance.records {
		statuses[a.StudentID] = a.Status
	}
	assert.Equal(t, model.AttendanceLate, statuses[student.ID])
	assert.Equal(t, model.AttendanceAbsent, statuses[101])
	assert.Equal(t, model.AttendanceAbsent, statuses[102])
}
