package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/conflict"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/repository"
	"github.com/Freeeeeet/class_attendance/internal/validation"
	"github.com/Freeeeeet/class_attendance/internal/window"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	lecturer      = &model.User{ID: 10, FullName: "Dr. Mensah", Role: model.RoleLecturer}
	otherLecturer = &model.User{ID: 11, FullName: "Dr. Owusu", Role: model.RoleLecturer}
	admin         = &model.User{ID: 1, FullName: "Registry", Role: model.RoleAdmin}
	student       = &model.User{ID: 100, FullName: "Ama Boateng", Role: model.RoleStudent}
)

type sessionFixture struct {
	svc         *SessionService
	sessions    *fakeSessions
	assignments *fakeAssignments
	clock       *manualClock
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	sessions := newFakeSessions()
	sessions.lecturers[1] = lecturer.ID
	sessions.lecturers[2] = otherLecturer.ID
	sessions.cohort[1] = []int64{1, 2}

	assignments := &fakeAssignments{
		assignments: map[int64]*model.CourseAssignment{
			1: {ID: 1, LecturerID: lecturer.ID, IsActive: true, Course: &model.Course{Code: "CSC-302"}},
			2: {ID: 2, LecturerID: otherLecturer.ID, IsActive: true, Course: &model.Course{Code: "CSC-210"}},
		},
		enrolled: map[int64]map[int64]bool{1: {student.ID: true}},
	}
	rooms := fakeRooms{
		5: {ID: 5, Code: "LT-1", Name: "Lecture Theatre 1", Type: model.RoomTypePhysical, IsAvailable: true},
		6: {ID: 6, Code: "LT-2", Name: "Lecture Theatre 2", Type: model.RoomTypePhysical, IsAvailable: false},
	}
	classifier, clock := newClassifier(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))

	return &sessionFixture{
		svc:         NewSessionService(sessions, assignments, rooms, classifier, nil, zap.NewNop()),
		sessions:    sessions,
		assignments: assignments,
		clock:       clock,
	}
}

func validInput() SessionInput {
	return SessionInput{
		AssignmentID:    1,
		Title:           "Algorithms",
		ClassType:       "lecture",
		ScheduledDate:   datePtr("2024-01-02"),
		StartTime:       "09:00",
		DurationMinutes: 90,
		GraceMinutes:    15,
		RoomID:          int64Ptr(5),
	}
}

func (f *sessionFixture) seedDatabases(start, end string) *model.Session {
	return f.sessions.put(&model.Session{
		AssignmentID:  2,
		LecturerID:    otherLecturer.ID,
		CourseCode:    "CSC-210",
		Title:         "Databases",
		ScheduledDate: day("2024-01-02"),
		StartTime:     start,
		EndTime:       end,
		RoomID:        int64Ptr(5),
		Room:          &model.Room{ID: 5, Code: "LT-1"},
	})
}

func TestSessionService_CreateSingle(t *testing.T) {
	f := newSessionFixture(t)

	created, err := f.svc.Create(context.Background(), lecturer, validInput())
	require.NoError(t, err)
	require.Len(t, created, 1)

	s := created[0]
	assert.NotZero(t, s.ID)
	assert.Nil(t, s.SeriesID)
	assert.Equal(t, "09:00", s.StartTime)
	assert.Equal(t, "10:30", s.EndTime)
	assert.Equal(t, "09:00", s.AttendanceWindowStart)
	assert.Equal(t, "10:45", s.AttendanceWindowEnd)
	assert.Equal(t, model.MethodManual, s.AttendanceMethod)
	assert.Equal(t, model.ClassTypeLecture, s.ClassType)
	assert.Equal(t, lecturer.ID, s.CreatedBy)
}

func TestSessionService_CreateRecurring(t *testing.T) {
	f := newSessionFixture(t)

	in := validInput()
	in.IsRecurring = true
	in.RecurrenceEndDate = datePtr("2024-01-16")

	created, err := f.svc.Create(context.Background(), lecturer, in)
	require.NoError(t, err)
	require.Len(t, created, 3)

	require.NotNil(t, created[0].SeriesID)
	for i, want := range []string{"2024-01-02", "2024-01-09", "2024-01-16"} {
		assert.Equal(t, want, created[i].ScheduledDate.Format(time.DateOnly))
		assert.Equal(t, *created[0].SeriesID, *created[i].SeriesID)
		assert.Equal(t, "2024-01-16", created[i].RecurrenceEndDate.Format(time.DateOnly))
	}
}

func TestSessionService_CreateRejectsConflicts(t *testing.T) {
	f := newSessionFixture(t)
	f.seedDatabases("10:00", "11:00")

	_, err := f.svc.Create(context.Background(), lecturer, validInput())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.HasConflicts())
	assert.Contains(t, verr.Violations, "Room LT-1 is already booked on 2024-01-02: CSC-210 Databases (10:00-11:00)")
	assert.Contains(t, verr.Violations, "Students have a conflicting class on 2024-01-02: CSC-210 Databases (10:00-11:00)")
	assert.Len(t, f.sessions.all(), 1, "nothing persisted")
}

func TestSessionService_TouchingSessionsDoNotConflict(t *testing.T) {
	f := newSessionFixture(t)
	f.seedDatabases("10:30", "11:30")

	created, err := f.svc.Create(context.Background(), lecturer, validInput())
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestSessionService_RecurringConflictOnLaterOccurrence(t *testing.T) {
	f := newSessionFixture(t)
	f.sessions.put(&model.Session{
		AssignmentID:  2,
		LecturerID:    otherLecturer.ID,
		CourseCode:    "CSC-210",
		Title:         "Databases",
		ScheduledDate: day("2024-01-09"),
		StartTime:     "09:30",
		EndTime:       "10:00",
		RoomID:        int64Ptr(5),
		Room:          &model.Room{ID: 5, Code: "LT-1"},
	})

	in := validInput()
	in.IsRecurring = true
	in.RecurrenceEndDate = datePtr("2024-01-16")

	_, err := f.svc.Create(context.Background(), lecturer, in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "2024-01-09", verr.Report.Conflicts[0].Date)
}

func TestSessionService_CreateValidationOrder(t *testing.T) {
	f := newSessionFixture(t)

	in := validInput()
	in.Title = " "
	in.RoomID = nil

	_, err := f.svc.Create(context.Background(), lecturer, in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{validation.MsgTitleRequired, validation.MsgLocationRequired}, verr.Violations)
	assert.False(t, verr.HasConflicts())
}

func TestSessionService_FailsOpenWhenDetectorFails(t *testing.T) {
	f := newSessionFixture(t)
	f.sessions.checkErr = errors.New("connection reset")

	p, err := f.svc.Validate(context.Background(), lecturer, validInput())
	require.NoError(t, err)
	assert.True(t, p.Valid)
	assert.Equal(t, []string{validation.MsgConflictUnverified}, p.Notices)
	assert.False(t, p.Conflicts.HasConflicts)

	created, err := f.svc.Create(context.Background(), lecturer, validInput())
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestSessionService_DatabaseExclusionIsAuthoritative(t *testing.T) {
	f := newSessionFixture(t)
	f.sessions.createErr = fmt.Errorf("create sessions: %w", repository.ErrRoomOverlap)

	_, err := f.svc.Create(context.Background(), lecturer, validInput())
	assert.ErrorIs(t, err, ErrRoomDoubleBooked)
}

func TestSessionService_CreateAccess(t *testing.T) {
	tests := []struct {
		name    string
		actor   *model.User
		mutate  func(*SessionInput)
		wantErr error
	}{
		{name: "other lecturer", actor: otherLecturer, wantErr: ErrNotAssignmentOwner},
		{name: "student", actor: student, wantErr: ErrNotAssignmentOwner},
		{name: "admin", actor: admin},
		{name: "unknown assignment", actor: lecturer, mutate: func(in *SessionInput) { in.AssignmentID = 99 }, wantErr: ErrAssignmentNotFound},
		{name: "unknown room", actor: lecturer, mutate: func(in *SessionInput) { in.RoomID = int64Ptr(77) }, wantErr: ErrRoomNotFound},
		{name: "unavailable room", actor: lecturer, mutate: func(in *SessionInput) { in.RoomID = int64Ptr(6) }, wantErr: ErrRoomUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t)
			in := validInput()
			if tt.mutate != nil {
				tt.mutate(&in)
			}

			_, err := f.svc.Create(context.Background(), tt.actor, in)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSessionService_UpdateExcludesItself(t *testing.T) {
	f := newSessionFixture(t)
	created, err := f.svc.Create(context.Background(), lecturer, validInput())
	require.NoError(t, err)
	id := created[0].ID

	in := validInput()
	in.StartTime = "09:30"
	in.GraceMinutes = 30

	updated, err := f.svc.Update(context.Background(), lecturer, id, in)
	require.NoError(t, err)
	assert.Equal(t, "09:30", updated.StartTime)
	assert.Equal(t, "11:00", updated.EndTime)
	assert.Equal(t, "11:30", updated.AttendanceWindowEnd)
}

func TestSessionService_CancelIsTerminal(t *testing.T) {
	f := newSessionFixture(t)
	created, err := f.svc.Create(context.Background(), lecturer, validInput())
	require.NoError(t, err)
	id := created[0].ID

	require.NoError(t, f.svc.Cancel(context.Background(), lecturer, id, "Public holiday"))
	assert.ErrorIs(t, f.svc.Cancel(context.Background(), lecturer, id, "again"), ErrSessionCancelled)

	_, err = f.svc.Update(context.Background(), lecturer, id, validInput())
	assert.ErrorIs(t, err, ErrSessionCancelled)

	// a cancelled session no longer holds the room
	_, err = f.svc.Create(context.Background(), lecturer, validInput())
	assert.NoError(t, err)
}

func TestSessionService_DeleteSeries(t *testing.T) {
	f := newSessionFixture(t)
	in := validInput()
	in.IsRecurring = true
	in.RecurrenceEndDate = datePtr("2024-01-16")
	created, err := f.svc.Create(context.Background(), lecturer, in)
	require.NoError(t, err)
	seriesID := *created[0].SeriesID

	_, err = f.svc.DeleteSeries(context.Background(), otherLecturer, seriesID)
	assert.ErrorIs(t, err, ErrNotAssignmentOwner)

	n, err := f.svc.DeleteSeries(context.Background(), lecturer, seriesID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = f.svc.DeleteSeries(context.Background(), lecturer, uuid.New())
	assert.ErrorIs(t, err, ErrSeriesNotFound)
}

func TestSessionService_Window(t *testing.T) {
	f := newSessionFixture(t)
	created, err := f.svc.Create(context.Background(), lecturer, validInput())
	require.NoError(t, err)
	id := created[0].ID

	tests := []struct {
		now     time.Time
		state   window.State
		tag     window.Tag
		canMark bool
	}{
		{time.Date(2024, 1, 2, 8, 59, 0, 0, time.UTC), window.StateUpcoming, window.TagNone, false},
		{time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), window.StateOpen, window.TagOnTime, true},
		{time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), window.StateOpen, window.TagLate, true},
		{time.Date(2024, 1, 2, 10, 45, 0, 0, time.UTC), window.StateOpen, window.TagLate, true},
		{time.Date(2024, 1, 2, 10, 46, 0, 0, time.UTC), window.StateClosed, window.TagNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.now.Format("15:04"), func(t *testing.T) {
			f.clock.Set(tt.now)
			w, err := f.svc.Window(context.Background(), lecturer, id)
			require.NoError(t, err)
			assert.Equal(t, tt.state, w.State)
			assert.Equal(t, tt.tag, w.Tag)
			assert.Equal(t, tt.canMark, w.CanMark)
		})
	}
}

func TestSessionService_GetVisibility(t *testing.T) {
	f := newSessionFixture(t)
	created, err := f.svc.Create(context.Background(), lecturer, validInput())
	require.NoError(t, err)
	id := created[0].ID

	_, err = f.svc.Get(context.Background(), student, id)
	assert.NoError(t, err)

	_, err = f.svc.Get(context.Background(), &model.User{ID: 101, Role: model.RoleStudent}, id)
	assert.ErrorIs(t, err, ErrNotEnrolled)

	_, err = f.svc.Get(context.Background(), otherLecturer, id)
	assert.ErrorIs(t, err, ErrNotAssignmentOwner)

	_, err = f.svc.Get(context.Background(), admin, 999)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_ValidatePreview(t *testing.T) {
	f := newSessionFixture(t)
	in := validInput()
	in.IsRecurring = true
	in.RecurrenceEndDate = datePtr("2024-01-05")

	p, err := f.svc.Validate(context.Background(), lecturer, in)
	require.NoError(t, err)
	assert.False(t, p.Valid)
	assert.Contains(t, p.Violations, "Recurrence end date must be on or after 2024-01-09")
	assert.Equal(t, "Tuesday", p.Weekday)
	assert.Equal(t, "10:30", p.EndTime)
}

func TestSessionService_ValidateAccess(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Validate(ctx, student, validInput())
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Validate(ctx, otherLecturer, validInput())
	assert.ErrorIs(t, err, ErrNotAssignmentOwner)

	in := validInput()
	in.AssignmentID = 999
	_, err = f.svc.Validate(ctx, lecturer, in)
	assert.ErrorIs(t, err, ErrAssignmentNotFound)

	p, err := f.svc.Validate(ctx, admin, validInput())
	require.NoError(t, err)
	assert.True(t, p.Valid)

	// форма без назначения проверяется без детектора
	in = validInput()
	in.AssignmentID = 0
	_, err = f.svc.Validate(ctx, lecturer, in)
	assert.NoError(t, err)
}

func TestSessionService_ValidateMidnightWrapIsNotUnverified(t *testing.T) {
	f := newSessionFixture(t)
	in := validInput()
	in.StartTime = "23:00"
	in.DurationMinutes = 120

	p, err := f.svc.Validate(context.Background(), lecturer, in)
	require.NoError(t, err)
	assert.False(t, p.Valid)
	assert.Equal(t, []string{validation.MsgWindowOrder}, p.Violations)
	assert.NotContains(t, p.Notices, validation.MsgConflictUnverified)
}

func TestSessionService_CheckConflictsForAccess(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	f.seedDatabases("10:00", "11:00")

	candidate := conflict.Candidate{
		AssignmentID: 1, Date: day("2024-01-02"), StartTime: "09:00", EndTime: "10:30", RoomID: int64Ptr(5),
	}

	_, err := f.svc.CheckConflictsFor(ctx, student, candidate)
	assert.ErrorIs(t, err, ErrNotAssignmentOwner)

	_, err = f.svc.CheckConflictsFor(ctx, otherLecturer, candidate)
	assert.ErrorIs(t, err, ErrNotAssignmentOwner)

	report, err := f.svc.CheckConflictsFor(ctx, lecturer, candidate)
	require.NoError(t, err)
	assert.True(t, report.HasConflicts)

	report, err = f.svc.CheckConflictsFor(ctx, admin, candidate)
	require.NoError(t, err)
	assert.True(t, report.HasConflicts)
}

func TestSessionService_Assignments(t *testing.T) {
	f := newSessionFixture(t)

	list, err := f.svc.Assignments(context.Background(), lecturer)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].ID)

	_, err = f.svc.Assignments(context.Background(), student)
	assert.ErrorIs(t, err, ErrForbidden)
}
