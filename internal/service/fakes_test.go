package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/conflict"
	"github.com/Freeeeeet/class_attendance/internal/face"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/repository"
	"github.com/Freeeeeet/class_attendance/internal/window"
	"github.com/google/uuid"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(s string) *time.Time {
	t := day(s)
	return &t
}

func int64Ptr(v int64) *int64 { return &v }

// manualClock is a settable clock for window tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newClassifier(now time.Time) (*window.Classifier, *manualClock) {
	clock := &manualClock{now: now}
	return window.NewClassifier(clock, time.UTC), clock
}

type fakeSessions struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]*model.Session
	// cohort maps an assignment to the assignments sharing at least one student with it.
	cohort    map[int64][]int64
	lecturers map[int64]int64
	checkErr  error
	createErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		sessions:  make(map[int64]*model.Session),
		cohort:    make(map[int64][]int64),
		lecturers: make(map[int64]int64),
	}
}

func (f *fakeSessions) put(s *model.Session) *model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	if s.LecturerID == 0 {
		s.LecturerID = f.lecturers[s.AssignmentID]
	}
	if s.CourseCode == "" {
		s.CourseCode = "CSC-302"
	}
	s.IsActive = true
	f.sessions[s.ID] = s
	return s
}

func (f *fakeSessions) all() []*model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeSessions) LecturerOf(_ context.Context, assignmentID int64) (int64, error) {
	if f.checkErr != nil {
		return 0, f.checkErr
	}
	return f.lecturers[assignmentID], nil
}

func (f *fakeSessions) bookings(date time.Time, match func(*model.Session) bool) []conflict.Booking {
	var out []conflict.Booking
	for _, s := range f.all() {
		if !s.Open() || !s.ScheduledDate.Equal(date) || !match(s) {
			continue
		}
		code := ""
		if s.Room != nil {
			code = s.Room.Code
		}
		out = append(out, conflict.Booking{
			SessionID:  s.ID,
			Title:      s.Title,
			CourseCode: s.CourseCode,
			RoomCode:   code,
			Date:       s.ScheduledDate,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
		})
	}
	return out
}

func (f *fakeSessions) RoomBookings(_ context.Context, roomID int64, date time.Time) ([]conflict.Booking, error) {
	return f.bookings(date, func(s *model.Session) bool { return s.RoomID != nil && *s.RoomID == roomID }), nil
}

func (f *fakeSessions) LecturerBookings(_ context.Context, lecturerID int64, date time.Time) ([]conflict.Booking, error) {
	return f.bookings(date, func(s *model.Session) bool { return s.LecturerID == lecturerID }), nil
}

func (f *fakeSessions) CohortBookings(_ context.Context, assignmentID int64, date time.Time) ([]conflict.Booking, error) {
	return f.bookings(date, func(s *model.Session) bool {
		for _, id := range f.cohort[assignmentID] {
			if s.AssignmentID == id {
				return true
			}
		}
		return false
	}), nil
}

func (f *fakeSessions) CreateSeries(_ context.Context, sessions []*model.Session) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, s := range sessions {
		f.put(s)
	}
	return nil
}

func (f *fakeSessions) GetByID(_ context.Context, id int64) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id], nil
}

func (f *fakeSessions) Update(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeSessions) Cancel(_ context.Context, id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id].IsCancelled = true
	f.sessions[id].CancellationReason = reason
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return 0, nil
	}
	delete(f.sessions, id)
	return 1, nil
}

func (f *fakeSessions) DeleteSeries(_ context.Context, seriesID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.SeriesID != nil && *s.SeriesID == seriesID {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) ListSeries(_ context.Context, seriesID uuid.UUID) ([]*model.Session, error) {
	var out []*model.Session
	for _, s := range f.all() {
		if s.SeriesID != nil && *s.SeriesID == seriesID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) List(_ context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	var out []*model.Session
	for _, s := range f.all() {
		if filter.LecturerID != nil && s.LecturerID != *filter.LecturerID {
			continue
		}
		if filter.Date != nil && !s.ScheduledDate.Equal(*filter.Date) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSessions) ListFinalizable(_ context.Context, upTo time.Time) ([]*model.Session, error) {
	var out []*model.Session
	for _, s := range f.all() {
		if s.Open() && !s.AttendanceFinalized && !s.ScheduledDate.After(upTo) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeAssignments struct {
	assignments map[int64]*model.CourseAssignment
	// enrolled[assignmentID][studentID]
	enrolled map[int64]map[int64]bool
}

func (f *fakeAssignments) GetAssignment(_ context.Context, id int64) (*model.CourseAssignment, error) {
	return f.assignments[id], nil
}

func (f *fakeAssignments) ListByLecturer(_ context.Context, lecturerID int64) ([]*model.CourseAssignment, error) {
	var out []*model.CourseAssignment
	for _, a := range f.assignments {
		if a.LecturerID == lecturerID && a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAssignments) IsEnrolled(_ context.Context, studentID, assignmentID int64) (bool, error) {
	return f.enrolled[assignmentID][studentID], nil
}

type fakeRooms map[int64]*model.Room

func (f fakeRooms) GetByID(_ context.Context, id int64) (*model.Room, error) {
	return f[id], nil
}

func (f fakeRooms) List(_ context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	var out []*model.Room
	for _, r := range f {
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		if filter.AvailableOnly && !r.IsAvailable {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type fakeAttendance struct {
	mu      sync.Mutex
	records []*model.Attendance
	// enrolled students per session used by FinalizeAbsences
	roster    map[int64][]int64
	finalized []int64
}

func (f *fakeAttendance) Create(_ context.Context, a *model.Attendance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.SessionID == a.SessionID && r.StudentID == a.StudentID {
			return repository.ErrDuplicate
		}
	}
	a.ID = int64(len(f.records) + 1)
	f.records = append(f.records, a)
	return nil
}

func (f *fakeAttendance) Get(_ context.Context, sessionID, studentID int64) (*model.Attendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.SessionID == sessionID && r.StudentID == studentID {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeAttendance) ListBySession(_ context.Context, sessionID int64) ([]*model.Attendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Attendance, 0)
	for _, r := range f.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAttendance) FinalizeAbsences(ctx context.Context, sessionID int64) (int64, error) {
	var n int64
	for _, studentID := range f.roster[sessionID] {
		existing, _ := f.Get(ctx, sessionID, studentID)
		if existing != nil {
			continue
		}
		_ = f.Create(ctx, &model.Attendance{SessionID: sessionID, StudentID: studentID, Status: model.AttendanceAbsent})
		n++
	}
	f.finalized = append(f.finalized, sessionID)
	return n, nil
}

type fakeVerifier struct {
	verdict face.Verdict
	err     error
	calls   int
}

func (f *fakeVerifier) Verify(context.Context, int64, []byte) (face.Verdict, error) {
	f.calls++
	return f.verdict, f.err
}
