// Package draft tracks the conflict state of a session form while it is being
// edited. Conflict checks run after a quiet period following the last
// relevant edit, and each check carries a token so that a response which
// arrives after a newer edit is dropped instead of applied.
package draft

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/conflict"
)

// DefaultQuietPeriod is the debounce applied when none is configured.
const DefaultQuietPeriod = 500 * time.Millisecond

// Fields are the form values that affect conflict detection.
type Fields struct {
	AssignmentID     int64
	Date             *time.Time
	StartTime        string
	EndTime          string
	RoomID           *int64
	ExcludeSessionID int64
}

// Complete reports whether a check can be run for these fields.
func (f Fields) Complete() bool {
	return f.AssignmentID != 0 && f.Date != nil && f.StartTime != "" && f.EndTime != ""
}

// Candidate converts complete fields to a detector candidate.
func (f Fields) Candidate() conflict.Candidate {
	c := conflict.Candidate{
		AssignmentID:     f.AssignmentID,
		StartTime:        f.StartTime,
		EndTime:          f.EndTime,
		RoomID:           f.RoomID,
		ExcludeSessionID: f.ExcludeSessionID,
	}
	if f.Date != nil {
		c.Date = *f.Date
	}
	return c
}

func (f Fields) key() string {
	date, room := "", ""
	if f.Date != nil {
		date = f.Date.Format(time.DateOnly)
	}
	if f.RoomID != nil {
		room = fmt.Sprint(*f.RoomID)
	}
	return fmt.Sprintf("%d|%s|%s|%s|%s|%d", f.AssignmentID, date, f.StartTime, f.EndTime, room, f.ExcludeSessionID)
}

// CheckFunc runs one conflict query.
type CheckFunc func(ctx context.Context, c conflict.Candidate) (conflict.Report, error)

// Timer is the part of *time.Timer the tracker uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it via a wrapper;
// tests substitute a manual scheduler.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Snapshot is the tracker's state at one moment.
type Snapshot struct {
	Token      uint64
	Report     conflict.Report
	Checking   bool
	Fresh      bool
	Unverified bool
	Err        error
}

// CanSubmit reports whether the form may be submitted on conflict grounds.
// A failed check does not block: the server checks again on submit.
func (s Snapshot) CanSubmit() bool {
	if s.Checking {
		return false
	}
	if s.Unverified {
		return true
	}
	return s.Fresh && !s.Report.HasConflicts
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithAfterFunc replaces the timer factory.
func WithAfterFunc(af AfterFunc) Option {
	return func(t *Tracker) { t.after = af }
}

// WithQuietPeriod sets the debounce.
func WithQuietPeriod(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.quiet = d
		}
	}
}

// Tracker is safe for concurrent use.
type Tracker struct {
	ctx   context.Context
	check CheckFunc
	after AfterFunc
	quiet time.Duration

	mu         sync.Mutex
	token      uint64
	key        string
	timer      Timer
	report     conflict.Report
	checking   bool
	fresh      bool
	unverified bool
	err        error
	discarded  int
	closed     bool
}

// NewTracker returns a tracker whose checks run under ctx.
func NewTracker(ctx context.Context, check CheckFunc, opts ...Option) *Tracker {
	t := &Tracker{
		ctx:    ctx,
		check:  check,
		after:  realAfterFunc,
		quiet:  DefaultQuietPeriod,
		report: conflict.Report{Conflicts: []conflict.Conflict{}},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Update records new form values. When a conflict-relevant value changed it
// issues a new token and restarts the quiet period. It returns the current
// token.
func (t *Tracker) Update(f Fields) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return t.token
	}
	key := f.key()
	if t.token != 0 && key == t.key {
		return t.token
	}

	t.token++
	t.key = key
	t.fresh = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}

	if !f.Complete() {
		t.checking = false
		t.unverified = false
		t.err = nil
		return t.token
	}

	token := t.token
	candidate := f.Candidate()
	t.checking = true
	t.timer = t.after(t.quiet, func() { t.run(token, candidate) })
	return token
}

func (t *Tracker) run(token uint64, c conflict.Candidate) {
	t.mu.Lock()
	if token != t.token || t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	report, err := t.check(t.ctx, c)

	t.mu.Lock()
	defer t.mu.Unlock()

	if token != t.token {
		t.discarded++
		return
	}
	t.checking = false
	t.timer = nil
	if err != nil {
		t.unverified = true
		t.err = err
		return
	}
	t.report = report
	t.fresh = true
	t.unverified = false
	t.err = nil
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Snapshot{
		Token:      t.token,
		Report:     t.report,
		Checking:   t.checking,
		Fresh:      t.fresh,
		Unverified: t.unverified,
		Err:        t.err,
	}
}

// Discarded counts responses dropped because a newer edit superseded them.
func (t *Tracker) Discarded() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.discarded
}

// Close stops any pending check.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
