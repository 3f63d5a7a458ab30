// Package window classifies a session's attendance window against the current
// time. It is the single place that decides whether a mark is permitted and
// whether it counts as on time or late.
package window

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/timeofday"
)

// State is the attendance window state. It only moves forward:
// upcoming -> open -> closed.
type State string

const (
	StateUpcoming State = "upcoming"
	StateOpen     State = "open"
	StateClosed   State = "closed"
)

// Tag qualifies an open window.
type Tag string

const (
	TagNone   Tag = ""
	TagOnTime Tag = "on_time"
	TagLate   Tag = "late"
)

// Bounds are the absolute instants of one occurrence's window.
type Bounds struct {
	WindowStart  time.Time
	SessionStart time.Time
	WindowEnd    time.Time
}

// BoundsFor places the "HH:MM" window fields on the session date in loc. A
// window end that reads earlier than its start is taken to be on the next day.
func BoundsFor(date time.Time, windowStart, sessionStart, windowEnd string, loc *time.Location) (Bounds, error) {
	ws, err := timeofday.Parse(windowStart)
	if err != nil {
		return Bounds{}, fmt.Errorf("window start: %w", err)
	}
	ss, err := timeofday.Parse(sessionStart)
	if err != nil {
		return Bounds{}, fmt.Errorf("session start: %w", err)
	}
	we, err := timeofday.Parse(windowEnd)
	if err != nil {
		return Bounds{}, fmt.Errorf("window end: %w", err)
	}

	b := Bounds{
		WindowStart:  ws.On(date, loc),
		SessionStart: ss.On(date, loc),
		WindowEnd:    we.On(date, loc),
	}
	if we < ws {
		b.WindowEnd = b.WindowEnd.AddDate(0, 0, 1)
	}
	return b, nil
}

// Classification is the result of evaluating a window at one instant.
type Classification struct {
	State State `json:"state"`
	Tag   Tag   `json:"tag,omitempty"`
}

// CanMark reports whether attendance may be marked.
func (c Classification) CanMark() bool {
	return c.State == StateOpen
}

// Classify evaluates b at now. Window bounds are inclusive at both ends; the
// on-time tag applies up to and including the session start.
func Classify(b Bounds, now time.Time) Classification {
	switch {
	case now.Before(b.WindowStart):
		return Classification{State: StateUpcoming}
	case now.After(b.WindowEnd):
		return Classification{State: StateClosed}
	case now.After(b.SessionStart):
		return Classification{State: StateOpen, Tag: TagLate}
	default:
		return Classification{State: StateOpen, Tag: TagOnTime}
	}
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the host clock.
var SystemClock Clock = ClockFunc(time.Now)

// Classifier binds Classify to a clock and the campus timezone. It reads the
// clock on every call; results are never cached.
type Classifier struct {
	clock Clock
	loc   *time.Location
}

// NewClassifier returns a classifier. Nil arguments fall back to the system
// clock and time.Local.
func NewClassifier(clock Clock, loc *time.Location) *Classifier {
	if clock == nil {
		clock = SystemClock
	}
	if loc == nil {
		loc = time.Local
	}
	return &Classifier{clock: clock, loc: loc}
}

// Location is the zone session wall-clock times are interpreted in.
func (c *Classifier) Location() *time.Location {
	return c.loc
}

// Now returns the classifier's current instant.
func (c *Classifier) Now() time.Time {
	return c.clock.Now().In(c.loc)
}

// Evaluate classifies the window described by the session fields at the
// current instant.
func (c *Classifier) Evaluate(date time.Time, windowStart, sessionStart, windowEnd string) (Classification, error) {
	b, err := BoundsFor(date, windowStart, sessionStart, windowEnd, c.loc)
	if err != nil {
		return Classification{}, err
	}
	return Classify(b, c.Now()), nil
}
