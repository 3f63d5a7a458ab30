package window

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

var date = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func at(hh, mm int) time.Time {
	return time.Date(2024, time.January, 1, hh, mm, 0, 0, time.UTC)
}

func TestClassify(t *testing.T) {
	b, err := BoundsFor(date, "09:00", "09:00", "09:30", time.UTC)
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want Classification
	}{
		{name: "before window", now: at(8, 59), want: Classification{State: StateUpcoming}},
		{name: "at window start", now: at(9, 0), want: Classification{State: StateOpen, Tag: TagOnTime}},
		{name: "after session start", now: at(9, 15), want: Classification{State: StateOpen, Tag: TagLate}},
		{name: "at window end", now: at(9, 30), want: Classification{State: StateOpen, Tag: TagLate}},
		{name: "after window", now: at(9, 31), want: Classification{State: StateClosed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(b, tt.now)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.State == StateOpen, got.CanMark())
		})
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	b, err := BoundsFor(date, "09:00", "09:00", "09:30", time.UTC)
	require.NoError(t, err)

	now := at(9, 10)
	assert.Equal(t, Classify(b, now), Classify(b, now))
}

func TestClassifierFollowsClock(t *testing.T) {
	clock := &manualClock{now: at(8, 0)}
	c := NewClassifier(clock, time.UTC)

	var seen []State
	for _, now := range []time.Time{at(8, 0), at(9, 0), at(9, 45), at(11, 31), at(12, 0)} {
		clock.Set(now)
		got, err := c.Evaluate(date, "09:00", "09:00", "11:30")
		require.NoError(t, err)
		seen = append(seen, got.State)
	}

	assert.Equal(t, []State{StateUpcoming, StateOpen, StateOpen, StateClosed, StateClosed}, seen)
}

func TestClassifierUsesLocation(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)
	clock := &manualClock{now: time.Date(2024, time.January, 1, 8, 30, 0, 0, time.UTC)}

	got, err := NewClassifier(clock, lagos).Evaluate(date, "09:00", "09:00", "09:30")

	require.NoError(t, err)
	assert.Equal(t, Classification{State: StateOpen, Tag: TagLate}, got)
}

func TestBoundsForWrapsWindowEnd(t *testing.T) {
	b, err := BoundsFor(date, "23:00", "23:00", "01:30", time.UTC)

	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 2, 1, 30, 0, 0, time.UTC), b.WindowEnd)
}

func TestBoundsForRejectsMalformed(t *testing.T) {
	_, err := BoundsFor(date, "", "09:00", "09:30", time.UTC)
	assert.Error(t, err)
}
