package stage

import (
	"fmt"
	"time"
)

const (
	// DefaultDurationHours is how long a stage lasts unless configured.
	DefaultDurationHours = 48
	// DefaultZone is the forum's reference timezone.
	DefaultZone = "Europe/Madrid"
)

// DefaultCutoff is the published daily time at which stages end.
var DefaultCutoff = Clock{Hour: 21, Minute: 10} //nolint:gochecknoglobals // value type default

// Timer computes stage deadlines. Build one with NewTimer; the zero value
// behaves as a timer with every default applied.
type Timer struct {
	durationHours int
	cutoff        Clock
	loc           *time.Location
}

// NewTimer creates a timer. A non-positive duration is a configuration
// error and is reported rather than clamped.
func NewTimer(opts ...Option) (*Timer, error) {
	t := &Timer{
		durationHours: DefaultDurationHours,
		cutoff:        DefaultCutoff,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.durationHours <= 0 {
		return nil, fmt.Errorf("%w: %d hours", ErrInvalidDuration, t.durationHours)
	}
	if t.loc == nil {
		loc, err := time.LoadLocation(DefaultZone)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", DefaultZone, err)
		}
		t.loc = loc
	}
	return t, nil
}

// EndOfStage returns the deadline of a stage that started at start.
func (t *Timer) EndOfStage(start int64) int64 {
	hours, cutoff, loc := t.durationHours, t.cutoff, t.loc
	if hours <= 0 {
		hours, cutoff = DefaultDurationHours, DefaultCutoff
	}
	if loc == nil {
		loc = defaultLocation()
	}
	// hours is positive here, so EndOfStage cannot fail.
	end, _ := EndOfStage(start, hours, cutoff, loc)
	return end
}

func defaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Window returns the stage paired with its deadline.
func (t *Timer) Window(s Stage) Window {
	return Window{Stage: s, Deadline: t.EndOfStage(s.StartTime)}
}

// EndOfStage adds durationHours to start and then moves the time of day to
// cutoff on that same calendar date in loc.
func EndOfStage(start int64, durationHours int, cutoff Clock, loc *time.Location) (int64, error) {
	if durationHours <= 0 {
		return 0, fmt.Errorf("%w: %d hours", ErrInvalidDuration, durationHours)
	}
	if loc == nil {
		loc = time.UTC
	}
	end := time.Unix(start, 0).In(loc).Add(time.Duration(durationHours) * time.Hour)
	snapped := time.Date(end.Year(), end.Month(), end.Day(), cutoff.Hour, cutoff.Minute, 0, 0, loc)
	return snapped.Unix(), nil
}
