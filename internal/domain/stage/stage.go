// Package stage models game phases and computes when a phase ends.
package stage

import (
	"fmt"
	"strconv"
	"strings"
	_ "time/tzdata" // reference zone must resolve on hosts without zoneinfo
)

// Kind is the current phase of the game.
type Kind int

const (
	Day Kind = iota
	Night
	End
)

func (k Kind) String() string {
	switch k {
	case Day:
		return "day"
	case Night:
		return "night"
	case End:
		return "end"
	default:
		return "unknown"
	}
}

// ParseKind turns a stage name as reported by the thread reader into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "dia", "día":
		return Day, nil
	case "night", "noche":
		return Night, nil
	case "end", "fin":
		return End, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStage, s)
	}
}

// Stage is the phase the thread is in. StartPost and StartTime are only
// meaningful for Day.
type Stage struct {
	Kind      Kind
	Number    int
	StartPost int
	StartTime int64
}

// Window pairs a stage with its deadline.
type Window struct {
	Stage    Stage
	Deadline int64
}

// IsPastDeadline reports whether now is at or after the window's deadline.
func (w Window) IsPastDeadline(now int64) bool {
	return IsPastDeadline(now, w.Deadline)
}

// IsPastDeadline reports whether now is at or after deadline.
func IsPastDeadline(now, deadline int64) bool {
	return now >= deadline
}

// Clock is a local time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses an "HH:MM" time of day.
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock{Hour: h, Minute: m}, nil
}
