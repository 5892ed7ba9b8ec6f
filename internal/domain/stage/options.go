package stage

import "time"

// Option applies a configuration option to the Timer.
type Option func(*Timer)

// WithDurationHours sets how many hours a stage lasts.
func WithDurationHours(h int) Option {
	return func(t *Timer) {
		t.durationHours = h
	}
}

// WithCutoff sets the local time of day stages end at.
func WithCutoff(c Clock) Option {
	return func(t *Timer) {
		t.cutoff = c
	}
}

// WithLocation sets the reference timezone.
func WithLocation(loc *time.Location) Option {
	return func(t *Timer) {
		if loc != nil {
			t.loc = loc
		}
	}
}
