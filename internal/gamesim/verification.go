package gamesim

import (
	"fmt"

	service "github.com/okian/mafiabot/internal/app"
)

// Verify compares the reported tally with the generated day.
func Verify(view *service.TallyView, exp Expectation) error {
	if view.Stage != "day" {
		return fmt.Errorf("%w: stage %q, want day", ErrMismatch, view.Stage)
	}
	if view.Day != exp.Day {
		return fmt.Errorf("%w: day %d, want %d", ErrMismatch, view.Day, exp.Day)
	}
	if view.AliveCount != exp.AliveCount {
		return fmt.Errorf("%w: %d alive, want %d", ErrMismatch, view.AliveCount, exp.AliveCount)
	}
	if view.Majority != exp.Majority {
		return fmt.Errorf("%w: majority %d, want %d", ErrMismatch, view.Majority, exp.Majority)
	}
	if len(view.Ballots) > exp.Votes {
		return fmt.Errorf("%w: %d ballots from %d votes", ErrMismatch, len(view.Ballots), exp.Votes)
	}
	for _, b := range view.Ballots {
		if b.Voter == b.Target {
			return fmt.Errorf("%w: %s votes for themselves", ErrMismatch, b.Voter)
		}
	}
	return nil
}
