package roster

import (
	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/pkg/logger"
)

// Option applies a configuration option to the Roster.
type Option func(*Roster)

// WithLogger sets the logger for rule violations and data gaps.
func WithLogger(l logger.Logger) Option {
	return func(r *Roster) {
		r.logger = l
	}
}

// WithPlayers loads persisted or configured player records.
func WithPlayers(players []model.Player) Option {
	return func(r *Roster) {
		for _, p := range players {
			r.add(p)
		}
	}
}

// WithShots loads the persisted shot log.
func WithShots(shots []model.ShotEntry) Option {
	return func(r *Roster) {
		for _, s := range shots {
			r.addShot(s)
		}
	}
}

// WithDay sets the last day already started.
func WithDay(day int) Option {
	return func(r *Roster) {
		if day > 0 {
			r.day = day
		}
	}
}
