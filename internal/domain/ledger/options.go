package ledger

import (
	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/pkg/logger"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithLogger sets the logger for rejected votes and data gaps.
func WithLogger(l logger.Logger) Option {
	return func(led *Ledger) {
		led.logger = l
	}
}

// WithCycle sets the generation id new history rows are recorded under.
func WithCycle(cycle int) Option {
	return func(led *Ledger) {
		if cycle >= 0 {
			led.cycle = cycle
		}
	}
}

// WithGameMaster sets the game master. The game master is staff.
func WithGameMaster(name string) Option {
	return func(led *Ledger) {
		key := model.Key(name)
		if key == "" {
			return
		}
		led.gameMaster = key
		led.staff[key] = true
	}
}

// WithModerators adds staff members besides the game master.
func WithModerators(names ...string) Option {
	return func(led *Ledger) {
		for _, n := range names {
			if key := model.Key(n); key != "" {
				led.staff[key] = true
			}
		}
	}
}

// WithRights loads the rights table.
func WithRights(rows []model.Rights) Option {
	return func(led *Ledger) {
		for _, r := range rows {
			led.putRights(r)
		}
	}
}

// WithHistory loads the persisted vote history.
func WithHistory(rows []model.HistoryEntry) Option {
	return func(led *Ledger) {
		led.history = append(led.history, rows...)
	}
}

// WithDayStart sets the post that opened the current day.
func WithDayStart(postID int) Option {
	return func(led *Ledger) {
		led.dayStart = postID
	}
}
