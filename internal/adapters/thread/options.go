package thread

import (
	"time"

	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/pkg/logger"
)

// Option configures a Thread.
type Option func(*Thread)

// WithGameMaster sets whose posts carry the stage markers.
func WithGameMaster(name string) Option {
	return func(t *Thread) { t.gameMaster = model.Key(name) }
}

// WithBotUser sets the account the bot posts as.
func WithBotUser(name string) Option {
	return func(t *Thread) {
		if k := model.Key(name); k != "" {
			t.botUser = k
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Thread) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock sets the clock used to stamp bot posts.
func WithClock(now func() time.Time) Option {
	return func(t *Thread) {
		if now != nil {
			t.now = now
		}
	}
}
