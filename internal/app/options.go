package service

import (
	"time"

	postworker "github.com/okian/mafiabot/internal/adapters/mq/worker"
	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/internal/domain/stage"
	"github.com/okian/mafiabot/pkg/logger"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithThreadReader sets where posts and stage markers come from.
func WithThreadReader(r ThreadReader) Option {
	return func(s *Service) { s.reader = r }
}

// WithStore sets the durable store for history, shots and roster.
func WithStore(st Store) Option {
	return func(s *Service) { s.store = st }
}

// WithRightsStore sets the vote rights source.
func WithRightsStore(rs RightsStore) Option {
	return func(s *Service) { s.rights = rs }
}

// WithPoster sets the sink for outbound reports.
func WithPoster(p postworker.Poster) Option {
	return func(s *Service) { s.poster = p }
}

// WithQueueSize sets the capacity of the outbound queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithInterval sets the polling period. Values under ten seconds are raised.
func WithInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// WithUpdateThresholds sets how many posts or votes since the last tally
// trigger a new one.
func WithUpdateThresholds(posts, votes int) Option {
	return func(s *Service) {
		if posts > 0 {
			s.postsUntilUpdate = posts
		}
		if votes > 0 {
			s.votesUntilUpdate = votes
		}
	}
}

// WithGameMaster sets the game master.
func WithGameMaster(name string) Option {
	return func(s *Service) { s.gameMaster = model.Key(name) }
}

// WithModerators sets the moderators.
func WithModerators(names ...string) Option {
	return func(s *Service) {
		for _, n := range names {
			if k := model.Key(n); k != "" {
				s.moderators = append(s.moderators, k)
			}
		}
	}
}

// WithTimer sets the stage timer.
func WithTimer(t *stage.Timer) Option {
	return func(s *Service) {
		if t != nil {
			s.timer = t
		}
	}
}

// WithClock overrides the wall clock used for the deadline check.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
