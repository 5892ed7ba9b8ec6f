package gamesim

import (
	"context"
	"fmt"
	"time"

	service "github.com/okian/mafiabot/internal/app"
	"github.com/okian/mafiabot/pkg/logger"
)

// Run writes a simulated day and checks what the moderator reports for it.
func Run(ctx context.Context, cfg *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting game simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("posts", cfg.Posts),
		logger.Int64("seed", int64(cfg.Seed)), //nolint:gosec // seed is only logged
		logger.String("wait", cfg.Wait.String()))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := client.checkHealth(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	game, err := Generate(ctx, cfg, stats.StartTime.Unix())
	if err != nil {
		return fmt.Errorf("game generation failed: %w", err)
	}
	if err := WriteFiles(ctx, cfg, &game); err != nil {
		return err
	}
	stats.PostsWritten = len(game.Thread.Posts)

	view, err := waitForDay(ctx, client, cfg, game.Expect.Day, stats)
	if err != nil {
		return err
	}
	if err := Verify(&view, game.Expect); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "simulation verified",
		logger.Int("postsWritten", stats.PostsWritten),
		logger.Int("polls", stats.Polls),
		logger.Int("ballots", len(view.Ballots)),
		logger.Int("majority", view.Majority),
		logger.String("phase", view.Phase),
		logger.String("duration", stats.Duration.String()))
	return nil
}

// waitForDay polls /tally until the moderator reports day.
func waitForDay(ctx context.Context, c *HTTPClient, cfg *Config, day int, stats *Stats) (service.TallyView, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Wait)
	defer cancel()

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		stats.Polls++
		view, ok, err := c.tally(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Get().Warn(ctx, "tally poll failed", logger.Error(err))
		case ok && view.Day == day:
			return view, nil
		}

		select {
		case <-ctx.Done():
			return service.TallyView{}, fmt.Errorf("%w for day %d after %d polls", ErrNoTally, day, stats.Polls)
		case <-ticker.C:
		}
	}
}
