package gamesim

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/okian/mafiabot/internal/adapters/gamefile"
	"github.com/okian/mafiabot/internal/adapters/thread"
	"github.com/okian/mafiabot/internal/domain/ledger"
	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/pkg/logger"
)

// Vote mix.
const (
	unvotePercent   = 20
	noLynchPercent  = 5
	postSpacingSecs = 60
	minPlayers      = 3
)

// Game is a generated day one.
type Game struct {
	Thread thread.Snapshot
	Setup  gamefile.File
	Expect Expectation
}

// Generate builds a day-one thread opened at start (unix seconds). The same
// seed always yields the same game.
func Generate(ctx context.Context, cfg *Config, start int64) (Game, error) {
	if cfg.Players < minPlayers {
		return Game{}, fmt.Errorf("%w: need at least %d players", ErrInvalidConfig, minPlayers)
	}
	if cfg.GameMaster == "" {
		return Game{}, fmt.Errorf("%w: game master is required", ErrInvalidConfig)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	names := make([]string, cfg.Players)
	for i := range names {
		names[i] = fmt.Sprintf("Jugador%02d", i+1)
	}

	game := Game{
		Thread: thread.Snapshot{Title: "Partida simulada"},
		Expect: Expectation{
			Day:        1,
			AliveCount: len(names),
			Majority:   ledger.CurrentMajority(len(names)),
		},
	}
	game.Setup.Rights = append(game.Setup.Rights, model.Rights{Key: model.NoLynch, Name: model.NoLynch, CanBeVoted: true})
	for _, n := range names {
		game.Setup.Rights = append(game.Setup.Rights, model.Rights{Key: model.Key(n), Name: n, AllowedVotes: 1, CanBeVoted: true})
	}

	game.Thread.Posts = append(game.Thread.Posts,
		thread.Post{ID: 1, Time: start - postSpacingSecs, Author: cfg.GameMaster, Headers: []string{"Normas"}},
		thread.Post{ID: 2, Time: start, Author: cfg.GameMaster, Headers: []string{"Día 1"}, Players: names},
	)

	for i := 0; i < cfg.Posts; i++ {
		if err := ctx.Err(); err != nil {
			return Game{}, fmt.Errorf("generation cancelled: %w", err)
		}
		author := names[rng.IntN(len(names))]
		game.Thread.Posts = append(game.Thread.Posts, thread.Post{
			ID:       i + 3,
			Time:     start + int64(i+1)*postSpacingSecs,
			Author:   author,
			Commands: []string{nextCommand(rng, names, author, &game.Expect)},
		})
	}

	logger.Get().Info(ctx, "generated simulated day",
		logger.Int("players", len(names)),
		logger.Int("posts", len(game.Thread.Posts)),
		logger.Int("votes", game.Expect.Votes),
		logger.Int("unvotes", game.Expect.Unvotes))
	return game, nil
}

func nextCommand(rng *rand.Rand, names []string, author string, exp *Expectation) string {
	roll := rng.IntN(100)
	switch {
	case roll < unvotePercent:
		exp.Unvotes++
		return "desvoto"
	case roll < unvotePercent+noLynchPercent:
		exp.Votes++
		return "voto no linchamiento"
	}

	target := names[rng.IntN(len(names))]
	for target == author {
		target = names[rng.IntN(len(names))]
	}
	exp.Votes++
	return "voto " + target
}
