package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/mafiabot/internal/gamesim"
	"github.com/okian/mafiabot/pkg/logger"
)

// Default configuration constants.
const (
	defaultPlayers      = 9
	defaultPosts        = 40
	defaultTimeout      = 10 * time.Second
	defaultWait         = 3 * time.Minute
	defaultPollInterval = 5 * time.Second
)

const usage = `Mafiabot game simulator
=======================

Writes a synthetic day one and checks the tally the moderator reports for it.
Point MAFIABOT_THREAD_SNAPSHOT and MAFIABOT_RIGHTS_FILE at the same files and
use a fresh database so no earlier game is replayed.

Examples:
  go run ./cmd/gamesim -thread thread.yaml -rights game.yaml
  go run ./cmd/gamesim -players 13 -posts 200 -seed 7 -url http://localhost:9080

Options:
`

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the moderator")
		players    = flag.Int("players", defaultPlayers, "Number of players")
		posts      = flag.Int("posts", defaultPosts, "Number of player posts to write")
		gm         = flag.String("gm", "gm", "Game master user name")
		seed       = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Seed for the vote sequence") //nolint:gosec // non-negative
		threadFile = flag.String("thread", "thread.yaml", "Thread snapshot the moderator reads")
		rightsFile = flag.String("rights", "game.yaml", "Rights file the moderator reads")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		wait       = flag.Duration("wait", defaultWait, "How long to wait for the moderator")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString(usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := logger.Init(logger.WithFormat("text")); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	cfg := &gamesim.Config{
		BaseURL:      *baseURL,
		Players:      *players,
		Posts:        *posts,
		GameMaster:   *gm,
		Seed:         *seed,
		ThreadFile:   *threadFile,
		RightsFile:   *rightsFile,
		Timeout:      *timeout,
		Wait:         *wait,
		PollInterval: defaultPollInterval,
	}

	if err := gamesim.Run(context.Background(), cfg); err != nil {
		_, _ = os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
