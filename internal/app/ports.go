package service

import (
	"context"

	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/internal/domain/stage"
)

// ThreadReader reads the game thread.
type ThreadReader interface {
	// CurrentStage returns the stage the game master last opened and, for a
	// Day, the player list published in its opening post.
	CurrentStage(ctx context.Context) (stage.Stage, []string, error)

	// LastTally returns the last tally the bot pushed.
	LastTally(ctx context.Context) (model.TallyMark, error)

	// PageCount returns the number of pages in the thread.
	PageCount(ctx context.Context) (int, error)

	// Page returns the posts on one page, in post order.
	Page(ctx context.Context, page int) ([]model.Post, error)
}

// Store persists the state that must survive a restart.
type Store interface {
	LoadHistory(ctx context.Context) ([]model.HistoryEntry, error)
	LoadShots(ctx context.Context) ([]model.ShotEntry, error)
	LoadRoster(ctx context.Context) ([]model.Player, error)
	LoadCheckpoint(ctx context.Context) (model.Checkpoint, bool, error)

	// Flush rewrites every table in one transaction.
	Flush(ctx context.Context, f model.Flush) error
}

// RightsStore reads and writes back the rights table.
type RightsStore interface {
	LoadRights(ctx context.Context) ([]model.Rights, []model.Player, error)
	SaveRights(ctx context.Context, rights []model.Rights) error
}
