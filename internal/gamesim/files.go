package gamesim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/okian/mafiabot/internal/adapters/gamefile"
	"github.com/okian/mafiabot/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// WriteFiles stores the generated thread and setup where the moderator
// reads them.
func WriteFiles(ctx context.Context, cfg *Config, game *Game) error {
	if err := gamefile.Save(cfg.RightsFile, game.Setup); err != nil {
		return fmt.Errorf("failed to write rights file: %w", err)
	}

	data, err := yaml.Marshal(&game.Thread)
	if err != nil {
		return fmt.Errorf("failed to encode thread: %w", err)
	}
	if dir := filepath.Dir(cfg.ThreadFile); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(cfg.ThreadFile, data, filePermission); err != nil {
		return fmt.Errorf("failed to write thread: %w", err)
	}

	logger.Get().Info(ctx, "simulation files written",
		logger.String("thread", cfg.ThreadFile),
		logger.String("rights", cfg.RightsFile))
	return nil
}
