// Package config defines the moderator's process configuration and how it
// is loaded.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/mafiabot/internal/domain/stage"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects "json" or "text" output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// UpdateIntervalSeconds is the polling period. Values under 10 are raised to 10.
	UpdateIntervalSeconds int `koanf:"update_interval_seconds"`
	// PostsUntilUpdate and VotesUntilUpdate trigger a new tally.
	PostsUntilUpdate int `koanf:"posts_until_update"`
	VotesUntilUpdate int `koanf:"votes_until_update"`

	GameMaster string   `koanf:"game_master"`
	Moderators []string `koanf:"moderators"`
	BotUser    string   `koanf:"bot_user"`

	// StageDurationHours, StageCutoff ("HH:MM") and Timezone drive the
	// end-of-day deadline.
	StageDurationHours int    `koanf:"stage_duration_hours"`
	StageCutoff        string `koanf:"stage_cutoff"`
	Timezone           string `koanf:"timezone"`

	// RightsFile is the YAML setup with the rights table and combat data.
	RightsFile string `koanf:"rights_file"`
	// ThreadSnapshot is the YAML file holding the game thread.
	ThreadSnapshot string `koanf:"thread_snapshot"`

	DBDialect     string `koanf:"db_dialect"`
	DBSQLitePath  string `koanf:"db_sqlite_path"`
	DBPostgresDSN string `koanf:"db_postgres_dsn"`

	// OutboundQueueSize bounds the queue of reports waiting to be posted.
	OutboundQueueSize int `koanf:"outbound_queue_size"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "json",
		Addr:                  ":9080",
		UpdateIntervalSeconds: 60,
		PostsUntilUpdate:      30,
		VotesUntilUpdate:      5,
		BotUser:               "mafiabot",
		StageDurationHours:    stage.DefaultDurationHours,
		StageCutoff:           stage.DefaultCutoff.String(),
		Timezone:              stage.DefaultZone,
		RightsFile:            "game.yaml",
		ThreadSnapshot:        "thread.yaml",
		DBDialect:             "sqlite",
		DBSQLitePath:          "data/mafiabot.sqlite",
		OutboundQueueSize:     256,
	}
}

// UpdateInterval returns the polling period, never under ten seconds.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(max(c.UpdateIntervalSeconds, 10)) * time.Second
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Cutoff parses StageCutoff.
func (c *Config) Cutoff() (stage.Clock, error) {
	clk, err := stage.ParseClock(c.StageCutoff)
	if err != nil {
		return stage.Clock{}, fmt.Errorf("%w: stage_cutoff: %v", ErrInvalidConfig, err)
	}
	return clk, nil
}

// Validate checks the fields the moderator cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.GameMaster) == "" {
		return fmt.Errorf("%w: game_master must not be empty", ErrInvalidConfig)
	}
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.StageDurationHours <= 0 {
		return fmt.Errorf("%w: stage_duration_hours must be positive", ErrInvalidConfig)
	}
	if _, err := c.Cutoff(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
