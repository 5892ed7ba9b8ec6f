// Package gamesim drives a running moderator with a synthetic game: it
// writes a thread snapshot and a rights file, waits for the bot to pick them
// up and checks the state it reports on /tally.
package gamesim

import "time"

// Config holds configuration for a simulated game.
type Config struct {
	BaseURL      string        // Base URL of the moderator's status API
	Players      int           // Number of players on the day-one roster
	Posts        int           // Number of player posts after the day start
	GameMaster   string        // Author of the stage posts
	Seed         uint64        // Seed for the vote sequence
	ThreadFile   string        // Snapshot the moderator reads
	RightsFile   string        // Rights table the moderator reads
	Timeout      time.Duration // HTTP request timeout
	Wait         time.Duration // How long to wait for the first tally
	PollInterval time.Duration // Delay between /tally polls
}

// Expectation is what the moderator should report for the generated day.
type Expectation struct {
	Day        int
	AliveCount int
	Majority   int
	// Votes and Unvotes count the commands written, not the ballots that
	// survive the ledger's checks.
	Votes   int
	Unvotes int
}

// Stats holds run statistics.
type Stats struct {
	PostsWritten int
	Polls        int
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
}
