package model

import (
	"strconv"
	"strings"
)

// EventKind names an outbound report the poster has to render.
type EventKind string

const (
	EventTally       EventKind = "tally"
	EventLynch       EventKind = "lynch"
	EventEndOfDay    EventKind = "end_of_day"
	EventShooting    EventKind = "shooting"
	EventMayorReveal EventKind = "mayor_reveal"
	EventVoteHistory EventKind = "vote_history"
	EventVoters      EventKind = "voters"
	EventGameOver    EventKind = "game_over"
)

// Event is one outbound report. The core only fills in the raw data; text
// rendering belongs to the poster.
type Event struct {
	Kind   EventKind
	Cycle  int
	PostID int // post that triggered the event

	// Subject is the player the event is about (lynched, shot, queried).
	Subject     string
	SubjectName string
	// Actor is the player who caused it (shooter, mayor, requester).
	Actor     string
	ActorName string

	Ballots    []Ballot
	History    []HistoryEntry
	AliveCount int
	Majority   int
	// UpToPost is set for tallies reconstructed at a past post.
	UpToPost   int
	VictimDied bool
	// NoCandidate is set on EndOfDay when nobody could be lynched.
	NoCandidate bool
}

// VoteKey is the content identity of a vote used for replay detection.
func VoteKey(voter, target string, postID int, postTime int64) string {
	return strings.Join([]string{
		voter, target, strconv.Itoa(postID), strconv.FormatInt(postTime, 10),
	}, "|")
}

// ShotKey is the content identity of a shot used for replay detection.
func ShotKey(attacker string, postID int) string {
	return attacker + "|" + strconv.Itoa(postID)
}
