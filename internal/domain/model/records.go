// Package model contains domain records shared by the parser, roster, ledger
// and resolution loop.
package model

import "strings"

// Sentinel target keys.
const (
	// NoLynch is the pseudo-player voted to skip today's lynch.
	NoLynch = "no_lynch"
	// NoTarget marks an unvote without a named target: retract the oldest ballot.
	NoTarget = "none"
	// Everyone is the freeze target that freezes every non-staff voter.
	Everyone = "*"
	// GMDisplayName is how the game master is shown in reports.
	GMDisplayName = "GM"
)

// Key returns the canonical lookup key for a forum user name.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Post is one forum post as delivered by the thread reader.
type Post struct {
	ID     int
	Time   int64 // unix seconds
	Author string
	// Commands holds the raw command lines found in the post, in order.
	Commands []string
}

// Player is a roster record. Players are never deleted, only marked dead
// or replaced, so old ballots stay attributable.
type Player struct {
	Key        string `json:"key" yaml:"key"`
	Name       string `json:"name" yaml:"name"`
	Alive      bool   `json:"alive" yaml:"alive"`
	Attack     int    `json:"attack" yaml:"attack"`
	Defense    int    `json:"defense" yaml:"defense"`
	LastShot   int    `json:"last_shot" yaml:"last_shot"`
	Role       string `json:"role,omitempty" yaml:"role,omitempty"`
	Team       string `json:"team,omitempty" yaml:"team,omitempty"`
	ReplacedBy string `json:"replaced_by,omitempty" yaml:"replaced_by,omitempty"`
	// ReplacedAt is the post that carried the replacement.
	ReplacedAt int `json:"replaced_at,omitempty" yaml:"replaced_at,omitempty"`
}

// Rights is one row of the vote rights table.
type Rights struct {
	Key          string `json:"key" yaml:"-"`
	Name         string `json:"name" yaml:"player"`
	AllowedVotes int    `json:"allowed_votes" yaml:"allowed_votes"`
	CanBeVoted   bool   `json:"can_be_voted" yaml:"can_be_voted"`
	ModToLynch   int    `json:"mod_to_lynch" yaml:"mod_to_lynch"`
	Mayor        bool   `json:"mayor" yaml:"mayor"`
}

// Ballot is one currently active vote.
type Ballot struct {
	ID         string `json:"id"`
	Voter      string `json:"voter"`
	VoterAlias string `json:"voter_alias"`
	Target     string `json:"target"`
	TargetName string `json:"target_name"`
	PostID     int    `json:"post_id"`
	PostTime   int64  `json:"post_time"`
	Cycle      int    `json:"cycle"`
}

// ContentKey identifies a ballot by content, ignoring the cycle it was seen in.
func (b Ballot) ContentKey() string {
	return VoteKey(b.Voter, b.Target, b.PostID, b.PostTime)
}

// HistoryEntry is the append-only record of a ballot. UnvotedAt is zero
// while the ballot is active and the retracting post id afterwards.
type HistoryEntry struct {
	Ballot
	UnvotedAt int `json:"unvoted_at"`
}

// ActiveAt reports whether the ballot counted at the given post.
func (h HistoryEntry) ActiveAt(postID int) bool {
	if h.PostID > postID {
		return false
	}
	return h.UnvotedAt == 0 || h.UnvotedAt > postID
}

// TallyMark locates the last tally the bot pushed to the thread.
type TallyMark struct {
	PostID int
	// Final is set when that tally announced a lynch or the end of the day.
	Final bool
}

// Checkpoint is the loop state persisted between cycles.
type Checkpoint struct {
	Cycle        int
	Day          int
	DayStartPost int
	LastTally    TallyMark
	// LastReport is the highest post whose reports were handed to the
	// poster. Commands at or before it are not reported again.
	LastReport int
}

// Flush is everything written back at the end of a cycle.
type Flush struct {
	History    []HistoryEntry
	Shots      []ShotEntry
	Players    []Player
	Checkpoint Checkpoint
}

// ShotEntry records one resolved shot.
type ShotEntry struct {
	Attacker   string `json:"attacker"`
	Victim     string `json:"victim"`
	PostID     int    `json:"post_id"`
	Cycle      int    `json:"cycle"`
	VictimDied bool   `json:"victim_died"`
}
