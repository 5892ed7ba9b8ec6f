// Package action turns command lines found in thread posts into typed actions.
package action

// Kind selects the variant of an Action.
type Kind int

const (
	Unknown Kind = iota
	Vote
	Unvote
	ReplacePlayer
	RequestCount
	VoteHistoryQuery
	VotersQuery
	Freeze
	LockUnvotes
	Modkill
	Kill
	Shoot
	Revive
	RevealMayor
	Winner
)

var kindNames = [...]string{
	Unknown:          "unknown",
	Vote:             "vote",
	Unvote:           "unvote",
	ReplacePlayer:    "replace_player",
	RequestCount:     "request_count",
	VoteHistoryQuery: "vote_history",
	VotersQuery:      "voters",
	Freeze:           "freeze",
	LockUnvotes:      "lock_unvotes",
	Modkill:          "modkill",
	Kill:             "kill",
	Shoot:            "shoot",
	Revive:           "revive",
	RevealMayor:      "reveal_mayor",
	Winner:           "winner",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// StaffOnly reports whether only the game master or moderators may issue
// this kind of action.
func (k Kind) StaffOnly() bool {
	switch k {
	case ReplacePlayer, RequestCount, Freeze, LockUnvotes, Modkill, Kill, Revive, Winner:
		return true
	default:
		return false
	}
}

// Action is one recognized command. Which fields are meaningful depends on
// Kind:
//
//	Vote              Target, Alias (empty unless "as <alias>" was used)
//	Unvote            Target (model.NoTarget retracts the oldest ballot)
//	ReplacePlayer     Outgoing, Target (incoming player)
//	RequestCount      TargetPost (0 means up to now)
//	Freeze            Target (model.Everyone freezes all)
//	VoteHistoryQuery, VotersQuery, Modkill, Kill, Shoot, Revive: Target
//	Winner            Target (winning team, may be empty)
//	LockUnvotes, RevealMayor: no arguments
type Action struct {
	Kind     Kind
	Author   string // canonical key
	PostID   int
	PostTime int64

	Target     string
	Alias      string
	Outgoing   string
	TargetPost int
}
