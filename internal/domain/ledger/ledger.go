// Package ledger keeps the ballots of one day, the vote history of the
// whole game and the rights table that decides who may vote for whom.
package ledger

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/okian/mafiabot/internal/domain/action"
	"github.com/okian/mafiabot/internal/domain/dedupe"
	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/pkg/logger"
	"github.com/okian/mafiabot/pkg/metrics"
)

// Phase is the state of the ledger within a day.
type Phase int

const (
	// Open accepts votes and unvotes.
	Open Phase = iota
	// Locked accepts votes only (LyLo).
	Locked
	// Closed accepts nothing until the next day.
	Closed
)

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case Locked:
		return "locked"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Players is the part of the roster the ledger consults.
type Players interface {
	Exists(key string) bool
	AliveCount() int
	Name(key string) string
}

// Ledger is rebuilt for every polling cycle and fed the day's actions in
// post order. It is not safe for concurrent use.
type Ledger struct {
	logger  logger.Logger
	players Players
	guard   dedupe.Guard
	cycle   int

	gameMaster string
	staff      map[string]bool

	rights      map[string]*model.Rights
	rightsOrder []string
	rightsGrown bool

	dayStart  int
	ballots   []model.Ballot
	history   []model.HistoryEntry
	historyAt map[string][]int // content key -> history indexes
	replays   map[string]int   // content key -> replays consumed this scan

	frozen    map[string]bool
	frozenAll bool
	phase     Phase
	lynched   string
}

// New creates a ledger for one cycle.
func New(players Players, opts ...Option) *Ledger {
	l := &Ledger{
		players:   players,
		staff:     make(map[string]bool),
		rights:    make(map[string]*model.Rights),
		historyAt: make(map[string][]int),
		replays:   make(map[string]int),
		frozen:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logger.OrGet(l.logger)

	l.guard = dedupe.NewInMemoryGuard(dedupe.WithCycle(l.cycle))
	for i, h := range l.history {
		key := h.ContentKey()
		l.guard.Seed(key, h.Cycle)
		l.historyAt[key] = append(l.historyAt[key], i)
	}
	return l
}

// Cycle returns the generation id this ledger records under.
func (l *Ledger) Cycle() int { return l.cycle }

// Phase returns the current phase.
func (l *Ledger) Phase() Phase { return l.phase }

// Lynched returns the target that closed the day by majority, if any.
func (l *Ledger) Lynched() string { return l.lynched }

// IsStaff reports whether key is the game master or a moderator.
func (l *Ledger) IsStaff(key string) bool { return l.staff[key] }

// GameMaster returns the game master's key.
func (l *Ledger) GameMaster() string { return l.gameMaster }

// CurrentMajority returns the votes needed to lynch among aliveCount players:
// half rounded up when odd, half plus one when even.
func CurrentMajority(aliveCount int) int {
	if aliveCount%2 == 0 {
		return aliveCount/2 + 1
	}
	return (aliveCount + 1) / 2
}

// Majority returns the generic majority for the current alive count.
func (l *Ledger) Majority() int {
	return CurrentMajority(l.players.AliveCount())
}

// DisplayName returns the name reports use for key.
func (l *Ledger) DisplayName(key string) string {
	if key == l.gameMaster && key != "" {
		return model.GMDisplayName
	}
	if r, ok := l.rights[key]; ok && r.Name != "" {
		return r.Name
	}
	return l.players.Name(key)
}

func (l *Ledger) isFrozen(key string) bool {
	if l.staff[key] {
		return false
	}
	return l.frozenAll || l.frozen[key]
}

func (l *Ledger) votesCastBy(voter string) int {
	n := 0
	for _, b := range l.ballots {
		if b.Voter == voter {
			n++
		}
	}
	return n
}

// VotesOn returns the number of active ballots on target.
func (l *Ledger) VotesOn(target string) int {
	n := 0
	for _, b := range l.ballots {
		if b.Target == target {
			n++
		}
	}
	return n
}

// IsValidVote reports whether voter may cast a ballot on target now.
func (l *Ledger) IsValidVote(ctx context.Context, voter, target string) bool {
	fields := []logger.Field{logger.String("author", voter), logger.String("target", target)}

	if l.phase == Closed {
		l.logger.Info(ctx, "vote after the day closed", fields...)
		return false
	}
	if l.isFrozen(voter) {
		l.logger.Info(ctx, "vote by frozen player", fields...)
		return false
	}
	if !l.staff[voter] {
		r, ok := l.rights[voter]
		if !ok {
			l.logger.Error(ctx, "voter missing from rights table", fields...)
			return false
		}
		if l.votesCastBy(voter) >= r.AllowedVotes {
			l.logger.Info(ctx, "voter has no votes left", fields...)
			return false
		}
	}

	r, ok := l.rights[target]
	if !ok {
		l.logger.Error(ctx, "target missing from rights table", fields...)
		return false
	}
	if !r.CanBeVoted {
		l.logger.Info(ctx, "target cannot be voted", fields...)
		return false
	}
	if target != model.NoLynch && !l.players.Exists(target) {
		l.logger.Info(ctx, "target is not alive", fields...)
		return false
	}
	return true
}

// IsValidUnvote reports whether voter may retract a ballot on target, or
// any ballot when target is model.NoTarget.
func (l *Ledger) IsValidUnvote(ctx context.Context, voter, target string) bool {
	fields := []logger.Field{logger.String("author", voter), logger.String("target", target)}

	if l.phase != Open {
		l.logger.Info(ctx, "unvote while unvotes are locked", append(fields, logger.String("phase", l.phase.String()))...)
		return false
	}
	if l.isFrozen(voter) {
		l.logger.Info(ctx, "unvote by frozen player", fields...)
		return false
	}
	if l.oldestBallot(voter, target) < 0 {
		l.logger.Info(ctx, "unvote without a matching ballot", fields...)
		return false
	}
	return true
}

func (l *Ledger) oldestBallot(voter, target string) int {
	for i, b := range l.ballots {
		if b.Voter != voter {
			continue
		}
		if target == model.NoTarget || b.Target == target {
			return i
		}
	}
	return -1
}

// CastVote records a vote. It returns false when the vote was rejected.
func (l *Ledger) CastVote(ctx context.Context, a action.Action) bool {
	if !l.IsValidVote(ctx, a.Author, a.Target) {
		metrics.RecordActionRejected("invalid_vote")
		return false
	}

	b := model.Ballot{
		Voter:      a.Author,
		VoterAlias: l.voterAlias(a.Author, a.Alias),
		Target:     a.Target,
		TargetName: l.DisplayName(a.Target),
		PostID:     a.PostID,
		PostTime:   a.PostTime,
		Cycle:      l.cycle,
	}
	key := b.ContentKey()

	verdict := l.guard.Observe(ctx, key)
	if verdict.Appends() {
		b.ID = uuid.NewString()
		l.historyAt[key] = append(l.historyAt[key], len(l.history))
		l.history = append(l.history, model.HistoryEntry{Ballot: b})
		metrics.RecordVoteCast()
	} else if h, ok := l.nextReplay(key); ok {
		b.ID = h.ID
		b.Cycle = h.Cycle
		metrics.RecordReplaySkipped("history")
	}

	l.ballots = append(l.ballots, b)
	l.logger.Debug(ctx, "vote cast", append(logger.Post(a.Author, a.PostID),
		logger.String("target", a.Target), logger.String("verdict", verdict.String()))...)
	return true
}

// nextReplay returns the history row a replayed observation stands for.
func (l *Ledger) nextReplay(key string) (model.HistoryEntry, bool) {
	idx := l.historyAt[key]
	if len(idx) == 0 {
		return model.HistoryEntry{}, false
	}
	n := l.replays[key]
	l.replays[key] = n + 1
	if n >= len(idx) {
		n = len(idx) - 1
	}
	return l.history[idx[n]], true
}

// voterAlias returns the name shown for a ballot. Staff voting under an
// assumed name show that name whenever it differs from their own.
func (l *Ledger) voterAlias(voter, alias string) string {
	if l.staff[voter] && alias != "" && alias != voter {
		return alias
	}
	return l.DisplayName(voter)
}

// RetractVote removes the voter's oldest matching ballot and marks its
// history row. It returns false when the unvote was rejected.
func (l *Ledger) RetractVote(ctx context.Context, a action.Action) bool {
	if !l.IsValidUnvote(ctx, a.Author, a.Target) {
		metrics.RecordActionRejected("invalid_unvote")
		return false
	}
	i := l.oldestBallot(a.Author, a.Target)
	b := l.ballots[i]
	l.ballots = slices.Delete(l.ballots, i, i+1)

	for j := range l.history {
		h := &l.history[j]
		if h.ID != b.ID || b.ID == "" {
			continue
		}
		if h.UnvotedAt == 0 {
			h.UnvotedAt = a.PostID
			metrics.RecordVoteRetracted()
		}
		break
	}
	l.logger.Debug(ctx, "vote retracted", append(logger.Post(a.Author, a.PostID), logger.String("target", b.Target))...)
	return true
}

// ModToLynch returns the majority offset for target.
func (l *Ledger) ModToLynch(ctx context.Context, target string) int {
	r, ok := l.rights[target]
	if !ok {
		l.logger.Error(ctx, "lynch modifier of unknown player", logger.String("target", target))
		return 0
	}
	return r.ModToLynch
}

// Threshold returns the votes target needs to be lynched.
func (l *Ledger) Threshold(ctx context.Context, target string) int {
	return l.Majority() + l.ModToLynch(ctx, target)
}

// IsLynched reports whether target has reached its lynch threshold. A
// target with no ballots is never lynched, whatever its modifier.
func (l *Ledger) IsLynched(ctx context.Context, target string) bool {
	votes := l.VotesOn(target)
	if votes == 0 {
		return false
	}
	return votes >= l.Threshold(ctx, target)
}

// Lock moves an open ledger to Locked.
func (l *Ledger) Lock(ctx context.Context) bool {
	if l.phase != Open {
		l.logger.Info(ctx, "ledger is not open", logger.String("phase", l.phase.String()))
		return false
	}
	l.phase = Locked
	l.logger.Info(ctx, "unvotes locked")
	return true
}

// Close ends the day. target is the lynched player, or "" when the day
// ends by deadline.
func (l *Ledger) Close(ctx context.Context, target string) {
	if l.phase == Closed {
		return
	}
	l.phase = Closed
	l.lynched = target
	l.logger.Info(ctx, "ledger closed", logger.String("target", target))
}

// Replace moves every ballot and history row of outgoing to incoming.
func (l *Ledger) Replace(ctx context.Context, outgoing, incoming string) {
	if _, ok := l.rights[incoming]; !ok {
		if r, ok := l.rights[outgoing]; ok {
			clone := *r
			clone.Key = incoming
			clone.Name = incoming
			l.putRights(clone)
			l.rightsGrown = true
		} else {
			l.logger.Error(ctx, "replaced player missing from rights table", logger.String("player", outgoing))
		}
	}
	name := l.DisplayName(incoming)

	rewrite := func(b *model.Ballot) {
		if b.Voter == outgoing {
			b.Voter = incoming
			b.VoterAlias = name
		}
		if b.Target == outgoing {
			b.Target = incoming
			b.TargetName = name
		}
	}
	for i := range l.ballots {
		rewrite(&l.ballots[i])
	}
	for i := range l.history {
		rewrite(&l.history[i].Ballot)
	}

	if l.frozen[outgoing] {
		delete(l.frozen, outgoing)
		l.frozen[incoming] = true
	}
	l.logger.Info(ctx, "ledger replaced player", logger.String("outgoing", outgoing), logger.String("incoming", incoming))
}

// RemovePlayer drops every active ballot cast by or on key. History keeps
// its rows.
func (l *Ledger) RemovePlayer(ctx context.Context, key string) int {
	before := len(l.ballots)
	l.ballots = slices.DeleteFunc(l.ballots, func(b model.Ballot) bool {
		return b.Voter == key || b.Target == key
	})
	removed := before - len(l.ballots)
	l.logger.Info(ctx, "ballots removed with player", logger.String("player", key), logger.Int("ballots", removed))
	return removed
}

// Freeze stops key, or every non-staff player for model.Everyone, from
// voting for the rest of the day.
func (l *Ledger) Freeze(ctx context.Context, key string) bool {
	if key == model.Everyone {
		l.frozenAll = true
		l.logger.Info(ctx, "all votes frozen")
		return true
	}
	if l.staff[key] {
		l.logger.Warn(ctx, "staff cannot be frozen", logger.String("player", key))
		return false
	}
	if _, ok := l.rights[key]; !ok && !l.players.Exists(key) {
		l.logger.Warn(ctx, "cannot freeze unknown player", logger.String("player", key))
		return false
	}
	l.frozen[key] = true
	l.logger.Info(ctx, "player frozen", logger.String("player", key))
	return true
}

// IsFrozen reports whether key may no longer vote today.
func (l *Ledger) IsFrozen(key string) bool { return l.isFrozen(key) }

// CurrentLeader returns the target with most active ballots, ties going to
// whoever reached that count first. Without ballots it falls back to
// model.NoLynch when eligible. ok is false when nobody can be chosen.
func (l *Ledger) CurrentLeader() (target string, ok bool) {
	counts := make(map[string]int)
	best := 0
	for _, b := range l.ballots {
		counts[b.Target]++
		if counts[b.Target] > best {
			best = counts[b.Target]
			target = b.Target
		}
	}
	if best > 0 {
		return target, true
	}
	if r, exists := l.rights[model.NoLynch]; exists && r.CanBeVoted {
		return model.NoLynch, true
	}
	return "", false
}

// IsMayor reports whether key holds the mayor flag.
func (l *Ledger) IsMayor(key string) bool {
	r, ok := l.rights[key]
	return ok && r.Mayor
}

// Ballots returns the active ballots in cast order.
func (l *Ledger) Ballots() []model.Ballot {
	return slices.Clone(l.ballots)
}

// VotesSince returns how many active ballots were cast after postID.
func (l *Ledger) VotesSince(postID int) int {
	n := 0
	for _, b := range l.ballots {
		if b.PostID > postID {
			n++
		}
	}
	return n
}

// History returns every history row of the game.
func (l *Ledger) History() []model.HistoryEntry {
	return slices.Clone(l.history)
}

// TallyAt rebuilds the ballots of the current day that were active at
// postID. Zero means now.
func (l *Ledger) TallyAt(postID int) []model.Ballot {
	if postID <= 0 {
		return l.Ballots()
	}
	var out []model.Ballot
	for _, h := range l.history {
		if h.PostID < l.dayStart {
			continue
		}
		if h.ActiveAt(postID) {
			out = append(out, h.Ballot)
		}
	}
	return out
}

// VotesBy returns every vote key cast during the game.
func (l *Ledger) VotesBy(key string) []model.HistoryEntry {
	var out []model.HistoryEntry
	for _, h := range l.history {
		if h.Voter == key {
			out = append(out, h)
		}
	}
	return out
}

// VotersOf returns every vote cast on key during the game.
func (l *Ledger) VotersOf(key string) []model.HistoryEntry {
	var out []model.HistoryEntry
	for _, h := range l.history {
		if h.Target == key {
			out = append(out, h)
		}
	}
	return out
}

// Rights returns the rights table in load order.
func (l *Ledger) Rights() []model.Rights {
	out := make([]model.Rights, 0, len(l.rightsOrder))
	for _, k := range l.rightsOrder {
		out = append(out, *l.rights[k])
	}
	return out
}

// RightsGrown reports whether a replacement added rows to the rights table.
func (l *Ledger) RightsGrown() bool { return l.rightsGrown }

func (l *Ledger) putRights(r model.Rights) {
	r.Key = model.Key(r.Key)
	if r.Key == "" {
		r.Key = model.Key(r.Name)
	}
	if r.Key == "" {
		return
	}
	if _, ok := l.rights[r.Key]; !ok {
		l.rightsOrder = append(l.rightsOrder, r.Key)
	}
	l.rights[r.Key] = &r
}
