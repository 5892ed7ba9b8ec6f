// Package roster owns the players of a game: who is alive, their combat
// charges and their role metadata.
package roster

import (
	"context"
	"slices"

	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/pkg/logger"
	"github.com/okian/mafiabot/pkg/metrics"
)

// UnknownLabel is returned by Role and Team when no data is recorded.
const UnknownLabel = "unknown"

// Roster is the set of players. It is not safe for concurrent use; the
// resolution loop is its only writer.
type Roster struct {
	logger  logger.Logger
	players map[string]*model.Player
	order   []string
	day     int

	shots     []model.ShotEntry
	shotIndex map[string]int // shot key -> index in shots
}

// New creates a roster from the given options.
func New(opts ...Option) *Roster {
	r := &Roster{
		players:   make(map[string]*model.Player),
		shotIndex: make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.OrGet(r.logger)
	return r
}

func (r *Roster) add(p model.Player) {
	p.Key = model.Key(p.Key)
	if p.Key == "" {
		p.Key = model.Key(p.Name)
	}
	if p.Key == "" {
		return
	}
	if p.Name == "" {
		p.Name = p.Key
	}
	if _, ok := r.players[p.Key]; !ok {
		r.order = append(r.order, p.Key)
	}
	r.players[p.Key] = &p
}

func (r *Roster) addShot(s model.ShotEntry) {
	key := model.ShotKey(s.Attacker, s.PostID)
	if _, ok := r.shotIndex[key]; ok {
		return
	}
	r.shotIndex[key] = len(r.shots)
	r.shots = append(r.shots, s)
}

// Exists reports whether key is a living player.
func (r *Roster) Exists(key string) bool {
	p, ok := r.players[key]
	return ok && p.Alive
}

// Known reports whether key was ever a player, dead or alive.
func (r *Roster) Known(key string) bool {
	_, ok := r.players[key]
	return ok
}

// ResolveAt follows replacements made after postID and returns the key
// that now plays the slot key held at postID. Rescans use it so actions
// posted before a replacement land on the incoming player.
func (r *Roster) ResolveAt(key string, postID int) string {
	seen := make(map[string]bool)
	for {
		p, ok := r.players[key]
		if !ok || p.ReplacedBy == "" || postID >= p.ReplacedAt || seen[key] {
			return key
		}
		seen[key] = true
		key = p.ReplacedBy
	}
}

// ReplacedBy returns the player that replaced key, or "".
func (r *Roster) ReplacedBy(key string) string {
	if p, ok := r.players[key]; ok {
		return p.ReplacedBy
	}
	return ""
}

// Name returns the display name of key, or key itself when unknown.
func (r *Roster) Name(key string) string {
	if p, ok := r.players[key]; ok {
		return p.Name
	}
	return key
}

// Player returns a copy of the record for key.
func (r *Roster) Player(key string) (model.Player, bool) {
	p, ok := r.players[key]
	if !ok {
		return model.Player{}, false
	}
	return *p, true
}

// Alive returns the keys of living players in roster order.
func (r *Roster) Alive() []string {
	out := make([]string, 0, len(r.order))
	for _, k := range r.order {
		if r.players[k].Alive {
			out = append(out, k)
		}
	}
	return out
}

// AliveCount returns the number of living players.
func (r *Roster) AliveCount() int {
	n := 0
	for _, p := range r.players {
		if p.Alive {
			n++
		}
	}
	return n
}

// Players returns copies of every record, dead ones included.
func (r *Roster) Players() []model.Player {
	out := make([]model.Player, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, *r.players[k])
	}
	return out
}

// Shots returns the recorded shots in the order they were resolved.
func (r *Roster) Shots() []model.ShotEntry {
	return slices.Clone(r.shots)
}

// Day returns the last day StartDay applied.
func (r *Roster) Day() int { return r.day }

// StartDay aligns the alive set with the list the game master published for
// day. Listed players are alive, everyone else is dead. It only applies once
// per day so a rescan does not undo deaths resolved during the day.
func (r *Roster) StartDay(ctx context.Context, day int, names []string) bool {
	if day <= r.day && r.day != 0 {
		return false
	}
	listed := make(map[string]bool, len(names))
	for _, name := range names {
		key := model.Key(name)
		if key == "" {
			continue
		}
		listed[key] = true
		if p, ok := r.players[key]; ok {
			if p.Name == p.Key {
				p.Name = name
			}
			continue
		}
		r.add(model.Player{Key: key, Name: name})
	}
	for _, k := range r.order {
		p := r.players[k]
		p.Alive = listed[k]
	}
	r.day = day
	r.logger.Info(ctx, "day started", logger.Int("day", day), logger.Int("alive", len(listed)))
	return true
}

// Remove marks key dead.
func (r *Roster) Remove(ctx context.Context, key string) bool {
	p, ok := r.players[key]
	if !ok || !p.Alive {
		r.logger.Warn(ctx, "cannot remove player who is not alive", logger.String("player", key))
		return false
	}
	p.Alive = false
	r.logger.Info(ctx, "player removed", logger.String("player", key))
	return true
}

// Replace removes outgoing and admits incoming with a copy of outgoing's
// combat data and role. postID is the post that ordered the replacement.
func (r *Roster) Replace(ctx context.Context, outgoing, incoming string, postID int) bool {
	out, ok := r.players[outgoing]
	if !ok || !out.Alive {
		r.logger.Warn(ctx, "replacement of a player who is not alive",
			logger.String("outgoing", outgoing), logger.String("incoming", incoming))
		return false
	}
	if r.Known(incoming) {
		r.logger.Warn(ctx, "replacement by a player already in the game",
			logger.String("outgoing", outgoing), logger.String("incoming", incoming))
		return false
	}

	r.add(model.Player{
		Key:      incoming,
		Name:     incoming,
		Alive:    true,
		Attack:   out.Attack,
		Defense:  out.Defense,
		LastShot: out.LastShot,
		Role:     out.Role,
		Team:     out.Team,
	})
	out.Alive = false
	out.ReplacedBy = incoming
	out.ReplacedAt = postID
	r.logger.Info(ctx, "player replaced", logger.String("outgoing", outgoing), logger.String("incoming", incoming))
	return true
}

// Revive brings a dead player back.
func (r *Roster) Revive(ctx context.Context, key string) bool {
	p, ok := r.players[key]
	if !ok {
		r.logger.Warn(ctx, "cannot revive unknown player", logger.String("player", key))
		return false
	}
	if p.Alive {
		r.logger.Warn(ctx, "player is already alive", logger.String("player", key))
		return false
	}
	p.Alive = true
	p.ReplacedBy = ""
	p.ReplacedAt = 0
	r.logger.Info(ctx, "player revived", logger.String("player", key))
	return true
}

// Shoot resolves a shot fired by attacker at victim from postID during
// cycle. It returns whether the shot is valid and whether the victim died.
//
// A shot already recorded by the same cycle is a resubmission: it is valid
// and reports the recorded outcome without touching any state. A shot
// recorded by another cycle is a replay and is invalid.
func (r *Roster) Shoot(ctx context.Context, attacker, victim string, postID, cycle int) (valid, victimDied bool) {
	fields := append(logger.Post(attacker, postID), logger.String("target", victim))

	key := model.ShotKey(attacker, postID)
	if i, ok := r.shotIndex[key]; ok {
		rec := r.shots[i]
		if rec.Cycle == cycle {
			return true, rec.VictimDied
		}
		r.logger.Debug(ctx, "shot already recorded by an earlier cycle", fields...)
		metrics.RecordReplaySkipped("shots")
		return false, false
	}

	att, ok := r.players[attacker]
	if !ok || !att.Alive {
		r.logger.Warn(ctx, "shot by a player who is not alive", fields...)
		return false, false
	}
	vic, ok := r.players[victim]
	if !ok || !vic.Alive {
		r.logger.Warn(ctx, "shot at a player who is not alive", fields...)
		return false, false
	}
	if att.Attack <= 0 {
		r.logger.Warn(ctx, "shot without attack charges", fields...)
		return false, false
	}

	att.Attack--
	att.LastShot = postID
	if vic.Defense > 0 {
		vic.Defense--
	} else {
		victimDied = true
		vic.Alive = false
	}

	r.addShot(model.ShotEntry{
		Attacker:   attacker,
		Victim:     victim,
		PostID:     postID,
		Cycle:      cycle,
		VictimDied: victimDied,
	})
	r.logger.Info(ctx, "shot resolved", append(fields, logger.Bool("victim_died", victimDied))...)
	return true, victimDied
}

// Role returns the role label of key.
func (r *Roster) Role(ctx context.Context, key string) string {
	p, ok := r.players[key]
	if !ok || p.Role == "" {
		r.logger.Warn(ctx, "no role recorded", logger.String("player", key))
		return UnknownLabel
	}
	return p.Role
}

// Team returns the team label of key.
func (r *Roster) Team(ctx context.Context, key string) string {
	p, ok := r.players[key]
	if !ok || p.Team == "" {
		r.logger.Warn(ctx, "no team recorded", logger.String("player", key))
		return UnknownLabel
	}
	return p.Team
}

// Offense returns the attack charges of key.
func (r *Roster) Offense(ctx context.Context, key string) int {
	p, ok := r.players[key]
	if !ok {
		r.logger.Error(ctx, "offense of unknown player", logger.String("player", key))
		return 0
	}
	return p.Attack
}

// Defense returns the defense charges of key.
func (r *Roster) Defense(ctx context.Context, key string) int {
	p, ok := r.players[key]
	if !ok {
		r.logger.Error(ctx, "defense of unknown player", logger.String("player", key))
		return 0
	}
	return p.Defense
}
