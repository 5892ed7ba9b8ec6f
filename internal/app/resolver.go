package service

import (
	"context"

	"github.com/okian/mafiabot/internal/domain/action"
	"github.com/okian/mafiabot/internal/domain/ledger"
	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/internal/domain/roster"
	"github.com/okian/mafiabot/internal/domain/stage"
	"github.com/okian/mafiabot/pkg/logger"
	"github.com/okian/mafiabot/pkg/metrics"
)

// GameState is what one cycle resolves actions against.
type GameState struct {
	Roster *roster.Roster
	Ledger *ledger.Ledger
	Window stage.Window
}

// Input is one cycle's worth of actions.
type Input struct {
	// Actions in ascending post order.
	Actions []action.Action
	// Watermark is the post of the last pushed tally. Count requests at or
	// before it were answered by that tally.
	Watermark int
	// ReportMark is the highest post whose reports an earlier cycle already
	// handed to the poster.
	ReportMark int
	// Now is the current time, for the end-of-day check.
	Now int64
}

// Outcome summarizes a resolved cycle.
type Outcome struct {
	// Events in the order they were produced.
	Events []model.Event
	// Lynched is set when a vote reached majority.
	Lynched string
	// DayEnded is set when the deadline closed the day without a lynch.
	DayEnded bool
	// CountRequested is set when staff asked for a current tally after the
	// watermark.
	CountRequested bool
	// GameOver is set when staff declared a winner.
	GameOver bool
	// Applied counts actions that changed or queried state.
	Applied int
	// LastPost is the highest post id seen.
	LastPost int
}

// Final reports whether the day is decided.
func (o *Outcome) Final() bool { return o.Lynched != "" || o.DayEnded }

// Resolver applies actions to the ledger and roster.
type Resolver struct {
	logger logger.Logger
}

// NewResolver creates a resolver.
func NewResolver(l logger.Logger) *Resolver {
	return &Resolver{logger: logger.OrGet(l).Named("resolver")}
}

// Resolve applies actions in order. The first lynch stops the scan.
func (r *Resolver) Resolve(ctx context.Context, gs *GameState, in Input) Outcome {
	var out Outcome
	led := gs.Ledger

	for _, a := range in.Actions {
		if a.PostID > out.LastPost {
			out.LastPost = a.PostID
		}
		staff := led.IsStaff(a.Author)

		if !staff && gs.Window.IsPastDeadline(a.PostTime) {
			r.logger.Debug(ctx, "action after the deadline", logger.Post(a.Author, a.PostID)...)
			metrics.RecordActionRejected("late")
			continue
		}

		a.Author = gs.Roster.ResolveAt(a.Author, a.PostID)
		if !staff && !gs.Roster.Exists(a.Author) {
			r.logger.Debug(ctx, "action by a player who is not alive", logger.Post(a.Author, a.PostID)...)
			metrics.RecordActionRejected("not_playing")
			continue
		}
		if a.Kind.StaffOnly() && !staff {
			r.logger.Warn(ctx, "staff command from a player",
				append(logger.Post(a.Author, a.PostID), logger.String("kind", a.Kind.String()))...)
			metrics.RecordActionRejected("not_staff")
			continue
		}

		if r.apply(ctx, gs, a, &in, &out) {
			out.Applied++
		}
		if out.Lynched != "" || out.GameOver {
			break
		}
	}

	if out.Lynched == "" && !out.GameOver && gs.Window.IsPastDeadline(in.Now) {
		r.endDay(ctx, gs, &out)
	}
	return out
}

// apply dispatches one action. It returns false when the action was
// rejected.
func (r *Resolver) apply(ctx context.Context, gs *GameState, a action.Action, in *Input, out *Outcome) bool { //nolint:gocritic // hugeParam: one action per call
	led, ros := gs.Ledger, gs.Roster
	fresh := a.PostID > in.ReportMark

	switch a.Kind {
	case action.Vote:
		a.Target = r.target(ros, a)
		if !led.CastVote(ctx, a) {
			return false
		}
		if led.IsLynched(ctx, a.Target) {
			led.Close(ctx, a.Target)
			out.Lynched = a.Target
			out.Events = append(out.Events, r.lynchEvent(ctx, gs, a))
			metrics.RecordLynch()
			r.logger.Info(ctx, "lynch", append(logger.Post(a.Author, a.PostID), logger.String("target", a.Target))...)
		}
		return true

	case action.Unvote:
		a.Target = r.target(ros, a)
		return led.RetractVote(ctx, a)

	case action.ReplacePlayer:
		ros.Replace(ctx, a.Outgoing, a.Target, a.PostID)
		if ros.Exists(a.Target) && !ros.Exists(a.Outgoing) && ros.ReplacedBy(a.Outgoing) == a.Target {
			led.Replace(ctx, a.Outgoing, a.Target)
			return true
		}
		return false

	case action.RequestCount:
		if a.TargetPost > 0 {
			if !fresh {
				return true
			}
			out.Events = append(out.Events, model.Event{
				Kind:       model.EventTally,
				Cycle:      led.Cycle(),
				PostID:     a.PostID,
				Actor:      a.Author,
				ActorName:  led.DisplayName(a.Author),
				Ballots:    led.TallyAt(a.TargetPost),
				AliveCount: ros.AliveCount(),
				Majority:   led.Majority(),
				UpToPost:   a.TargetPost,
			})
			return true
		}
		if a.PostID > in.Watermark {
			out.CountRequested = true
		}
		return true

	case action.VoteHistoryQuery, action.VotersQuery:
		target := r.target(ros, a)
		if !fresh {
			return true
		}
		e := model.Event{
			Kind:        model.EventVoteHistory,
			Cycle:       led.Cycle(),
			PostID:      a.PostID,
			Subject:     target,
			SubjectName: led.DisplayName(target),
			Actor:       a.Author,
			ActorName:   led.DisplayName(a.Author),
			History:     led.VotesBy(target),
		}
		if a.Kind == action.VotersQuery {
			e.Kind = model.EventVoters
			e.History = led.VotersOf(target)
		}
		out.Events = append(out.Events, e)
		return true

	case action.Freeze:
		return led.Freeze(ctx, a.Target)

	case action.LockUnvotes:
		return led.Lock(ctx)

	case action.Modkill, action.Kill:
		target := r.target(ros, a)
		removed := ros.Remove(ctx, target)
		led.RemovePlayer(ctx, target)
		if removed {
			r.logger.Info(ctx, "player killed by staff",
				append(logger.Post(a.Author, a.PostID), logger.String("target", target), logger.String("kind", a.Kind.String()))...)
		}
		return removed

	case action.Revive:
		return ros.Revive(ctx, a.Target)

	case action.Shoot:
		target := r.target(ros, a)
		valid, died := ros.Shoot(ctx, a.Author, target, a.PostID, led.Cycle())
		if !valid {
			metrics.RecordShot("rejected")
			return false
		}
		if died {
			led.RemovePlayer(ctx, target)
		}
		if fresh {
			outcome := "survived"
			if died {
				outcome = "killed"
			}
			metrics.RecordShot(outcome)
			out.Events = append(out.Events, model.Event{
				Kind:        model.EventShooting,
				Cycle:       led.Cycle(),
				PostID:      a.PostID,
				Subject:     target,
				SubjectName: led.DisplayName(target),
				Actor:       a.Author,
				ActorName:   led.DisplayName(a.Author),
				VictimDied:  died,
				AliveCount:  ros.AliveCount(),
				Majority:    led.Majority(),
			})
		}
		return true

	case action.RevealMayor:
		if !led.IsMayor(a.Author) {
			r.logger.Warn(ctx, "reveal by a player who is not mayor", logger.Post(a.Author, a.PostID)...)
			return false
		}
		if fresh {
			out.Events = append(out.Events, model.Event{
				Kind:      model.EventMayorReveal,
				Cycle:     led.Cycle(),
				PostID:    a.PostID,
				Actor:     a.Author,
				ActorName: led.DisplayName(a.Author),
			})
		}
		return true

	case action.Winner:
		out.GameOver = true
		out.Events = append(out.Events, model.Event{
			Kind:      model.EventGameOver,
			Cycle:     led.Cycle(),
			PostID:    a.PostID,
			Subject:   a.Target,
			Actor:     a.Author,
			ActorName: led.DisplayName(a.Author),
		})
		return true

	case action.Unknown:
	}
	return false
}

// target resolves the action's target to whoever holds that slot now.
func (r *Resolver) target(ros *roster.Roster, a action.Action) string {
	switch a.Target {
	case model.NoLynch, model.NoTarget, model.Everyone, "":
		return a.Target
	}
	return ros.ResolveAt(a.Target, a.PostID)
}

func (r *Resolver) lynchEvent(ctx context.Context, gs *GameState, a action.Action) model.Event {
	led := gs.Ledger
	return model.Event{
		Kind:        model.EventLynch,
		Cycle:       led.Cycle(),
		PostID:      a.PostID,
		Subject:     a.Target,
		SubjectName: led.DisplayName(a.Target),
		Actor:       a.Author,
		ActorName:   led.DisplayName(a.Author),
		Ballots:     led.Ballots(),
		AliveCount:  gs.Roster.AliveCount(),
		Majority:    led.Threshold(ctx, a.Target),
	}
}

// endDay closes a day whose deadline passed without a lynch.
func (r *Resolver) endDay(ctx context.Context, gs *GameState, out *Outcome) {
	led := gs.Ledger
	leader, ok := led.CurrentLeader()
	led.Close(ctx, "")
	out.DayEnded = true

	e := model.Event{
		Kind:        model.EventEndOfDay,
		Cycle:       led.Cycle(),
		PostID:      out.LastPost,
		Ballots:     led.Ballots(),
		AliveCount:  gs.Roster.AliveCount(),
		Majority:    led.Majority(),
		NoCandidate: !ok,
	}
	if ok {
		e.Subject = leader
		e.SubjectName = led.DisplayName(leader)
	}
	out.Events = append(out.Events, e)
	r.logger.Info(ctx, "day ended by deadline", logger.String("leader", leader), logger.Bool("candidate", ok))
}
