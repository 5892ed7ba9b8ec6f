package roster_test

import (
	"context"
	"testing"

	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/internal/domain/roster"
	"github.com/okian/mafiabot/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func newRoster(opts ...roster.Option) *roster.Roster {
	base := []roster.Option{
		roster.WithLogger(logger.Nop()),
		roster.WithPlayers([]model.Player{
			{Name: "Alice", Alive: true, Attack: 1, Defense: 1, Role: "sheriff", Team: "town"},
			{Name: "Bob", Alive: true},
			{Name: "Carol", Alive: true, Attack: 2},
		}),
	}
	return roster.New(append(base, opts...)...)
}

func TestRosterMembership(t *testing.T) {
	ctx := context.Background()

	Convey("Given a roster of three living players", t, func() {
		r := newRoster()

		Convey("Then keys are canonical and display names kept", func() {
			So(r.Exists("alice"), ShouldBeTrue)
			So(r.Exists("Alice"), ShouldBeFalse)
			So(r.Name("alice"), ShouldEqual, "Alice")
			So(r.Name("zed"), ShouldEqual, "zed")
			So(r.Alive(), ShouldResemble, []string{"alice", "bob", "carol"})
			So(r.AliveCount(), ShouldEqual, 3)
		})

		Convey("When a player is removed", func() {
			So(r.Remove(ctx, "bob"), ShouldBeTrue)

			Convey("Then they are dead but still known", func() {
				So(r.Exists("bob"), ShouldBeFalse)
				So(r.Known("bob"), ShouldBeTrue)
				So(r.AliveCount(), ShouldEqual, 2)
			})

			Convey("And removing again is a no-op", func() {
				So(r.Remove(ctx, "bob"), ShouldBeFalse)
			})

			Convey("And reviving brings them back once", func() {
				So(r.Revive(ctx, "bob"), ShouldBeTrue)
				So(r.Exists("bob"), ShouldBeTrue)
				So(r.Revive(ctx, "bob"), ShouldBeFalse)
			})
		})

		Convey("Reviving a stranger does nothing", func() {
			So(r.Revive(ctx, "zed"), ShouldBeFalse)
			So(r.Known("zed"), ShouldBeFalse)
		})
	})
}

func TestRosterReplace(t *testing.T) {
	ctx := context.Background()

	Convey("Given a roster", t, func() {
		r := newRoster()

		Convey("When alice is replaced by dave", func() {
			So(r.Replace(ctx, "alice", "dave", 20), ShouldBeTrue)

			Convey("Then dave inherits alice's charges and labels", func() {
				So(r.Exists("alice"), ShouldBeFalse)
				So(r.Exists("dave"), ShouldBeTrue)
				So(r.Offense(ctx, "dave"), ShouldEqual, 1)
				So(r.Defense(ctx, "dave"), ShouldEqual, 1)
				So(r.Role(ctx, "dave"), ShouldEqual, "sheriff")
				So(r.Team(ctx, "dave"), ShouldEqual, "town")
				So(r.ReplacedBy("alice"), ShouldEqual, "dave")
				So(r.ResolveAt("alice", 15), ShouldEqual, "dave")
				So(r.ResolveAt("alice", 20), ShouldEqual, "alice")
				So(r.ResolveAt("bob", 15), ShouldEqual, "bob")
			})

			Convey("And a second replacement chains", func() {
				So(r.Replace(ctx, "dave", "erin", 30), ShouldBeTrue)
				So(r.ResolveAt("alice", 15), ShouldEqual, "erin")
				So(r.ResolveAt("alice", 25), ShouldEqual, "alice")
				So(r.ResolveAt("dave", 25), ShouldEqual, "erin")
			})
		})

		Convey("Replacing a dead player fails", func() {
			r.Remove(ctx, "bob")
			So(r.Replace(ctx, "bob", "dave", 20), ShouldBeFalse)
			So(r.Known("dave"), ShouldBeFalse)
		})

		Convey("Replacing with an existing player fails", func() {
			So(r.Replace(ctx, "alice", "bob", 20), ShouldBeFalse)
			So(r.Exists("alice"), ShouldBeTrue)
		})
	})
}

func TestRosterShoot(t *testing.T) {
	ctx := context.Background()

	Convey("Given a roster with armed players", t, func() {
		r := newRoster()

		Convey("When carol shoots bob, who has no defense", func() {
			valid, died := r.Shoot(ctx, "carol", "bob", 10, 1)

			Convey("Then bob dies and carol spends a charge", func() {
				So(valid, ShouldBeTrue)
				So(died, ShouldBeTrue)
				So(r.Exists("bob"), ShouldBeFalse)
				So(r.Offense(ctx, "carol"), ShouldEqual, 1)
				p, _ := r.Player("carol")
				So(p.LastShot, ShouldEqual, 10)
				So(r.Shots(), ShouldHaveLength, 1)
			})

			Convey("And the same shot seen again in the same cycle is a resubmission", func() {
				valid, died := r.Shoot(ctx, "carol", "bob", 10, 1)
				So(valid, ShouldBeTrue)
				So(died, ShouldBeTrue)
				So(r.Offense(ctx, "carol"), ShouldEqual, 1)
				So(r.Shots(), ShouldHaveLength, 1)
			})

			Convey("And the same shot seen by a later cycle is a replay", func() {
				valid, _ := r.Shoot(ctx, "carol", "bob", 10, 2)
				So(valid, ShouldBeFalse)
				So(r.Offense(ctx, "carol"), ShouldEqual, 1)
				So(r.Shots(), ShouldHaveLength, 1)
			})
		})

		Convey("When carol shoots alice, who has one defense charge", func() {
			valid, died := r.Shoot(ctx, "carol", "alice", 11, 1)

			Convey("Then alice survives with her defense spent", func() {
				So(valid, ShouldBeTrue)
				So(died, ShouldBeFalse)
				So(r.Exists("alice"), ShouldBeTrue)
				So(r.Defense(ctx, "alice"), ShouldEqual, 0)
			})
		})

		Convey("A player without charges cannot shoot", func() {
			valid, _ := r.Shoot(ctx, "bob", "alice", 12, 1)
			So(valid, ShouldBeFalse)
			So(r.Defense(ctx, "alice"), ShouldEqual, 1)
			So(r.Shots(), ShouldBeEmpty)
		})

		Convey("Shooting an unknown player is rejected", func() {
			valid, _ := r.Shoot(ctx, "carol", "zed", 13, 1)
			So(valid, ShouldBeFalse)
			So(r.Offense(ctx, "carol"), ShouldEqual, 2)
		})
	})

	Convey("Given a roster loaded with a shot from an earlier cycle", t, func() {
		r := newRoster(roster.WithShots([]model.ShotEntry{
			{Attacker: "carol", Victim: "bob", PostID: 10, Cycle: 4, VictimDied: true},
		}))

		Convey("Then rescanning that shot changes nothing", func() {
			valid, _ := r.Shoot(ctx, "carol", "bob", 10, 5)
			So(valid, ShouldBeFalse)
			So(r.Exists("bob"), ShouldBeTrue)
			So(r.Offense(ctx, "carol"), ShouldEqual, 2)
		})
	})
}

func TestRosterQueries(t *testing.T) {
	ctx := context.Background()

	Convey("Given missing data", t, func() {
		r := newRoster()

		Convey("Then queries fall back to safe defaults", func() {
			So(r.Role(ctx, "bob"), ShouldEqual, roster.UnknownLabel)
			So(r.Team(ctx, "zed"), ShouldEqual, roster.UnknownLabel)
			So(r.Offense(ctx, "zed"), ShouldEqual, 0)
			So(r.Defense(ctx, "zed"), ShouldEqual, 0)
		})
	})
}

func TestRosterStartDay(t *testing.T) {
	ctx := context.Background()

	Convey("Given a roster", t, func() {
		r := newRoster()

		Convey("When day 1 starts with a list missing bob and adding Frank", func() {
			So(r.StartDay(ctx, 1, []string{"Alice", "Carol", "Frank"}), ShouldBeTrue)

			Convey("Then the alive set follows the list", func() {
				So(r.Alive(), ShouldResemble, []string{"alice", "carol", "frank"})
				So(r.Name("frank"), ShouldEqual, "Frank")
				So(r.Day(), ShouldEqual, 1)
			})

			Convey("And applying day 1 again does not undo deaths", func() {
				r.Remove(ctx, "carol")
				So(r.StartDay(ctx, 1, []string{"Alice", "Carol", "Frank"}), ShouldBeFalse)
				So(r.Exists("carol"), ShouldBeFalse)
			})
		})
	})
}
