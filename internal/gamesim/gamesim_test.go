package gamesim_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/mafiabot/internal/adapters/gamefile"
	"github.com/okian/mafiabot/internal/adapters/thread"
	service "github.com/okian/mafiabot/internal/app"
	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/internal/gamesim"
	"github.com/okian/mafiabot/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const start = 1711800000

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func simConfig(dir string) *gamesim.Config {
	return &gamesim.Config{
		Players:      5,
		Posts:        20,
		GameMaster:   "gm",
		Seed:         42,
		ThreadFile:   filepath.Join(dir, "thread.yaml"),
		RightsFile:   filepath.Join(dir, "game.yaml"),
		Timeout:      time.Second,
		Wait:         2 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	Convey("Given a seeded configuration", t, func() {
		cfg := simConfig(t.TempDir())

		Convey("When a day is generated", func() {
			game, err := gamesim.Generate(ctx, cfg, start)
			So(err, ShouldBeNil)

			Convey("Then the thread opens day one with every player", func() {
				So(game.Thread.Posts, ShouldHaveLength, cfg.Posts+2)
				dayStart := game.Thread.Posts[1]
				So(dayStart.Author, ShouldEqual, "gm")
				So(dayStart.Headers, ShouldResemble, []string{"Día 1"})
				So(dayStart.Players, ShouldHaveLength, 5)
			})

			Convey("Then nobody votes for themselves", func() {
				for _, p := range game.Thread.Posts[2:] {
					So(p.Commands, ShouldHaveLength, 1)
					So(p.Commands[0], ShouldNotEqual, "voto "+p.Author)
				}
			})

			Convey("Then the expectation matches the roster", func() {
				So(game.Expect.Day, ShouldEqual, 1)
				So(game.Expect.AliveCount, ShouldEqual, 5)
				So(game.Expect.Majority, ShouldEqual, 3)
				So(game.Expect.Votes+game.Expect.Unvotes, ShouldEqual, cfg.Posts)
				So(game.Setup.Rights, ShouldHaveLength, 6)
				So(game.Setup.Rights[0].Key, ShouldEqual, model.NoLynch)
			})

			Convey("Then the same seed yields the same game", func() {
				again, err := gamesim.Generate(ctx, cfg, start)
				So(err, ShouldBeNil)
				So(again.Thread, ShouldResemble, game.Thread)
			})
		})

		Convey("When too few players are requested", func() {
			cfg.Players = 2
			_, err := gamesim.Generate(ctx, cfg, start)
			So(err, ShouldWrap, gamesim.ErrInvalidConfig)
		})
	})
}

func TestWriteFiles(t *testing.T) {
	ctx := context.Background()

	Convey("Given a generated game written to disk", t, func() {
		cfg := simConfig(t.TempDir())
		game, err := gamesim.Generate(ctx, cfg, start)
		So(err, ShouldBeNil)
		So(gamesim.WriteFiles(ctx, cfg, &game), ShouldBeNil)

		Convey("Then the moderator's readers accept both files", func() {
			setup, err := gamefile.Load(cfg.RightsFile)
			So(err, ShouldBeNil)
			So(setup.Rights, ShouldHaveLength, 6)

			th, err := thread.Open(cfg.ThreadFile, thread.WithGameMaster("gm"), thread.WithLogger(logger.Nop()))
			So(err, ShouldBeNil)
			pages, err := th.PageCount(ctx)
			So(err, ShouldBeNil)
			So(pages, ShouldEqual, 1)
		})
	})
}

func TestVerify(t *testing.T) {
	exp := gamesim.Expectation{Day: 1, AliveCount: 5, Majority: 3, Votes: 4}

	Convey("Given a matching tally", t, func() {
		view := service.TallyView{Stage: "day", Day: 1, AliveCount: 5, Majority: 3,
			Ballots: []model.Ballot{{Voter: "jugador01", Target: "jugador02"}}}
		So(gamesim.Verify(&view, exp), ShouldBeNil)

		Convey("Then a wrong majority is reported", func() {
			view.Majority = 4
			So(gamesim.Verify(&view, exp), ShouldWrap, gamesim.ErrMismatch)
		})

		Convey("Then a self vote is reported", func() {
			view.Ballots[0].Target = "jugador01"
			So(gamesim.Verify(&view, exp), ShouldWrap, gamesim.ErrMismatch)
		})

		Convey("Then a night stage is reported", func() {
			view.Stage = "night"
			So(gamesim.Verify(&view, exp), ShouldWrap, gamesim.ErrMismatch)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a moderator that reports day one after a few polls", t, func() {
		var polls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz":
				w.WriteHeader(http.StatusOK)
			case "/tally":
				if polls.Add(1) < 3 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				_ = json.NewEncoder(w).Encode(service.TallyView{Stage: "day", Day: 1, AliveCount: 5, Majority: 3})
			default:
				http.NotFound(w, r)
			}
		}))
		Reset(srv.Close)

		cfg := simConfig(t.TempDir())
		cfg.BaseURL = srv.URL

		Convey("Then the run succeeds", func() {
			So(gamesim.Run(context.Background(), cfg), ShouldBeNil)
			So(polls.Load(), ShouldBeGreaterThanOrEqualTo, 3)
		})
	})

	Convey("Given a moderator that never starts", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		Reset(srv.Close)

		cfg := simConfig(t.TempDir())
		cfg.BaseURL = srv.URL
		cfg.Wait = 100 * time.Millisecond

		Convey("Then the run times out", func() {
			So(gamesim.Run(context.Background(), cfg), ShouldWrap, gamesim.ErrNoTally)
		})
	})

	Convey("Given an unhealthy moderator", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		Reset(srv.Close)

		cfg := simConfig(t.TempDir())
		cfg.BaseURL = srv.URL
		So(gamesim.Run(context.Background(), cfg), ShouldWrap, gamesim.ErrUnhealthy)
	})
}
