package service_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/okian/mafiabot/internal/adapters/thread"
	service "github.com/okian/mafiabot/internal/app"
	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/internal/domain/stage"
	"github.com/okian/mafiabot/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// 2024-03-30 12:00 UTC; the day ends 2024-04-01 21:10 Madrid time.
const (
	dayStartTime = 1711800000
	dayDeadline  = 1711998600
)

type fakeReader struct {
	mu      sync.Mutex
	stage   stage.Stage
	players []string
	mark    model.TallyMark
	posts   []model.Post
}

func (f *fakeReader) CurrentStage(_ context.Context) (stage.Stage, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage, slices.Clone(f.players), nil
}

func (f *fakeReader) LastTally(_ context.Context) (model.TallyMark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mark, nil
}

func (f *fakeReader) PageCount(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.posts) == 0 {
		return 0, nil
	}
	return thread.PageOf(f.posts[len(f.posts)-1].ID), nil
}

func (f *fakeReader) Page(_ context.Context, page int) ([]model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Post
	for _, p := range f.posts {
		if thread.PageOf(p.ID) == page {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeReader) add(author string, commands ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := 1
	if n := len(f.posts); n > 0 {
		id = f.posts[n-1].ID + 1
	}
	f.posts = append(f.posts, model.Post{ID: id, Time: dayStartTime + int64(id), Author: author, Commands: commands})
}

type fakeStore struct {
	mu      sync.Mutex
	flushes int
	last    model.Flush
	saved   bool
}

func (f *fakeStore) LoadHistory(_ context.Context) ([]model.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.last.History), nil
}

func (f *fakeStore) LoadShots(_ context.Context) ([]model.ShotEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.last.Shots), nil
}

func (f *fakeStore) LoadRoster(_ context.Context) ([]model.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.last.Players), nil
}

func (f *fakeStore) LoadCheckpoint(_ context.Context) (model.Checkpoint, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last.Checkpoint, f.saved, nil
}

func (f *fakeStore) Flush(_ context.Context, fl model.Flush) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	f.last = fl
	f.saved = true
	return nil
}

type fakeRights struct {
	mu    sync.Mutex
	rows  []model.Rights
	saves int
}

func (f *fakeRights) LoadRights(_ context.Context) ([]model.Rights, []model.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.rows), nil, nil
}

func (f *fakeRights) SaveRights(_ context.Context, rows []model.Rights) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = slices.Clone(rows)
	f.saves++
	return nil
}

type recordingPoster struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPoster) Post(_ context.Context, e model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPoster) kinds() []model.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

func dayOne() *fakeReader {
	r := &fakeReader{
		stage:   stage.Stage{Kind: stage.Day, Number: 1, StartPost: 2, StartTime: dayStartTime},
		players: []string{"Alice", "Bob", "Carol", "Dave"},
	}
	r.add("gm")
	r.add("gm")
	return r
}

func newService(reader *fakeReader, store *fakeStore, rights *fakeRights, poster *recordingPoster, now int64) *service.Service {
	return service.New(
		service.WithLogger(logger.Nop()),
		service.WithThreadReader(reader),
		service.WithStore(store),
		service.WithRightsStore(rights),
		service.WithPoster(poster),
		service.WithGameMaster("GM"),
		service.WithUpdateThresholds(30, 2),
		service.WithClock(func() time.Time { return time.Unix(now, 0) }),
	)
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service without a thread reader", t, func() {
		s := service.New(service.WithLogger(logger.Nop()))

		Convey("Then Start fails", func() {
			So(errors.Is(s.Start(ctx), service.ErrMissingDependency), ShouldBeTrue)
		})

		Convey("And cycles cannot run", func() {
			So(s.RunCycle(ctx), ShouldEqual, service.ErrNotStarted)
			_, err := s.Tally(ctx)
			So(err, ShouldEqual, service.ErrNotStarted)
		})
	})

	Convey("Given a started service", t, func() {
		s := newService(dayOne(), &fakeStore{}, &fakeRights{rows: gameRights()}, &recordingPoster{}, dayStartTime+3600)
		So(s.Start(ctx), ShouldBeNil)
		defer s.Stop()

		Convey("Then stats report the configuration", func() {
			stats := s.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["nextCycle"], ShouldEqual, 0)
			So(stats["interval"], ShouldEqual, "10s")
			So(stats["votesUntilUpdate"], ShouldEqual, 2)
		})

		Convey("Then starting again is a no-op", func() {
			So(s.Start(ctx), ShouldBeNil)
		})
	})
}

func TestServiceDayCycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given day 1 with two votes", t, func() {
		reader := dayOne()
		reader.add("alice", "voto bob")
		reader.add("bob", "voto alice")
		store := &fakeStore{}
		rights := &fakeRights{rows: gameRights()}
		poster := &recordingPoster{}

		s := newService(reader, store, rights, poster, dayStartTime+3600)
		So(s.Start(ctx), ShouldBeNil)

		Convey("When a cycle runs", func() {
			So(s.RunCycle(ctx), ShouldBeNil)

			Convey("Then the votes are persisted under cycle 0", func() {
				So(store.last.History, ShouldHaveLength, 2)
				So(store.last.History[0].Cycle, ShouldEqual, 0)
				So(store.last.Checkpoint, ShouldResemble, model.Checkpoint{
					Cycle: 0, Day: 1, DayStartPost: 2, LastTally: model.TallyMark{PostID: 4}, LastReport: 4,
				})
				So(store.last.Players, ShouldHaveLength, 4)
			})

			Convey("And the tally view reflects the day", func() {
				v, err := s.Tally(ctx)
				So(err, ShouldBeNil)
				So(v.Day, ShouldEqual, 1)
				So(v.AliveCount, ShouldEqual, 4)
				So(v.Majority, ShouldEqual, 3)
				So(v.Ballots, ShouldHaveLength, 2)
				So(v.Deadline, ShouldEqual, dayDeadline)
			})

			Convey("And a tally is pushed once the vote threshold is met", func() {
				s.Stop()
				So(poster.kinds(), ShouldResemble, []model.EventKind{model.EventTally})
			})

			Convey("And running again without new posts changes nothing", func() {
				So(s.RunCycle(ctx), ShouldBeNil)
				s.Stop()
				So(store.last.History, ShouldHaveLength, 2)
				So(store.last.Checkpoint.Cycle, ShouldEqual, 1)
				So(poster.kinds(), ShouldHaveLength, 1)
			})

			Convey("And a restarted service replays without duplicating", func() {
				s.Stop()
				again := newService(reader, store, rights, poster, dayStartTime+7200)
				So(again.Start(ctx), ShouldBeNil)
				So(again.GetStats()["nextCycle"], ShouldEqual, 1)

				So(again.RunCycle(ctx), ShouldBeNil)
				again.Stop()
				So(store.last.History, ShouldHaveLength, 2)
				So(store.last.History[1].Cycle, ShouldEqual, 0)
				So(poster.kinds(), ShouldHaveLength, 1)
			})
		})
		Reset(s.Stop)
	})
}

func TestServiceLynch(t *testing.T) {
	ctx := context.Background()

	Convey("Given three votes on bob among four players", t, func() {
		reader := dayOne()
		reader.add("alice", "voto bob")
		reader.add("carol", "voto bob")
		reader.add("dave", "voto bob")
		reader.add("bob", "voto alice")
		store := &fakeStore{}
		poster := &recordingPoster{}

		s := newService(reader, store, &fakeRights{rows: gameRights()}, poster, dayStartTime+3600)
		So(s.Start(ctx), ShouldBeNil)

		Convey("When a cycle runs", func() {
			So(s.RunCycle(ctx), ShouldBeNil)

			Convey("Then bob is lynched and the tally is final", func() {
				So(store.last.Checkpoint.LastTally.Final, ShouldBeTrue)
				v, err := s.Tally(ctx)
				So(err, ShouldBeNil)
				So(v.Final, ShouldBeTrue)
				So(v.Phase, ShouldEqual, "closed")
				s.Stop()
				So(poster.kinds(), ShouldResemble, []model.EventKind{model.EventLynch})
			})

			Convey("And later cycles skip the decided day", func() {
				reader.add("alice", "desvoto")
				So(s.RunCycle(ctx), ShouldBeNil)
				s.Stop()
				So(store.flushes, ShouldEqual, 1)
				So(poster.kinds(), ShouldHaveLength, 1)
			})
		})
		Reset(s.Stop)
	})
}

func TestServiceDeadline(t *testing.T) {
	ctx := context.Background()

	Convey("Given a day past its deadline", t, func() {
		reader := dayOne()
		reader.add("alice", "voto bob")
		poster := &recordingPoster{}

		s := newService(reader, &fakeStore{}, &fakeRights{rows: gameRights()}, poster, dayDeadline)
		So(s.Start(ctx), ShouldBeNil)

		Convey("When a cycle runs", func() {
			So(s.RunCycle(ctx), ShouldBeNil)
			s.Stop()

			Convey("Then the day ends on the current leader", func() {
				So(poster.kinds(), ShouldResemble, []model.EventKind{model.EventEndOfDay})
				So(poster.events[0].Subject, ShouldEqual, "bob")
			})
		})
		Reset(s.Stop)
	})
}

func TestServiceStages(t *testing.T) {
	ctx := context.Background()

	Convey("Given a thread at night", t, func() {
		reader := dayOne()
		reader.stage = stage.Stage{Kind: stage.Night, Number: 1}
		store := &fakeStore{}
		s := newService(reader, store, &fakeRights{rows: gameRights()}, &recordingPoster{}, dayStartTime)
		So(s.Start(ctx), ShouldBeNil)
		defer s.Stop()

		Convey("Then the cycle does nothing", func() {
			So(s.RunCycle(ctx), ShouldBeNil)
			So(store.flushes, ShouldEqual, 0)
		})
	})

	Convey("Given a finished game", t, func() {
		reader := dayOne()
		reader.stage = stage.Stage{Kind: stage.End}
		s := newService(reader, &fakeStore{}, &fakeRights{rows: gameRights()}, &recordingPoster{}, dayStartTime)
		So(s.Start(ctx), ShouldBeNil)
		defer s.Stop()

		Convey("Then the cycle reports game over", func() {
			So(s.RunCycle(ctx), ShouldEqual, service.ErrGameOver)
			So(s.Run(ctx), ShouldEqual, service.ErrGameOver)
		})
	})

	Convey("Given the game master declares a winner", t, func() {
		reader := dayOne()
		reader.add("gm", "ganador pueblo")
		poster := &recordingPoster{}
		s := newService(reader, &fakeStore{}, &fakeRights{rows: gameRights()}, poster, dayStartTime+60)
		So(s.Start(ctx), ShouldBeNil)

		Convey("Then the cycle ends the game", func() {
			So(s.RunCycle(ctx), ShouldEqual, service.ErrGameOver)
			s.Stop()
			So(poster.kinds(), ShouldResemble, []model.EventKind{model.EventGameOver})
		})
		Reset(s.Stop)
	})
}

func mayorRights() []model.Rights {
	rows := gameRights()
	for i := range rows {
		if rows[i].Key == "alice" {
			rows[i].Mayor = true
		}
	}
	return rows
}

func TestServiceReports(t *testing.T) {
	ctx := context.Background()

	Convey("Given a mayor reveal and a history query without any tally", t, func() {
		reader := dayOne()
		reader.add("alice", "revelar")
		reader.add("bob", "historial carol")
		store := &fakeStore{}
		rights := &fakeRights{rows: mayorRights()}
		poster := &recordingPoster{}

		s := newService(reader, store, rights, poster, dayStartTime+3600)
		So(s.Start(ctx), ShouldBeNil)

		Convey("When several cycles rescan the same posts", func() {
			for range 3 {
				So(s.RunCycle(ctx), ShouldBeNil)
			}
			s.Stop()

			Convey("Then each report is posted once", func() {
				So(poster.kinds(), ShouldResemble, []model.EventKind{model.EventMayorReveal, model.EventVoteHistory})
				So(store.last.Checkpoint.LastReport, ShouldEqual, 4)
				So(store.last.Checkpoint.LastTally.PostID, ShouldEqual, 2)
			})

			Convey("And a restarted service does not post them again", func() {
				again := newService(reader, store, rights, poster, dayStartTime+7200)
				So(again.Start(ctx), ShouldBeNil)
				So(again.RunCycle(ctx), ShouldBeNil)
				again.Stop()
				So(poster.kinds(), ShouldHaveLength, 2)
			})

			Convey("And a later query is still answered", func() {
				reader.add("carol", "votantes bob")
				again := newService(reader, store, rights, poster, dayStartTime+7200)
				So(again.Start(ctx), ShouldBeNil)
				So(again.RunCycle(ctx), ShouldBeNil)
				again.Stop()
				So(poster.kinds(), ShouldResemble, []model.EventKind{
					model.EventMayorReveal, model.EventVoteHistory, model.EventVoters,
				})
			})
		})
		Reset(s.Stop)
	})
}

func TestServiceConcurrentReaders(t *testing.T) {
	ctx := context.Background()

	Convey("Given stats and tally readers polling while cycles run", t, func() {
		reader := dayOne()
		reader.add("alice", "voto bob")
		s := newService(reader, &fakeStore{}, &fakeRights{rows: gameRights()}, &recordingPoster{}, dayStartTime+3600)
		So(s.Start(ctx), ShouldBeNil)
		Reset(s.Stop)

		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = s.GetStats()
					_, _ = s.Tally(ctx)
				}
			}
		}()

		for range 200 {
			So(s.RunCycle(ctx), ShouldBeNil)
		}
		close(done)
		wg.Wait()

		Convey("Then the readers see the last cycle", func() {
			stats := s.GetStats()
			So(stats["ballots"], ShouldEqual, 1)
			So(stats["day"], ShouldEqual, 1)
		})
	})
}
