// Package service runs the moderator: each polling cycle it reads the game
// thread, resolves the day's actions and hands the resulting reports to the
// poster.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	eventqueue "github.com/okian/mafiabot/internal/adapters/mq/queue"
	postworker "github.com/okian/mafiabot/internal/adapters/mq/worker"
	"github.com/okian/mafiabot/internal/adapters/thread"
	"github.com/okian/mafiabot/internal/domain/action"
	"github.com/okian/mafiabot/internal/domain/ledger"
	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/internal/domain/roster"
	"github.com/okian/mafiabot/internal/domain/stage"
	"github.com/okian/mafiabot/pkg/logger"
	"github.com/okian/mafiabot/pkg/metrics"
)

const (
	minUpdateInterval       = 10 * time.Second
	defaultPostsUntilUpdate = 30
	defaultVotesUntilUpdate = 5
	defaultQueueSize        = 256
	shutdownTimeout         = 10 * time.Second
)

// TallyView is the state of the day after the last cycle.
type TallyView struct {
	Cycle      int            `json:"cycle"`
	Day        int            `json:"day"`
	Stage      string         `json:"stage"`
	Phase      string         `json:"phase"`
	AliveCount int            `json:"alive_count"`
	Majority   int            `json:"majority"`
	Ballots    []model.Ballot `json:"ballots"`
	Deadline   int64          `json:"deadline"`
	LastTally  int            `json:"last_tally_post"`
	Final      bool           `json:"final"`
}

// Service owns the game state between cycles. Cycles never overlap.
type Service struct {
	mu    sync.RWMutex
	cycle sync.Mutex

	reader ThreadReader
	store  Store
	rights RightsStore
	poster postworker.Poster

	parser   *action.Parser
	timer    *stage.Timer
	resolver *Resolver
	queue    *eventqueue.InMemoryQueue
	worker   *postworker.InMemoryWorker

	// Configuration
	interval         time.Duration
	postsUntilUpdate int
	votesUntilUpdate int
	queueSize        int
	gameMaster       string
	moderators       []string
	now              func() time.Time

	// State carried across cycles. Only RunCycle writes it, holding mu.
	roster     *roster.Roster
	history    []model.HistoryEntry
	rightsRows []model.Rights
	checkpoint model.Checkpoint
	nextCycle  int
	view       TallyView

	started bool
	stopCh  chan struct{}

	logger logger.Logger
}

// New constructs a Service.
func New(opts ...Option) *Service {
	s := &Service{
		interval:         minUpdateInterval,
		postsUntilUpdate: defaultPostsUntilUpdate,
		votesUntilUpdate: defaultVotesUntilUpdate,
		queueSize:        defaultQueueSize,
		now:              time.Now,
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval < minUpdateInterval {
		s.interval = minUpdateInterval
	}
	return s
}

// Start loads persisted state and starts the poster worker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger = logger.OrGet(s.logger)

	if s.reader == nil || s.store == nil || s.poster == nil {
		return fmt.Errorf("%w: reader, store and poster are required", ErrMissingDependency)
	}
	if s.timer == nil {
		t, err := stage.NewTimer()
		if err != nil {
			return fmt.Errorf("stage timer: %w", err)
		}
		s.timer = t
	}
	s.parser = action.NewParser(action.WithLogger(s.logger.Named("parser")))
	s.resolver = NewResolver(s.logger)

	if err := s.load(ctx); err != nil {
		return err
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.worker = postworker.NewInMemoryWorker(s.queue, s.poster, postworker.WithLogger(s.logger))
	go s.worker.Run(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "moderator service started",
		logger.Int("cycle", s.nextCycle),
		logger.Int("history", len(s.history)),
		logger.Int("players", len(s.roster.Players())),
		logger.String("game_master", s.gameMaster),
	)
	return nil
}

// load restores history, shots, roster and the loop checkpoint. A missing
// table is an empty one.
func (s *Service) load(ctx context.Context) error {
	history, err := s.store.LoadHistory(ctx)
	if err != nil {
		s.logger.Warn(ctx, "starting with empty history", logger.Error(err))
		history = nil
	}
	shots, err := s.store.LoadShots(ctx)
	if err != nil {
		s.logger.Warn(ctx, "starting with empty shot log", logger.Error(err))
		shots = nil
	}
	players, err := s.store.LoadRoster(ctx)
	if err != nil {
		s.logger.Warn(ctx, "starting with empty roster", logger.Error(err))
		players = nil
	}
	cp, saved, err := s.store.LoadCheckpoint(ctx)
	if err != nil {
		s.logger.Warn(ctx, "starting without checkpoint", logger.Error(err))
		cp, saved = model.Checkpoint{}, false
	}

	var configured []model.Player
	if s.rights != nil {
		rows, combat, err := s.rights.LoadRights(ctx)
		if err != nil {
			s.logger.Warn(ctx, "starting with empty rights table", logger.Error(err))
		}
		s.rightsRows = rows
		configured = combat
	}
	if len(players) == 0 {
		players = configured
	}

	s.history = history
	s.checkpoint = cp
	s.roster = roster.New(
		roster.WithLogger(s.logger.Named("roster")),
		roster.WithPlayers(players),
		roster.WithShots(shots),
		roster.WithDay(cp.Day),
	)

	last, ok := lastCycle(history, shots, cp, saved)
	if ok {
		s.nextCycle = last + 1
	}
	return nil
}

// lastCycle returns the highest cycle id found in persisted state.
func lastCycle(history []model.HistoryEntry, shots []model.ShotEntry, cp model.Checkpoint, saved bool) (int, bool) {
	last, ok := cp.Cycle, saved
	for _, h := range history {
		if !ok || h.Cycle > last {
			last, ok = h.Cycle, true
		}
	}
	for _, sh := range shots {
		if !ok || sh.Cycle > last {
			last, ok = sh.Cycle, true
		}
	}
	return last, ok
}

// Stop drains the outbound queue and stops the worker.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping moderator service...")

	_ = s.queue.Close()
	select {
	case <-s.worker.Done():
	case <-time.After(shutdownTimeout):
		sctx, cancel := context.WithTimeout(ctx, time.Second)
		_ = s.worker.Shutdown(sctx)
		cancel()
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.started = false
	s.logger.Info(ctx, "moderator service stopped")
}

// Run polls until ctx is done or the game ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		err := s.RunCycle(ctx)
		switch {
		case errors.Is(err, ErrGameOver):
			s.logger.Info(ctx, "game over, stopping the loop")
			return err
		case err != nil:
			s.logger.Error(ctx, "cycle failed", logger.Error(err))
		}

		s.logger.Debug(ctx, "sleeping", logger.String("interval", s.interval.String()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle runs one polling cycle to completion.
func (s *Service) RunCycle(ctx context.Context) error {
	s.cycle.Lock()
	defer s.cycle.Unlock()

	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	begin := time.Now()
	st, dayList, err := s.reader.CurrentStage(ctx)
	if err != nil {
		return fmt.Errorf("read stage: %w", err)
	}

	switch st.Kind {
	case stage.End:
		s.setView(func(v *TallyView) { v.Stage = st.Kind.String() })
		return ErrGameOver
	case stage.Night:
		s.logger.Info(ctx, "night phase, skipping")
		s.setView(func(v *TallyView) { v.Stage = st.Kind.String() })
		metrics.RecordCycle(st.Kind.String(), msSince(begin))
		return nil
	case stage.Day:
	}

	cycleID := s.nextCycle
	if st.StartPost != s.checkpoint.DayStartPost {
		s.roster.StartDay(ctx, st.Number, dayList)
		s.mu.Lock()
		s.checkpoint.Day = st.Number
		s.checkpoint.DayStartPost = st.StartPost
		s.checkpoint.LastTally = model.TallyMark{}
		s.checkpoint.LastReport = 0
		s.mu.Unlock()
	}

	mark, err := s.reader.LastTally(ctx)
	if err != nil {
		s.logger.Warn(ctx, "cannot read last tally, using checkpoint", logger.Error(err))
	}
	mark = latestMark(s.checkpoint.LastTally, mark, st.StartPost)
	if mark.Final {
		s.logger.Info(ctx, "majority already reached, skipping", logger.Int("tally_post", mark.PostID))
		s.mu.Lock()
		s.checkpoint.LastTally = mark
		s.mu.Unlock()
		return nil
	}

	posts, lastPost, err := s.collect(ctx, st.StartPost)
	if err != nil {
		return err
	}
	var actions []action.Action
	for _, p := range posts {
		actions = append(actions, s.parser.ParsePost(ctx, p)...)
	}

	led := ledger.New(s.roster,
		ledger.WithLogger(s.logger.Named("ledger")),
		ledger.WithCycle(cycleID),
		ledger.WithGameMaster(s.gameMaster),
		ledger.WithModerators(s.moderators...),
		ledger.WithRights(s.rightsRows),
		ledger.WithHistory(s.history),
		ledger.WithDayStart(st.StartPost),
	)
	window := s.timer.Window(st)
	gs := &GameState{Roster: s.roster, Ledger: led, Window: window}

	out := s.resolver.Resolve(ctx, gs, Input{
		Actions:    actions,
		Watermark:  mark.PostID,
		ReportMark: max(s.checkpoint.LastReport, mark.PostID),
		Now:        s.now().Unix(),
	})
	if out.LastPost < lastPost {
		out.LastPost = lastPost
	}

	events := out.Events
	switch {
	case out.Final():
		mark = model.TallyMark{PostID: out.LastPost, Final: true}
	case s.shouldPush(led, out, mark):
		events = append(events, model.Event{
			Kind:       model.EventTally,
			Cycle:      cycleID,
			PostID:     out.LastPost,
			Ballots:    led.Ballots(),
			AliveCount: s.roster.AliveCount(),
			Majority:   led.Majority(),
		})
		mark = model.TallyMark{PostID: out.LastPost}
	}

	s.mu.Lock()
	s.history = led.History()
	s.rightsRows = led.Rights()
	s.checkpoint.Cycle = cycleID
	s.checkpoint.LastTally = mark
	s.checkpoint.LastReport = max(s.checkpoint.LastReport, out.LastPost)
	s.nextCycle = cycleID + 1
	s.mu.Unlock()

	if err := s.persist(ctx, led); err != nil {
		s.logger.Error(ctx, "flush failed", logger.Error(err))
	}
	s.dispatch(ctx, events)

	s.setView(func(v *TallyView) {
		*v = TallyView{
			Cycle:      cycleID,
			Day:        st.Number,
			Stage:      st.Kind.String(),
			Phase:      led.Phase().String(),
			AliveCount: s.roster.AliveCount(),
			Majority:   led.Majority(),
			Ballots:    led.Ballots(),
			Deadline:   window.Deadline,
			LastTally:  mark.PostID,
			Final:      mark.Final,
		}
	})
	metrics.RecordCycle(st.Kind.String(), msSince(begin))
	metrics.UpdateCurrentCycle(cycleID)
	metrics.UpdateGameState(s.roster.AliveCount(), led.Majority(), len(led.Ballots()))

	s.logger.Info(ctx, "cycle finished",
		logger.Int("cycle", cycleID),
		logger.Int("actions", len(actions)),
		logger.Int("applied", out.Applied),
		logger.Int("events", len(events)),
		logger.Int("last_post", out.LastPost),
	)

	if out.GameOver {
		return ErrGameOver
	}
	return nil
}

// latestMark merges the tally mark read from the thread with the one kept
// in the checkpoint. Marks from before the day started do not count.
func latestMark(kept, read model.TallyMark, dayStart int) model.TallyMark {
	m := kept
	if read.PostID > m.PostID {
		m = read
	}
	if m.PostID <= dayStart {
		return model.TallyMark{PostID: dayStart}
	}
	return m
}

// shouldPush decides whether a new tally goes out: enough posts or votes
// since the last one, or a staff request newer than it.
func (s *Service) shouldPush(led *ledger.Ledger, out Outcome, mark model.TallyMark) bool {
	if out.CountRequested {
		return true
	}
	if out.LastPost-mark.PostID >= s.postsUntilUpdate {
		return true
	}
	return led.VotesSince(mark.PostID) >= s.votesUntilUpdate
}

// collect reads every page from the day start and returns the day's posts
// in ascending order, each post once.
func (s *Service) collect(ctx context.Context, dayStart int) ([]model.Post, int, error) {
	pages, err := s.reader.PageCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("page count: %w", err)
	}

	seen := make(map[int]bool)
	var posts []model.Post
	last := 0
	for page := thread.PageOf(dayStart); page <= pages; page++ {
		batch, err := s.reader.Page(ctx, page)
		if err != nil {
			return nil, 0, fmt.Errorf("read page %d: %w", page, err)
		}
		for _, p := range batch {
			if p.ID > last {
				last = p.ID
			}
			if p.ID <= dayStart || seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			posts = append(posts, p)
		}
	}
	slices.SortFunc(posts, func(a, b model.Post) int { return a.ID - b.ID })
	return posts, last, nil
}

func (s *Service) persist(ctx context.Context, led *ledger.Ledger) error {
	if s.rights != nil && led.RightsGrown() {
		if err := s.rights.SaveRights(ctx, s.rightsRows); err != nil {
			s.logger.Error(ctx, "cannot write back rights table", logger.Error(err))
		}
	}
	return s.store.Flush(ctx, model.Flush{
		History:    s.history,
		Shots:      s.roster.Shots(),
		Players:    s.roster.Players(),
		Checkpoint: s.checkpoint,
	})
}

func (s *Service) dispatch(ctx context.Context, events []model.Event) {
	for _, e := range events {
		if !s.queue.Enqueue(ctx, e) {
			s.logger.Error(ctx, "outbound queue full, dropping event",
				logger.String("kind", string(e.Kind)), logger.Int("post", e.PostID))
		}
	}
}

func (s *Service) setView(f func(*TallyView)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.view)
}

// Tally returns the state of the day after the last cycle.
func (s *Service) Tally(_ context.Context) (TallyView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return TallyView{}, ErrNotStarted
	}
	v := s.view
	v.Ballots = slices.Clone(v.Ballots)
	return v, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"nextCycle":        s.nextCycle,
		"interval":         s.interval.String(),
		"postsUntilUpdate": s.postsUntilUpdate,
		"votesUntilUpdate": s.votesUntilUpdate,
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(context.Background())
		stats["historyRows"] = len(s.history)
		stats["stage"] = s.view.Stage
		stats["day"] = s.view.Day
		stats["alive"] = s.view.AliveCount
		stats["majority"] = s.view.Majority
		stats["ballots"] = len(s.view.Ballots)
		stats["lastTallyPost"] = s.view.LastTally
	}
	return stats
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
