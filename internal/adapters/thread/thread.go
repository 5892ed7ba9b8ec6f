// Package thread reads and writes a game thread kept as a YAML snapshot.
//
// The snapshot holds the thread's posts in order. Each post carries its
// headers (the forum's h2 titles), the player list of a day opening post and
// the command lines found in its body. The game master marks stages with
// headers such as "Día 2", "Final del día 2" and "Final de la partida"; the
// bot marks its tallies with "Recuento de votos" and, once the day is
// decided, "Recuento de votos final".
package thread

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/internal/domain/stage"
	"github.com/okian/mafiabot/pkg/logger"
)

// PostsPerPage is how many posts the forum shows per page.
const PostsPerPage = 30

// PageOf returns the page postID is on. Pages start at 1.
func PageOf(postID int) int {
	if postID <= 0 {
		return 1
	}
	return (postID + PostsPerPage - 1) / PostsPerPage
}

var (
	gameEndHeader   = regexp.MustCompile(`(?i)^(final de la partida|end of game)`)
	dayEndHeader    = regexp.MustCompile(`(?i)^(final del día|final del dia|end of day) *([0-9]*)`)
	dayStartHeader  = regexp.MustCompile(`(?i)^(día|dia|day) *([0-9]*)`)
	tallyHeader     = regexp.MustCompile(`(?i)^(recuento de votos|vote count)$`)
	finalTallyTitle = regexp.MustCompile(`(?i)^(recuento de votos final|final vote count)$`)
)

// Post is one post as stored in the snapshot.
type Post struct {
	ID       int      `yaml:"id"`
	Time     int64    `yaml:"time"`
	Author   string   `yaml:"author"`
	Headers  []string `yaml:"headers,omitempty"`
	Players  []string `yaml:"players,omitempty"`
	Commands []string `yaml:"commands,omitempty"`
	Body     []string `yaml:"body,omitempty"`
}

// Snapshot is the on-disk thread.
type Snapshot struct {
	Title string `yaml:"title,omitempty"`
	Posts []Post `yaml:"posts"`
}

// Thread reads the snapshot at path and appends the bot's reports to it.
// The file is re-read whenever it changes on disk, so the thread can be fed
// by another process while the bot runs.
type Thread struct {
	mu      sync.Mutex
	path    string
	modTime time.Time
	snap    Snapshot

	gameMaster string
	botUser    string
	now        func() time.Time

	logger logger.Logger
}

// Open creates a Thread over the snapshot at path. A missing file is an
// empty thread.
func Open(path string, opts ...Option) (*Thread, error) {
	t := &Thread{
		path:    path,
		botUser: "mafiabot",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logger.OrGet(t.logger).Named("thread")

	if t.path == "" {
		return nil, ErrNoPath
	}
	if t.gameMaster == "" {
		return nil, ErrNoGameMaster
	}
	if err := t.refresh(); err != nil {
		return nil, err
	}
	return t, nil
}

// refresh re-reads the snapshot when the file changed. Callers hold mu or
// own t exclusively.
func (t *Thread) refresh() error {
	info, err := os.Stat(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		t.snap = Snapshot{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("thread: stat %s: %w", t.path, err)
	}
	if info.ModTime().Equal(t.modTime) && t.snap.Posts != nil {
		return nil
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("thread: read %s: %w", t.path, err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("thread: parse %s: %w", t.path, err)
	}
	slices.SortStableFunc(snap.Posts, func(a, b Post) int { return a.ID - b.ID })

	t.snap = snap
	t.modTime = info.ModTime()
	return nil
}

// CurrentStage walks the game master's posts from newest to oldest and
// returns the first stage marker found. A thread with no marker yet is
// treated as night: there is nothing to count.
func (t *Thread) CurrentStage(ctx context.Context) (stage.Stage, []string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(); err != nil {
		return stage.Stage{}, nil, err
	}

	for i := len(t.snap.Posts) - 1; i >= 0; i-- {
		p := t.snap.Posts[i]
		if model.Key(p.Author) != t.gameMaster {
			continue
		}
		for _, h := range p.Headers {
			switch {
			case gameEndHeader.MatchString(h):
				return stage.Stage{Kind: stage.End, StartPost: p.ID, StartTime: p.Time}, nil, nil
			case dayEndHeader.MatchString(h):
				n := headerNumber(dayEndHeader, h)
				return stage.Stage{Kind: stage.Night, Number: n, StartPost: p.ID, StartTime: p.Time}, nil, nil
			case dayStartHeader.MatchString(h):
				n := headerNumber(dayStartHeader, h)
				return stage.Stage{Kind: stage.Day, Number: n, StartPost: p.ID, StartTime: p.Time}, slices.Clone(p.Players), nil
			}
		}
	}

	t.logger.Debug(ctx, "no stage marker in thread yet")
	return stage.Stage{Kind: stage.Night}, nil, nil
}

func headerNumber(re *regexp.Regexp, h string) int {
	m := re.FindStringSubmatch(h)
	if len(m) < 3 {
		return 0
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return 0
	}
	return n
}

// LastTally returns the newest tally the bot posted.
func (t *Thread) LastTally(_ context.Context) (model.TallyMark, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(); err != nil {
		return model.TallyMark{}, err
	}

	for i := len(t.snap.Posts) - 1; i >= 0; i-- {
		p := t.snap.Posts[i]
		if model.Key(p.Author) != t.botUser {
			continue
		}
		for _, h := range p.Headers {
			if finalTallyTitle.MatchString(h) {
				return model.TallyMark{PostID: p.ID, Final: true}, nil
			}
			if tallyHeader.MatchString(h) {
				return model.TallyMark{PostID: p.ID}, nil
			}
		}
	}
	return model.TallyMark{}, nil
}

// PageCount returns the number of pages in the thread.
func (t *Thread) PageCount(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(); err != nil {
		return 0, err
	}
	if len(t.snap.Posts) == 0 {
		return 0, nil
	}
	return PageOf(t.snap.Posts[len(t.snap.Posts)-1].ID), nil
}

// Page returns the posts on one page.
func (t *Thread) Page(_ context.Context, page int) ([]model.Post, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var out []model.Post
	for _, p := range t.snap.Posts {
		if PageOf(p.ID) != page {
			continue
		}
		out = append(out, model.Post{
			ID:       p.ID,
			Time:     p.Time,
			Author:   model.Key(p.Author),
			Commands: slices.Clone(p.Commands),
		})
	}
	return out, nil
}

// Post renders e and appends it to the thread as a bot post.
func (t *Thread) Post(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: events travel by value
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(); err != nil {
		return err
	}

	next := 1
	if n := len(t.snap.Posts); n > 0 {
		next = t.snap.Posts[n-1].ID + 1
	}
	header, body := Render(e)
	t.snap.Posts = append(t.snap.Posts, Post{
		ID:      next,
		Time:    t.now().Unix(),
		Author:  t.botUser,
		Headers: []string{header},
		Body:    body,
	})

	if err := t.write(); err != nil {
		t.snap.Posts = t.snap.Posts[:len(t.snap.Posts)-1]
		return err
	}
	t.logger.Info(ctx, "report posted",
		logger.String("kind", string(e.Kind)),
		logger.Int("post", next),
		logger.String("header", header),
	)
	return nil
}

// write replaces the snapshot file atomically.
func (t *Thread) write() error {
	data, err := yaml.Marshal(&t.snap)
	if err != nil {
		return fmt.Errorf("thread: encode: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("thread: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".thread-*.yaml")
	if err != nil {
		return fmt.Errorf("thread: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("thread: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("thread: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return fmt.Errorf("thread: replace %s: %w", t.path, err)
	}

	if info, err := os.Stat(t.path); err == nil {
		t.modTime = info.ModTime()
	}
	return nil
}
