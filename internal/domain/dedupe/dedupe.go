// Package dedupe decides whether an observed game event is new history or a
// replay of history already recorded by an earlier polling cycle.
//
// Every cycle rescans the thread from the start of the day, so most events
// are seen again and again. An event is identified by a content key. The
// first time a key is observed it is recorded with the current cycle. A key
// already recorded by a different cycle is a replay and is skipped. A key
// recorded only by the current cycle is a legitimate repeat (the same
// command typed twice in one post) as long as this scan has observed it more
// often than history holds it.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Verdict classifies one observation.
type Verdict int

const (
	// Fresh means the key had never been recorded.
	Fresh Verdict = iota
	// Repeat means the key was already recorded in this same cycle and this
	// observation is an additional, legitimate occurrence.
	Repeat
	// Replay means the observation re-reads history already recorded.
	Replay
)

// Appends reports whether the observation must be added to history.
func (v Verdict) Appends() bool { return v != Replay }

func (v Verdict) String() string {
	switch v {
	case Fresh:
		return "fresh"
	case Repeat:
		return "repeat"
	case Replay:
		return "replay"
	default:
		return "unknown"
	}
}

// Guard records content keys together with the cycle that recorded them.
type Guard interface {
	// Seed registers a row loaded from persisted history.
	Seed(key string, cycle int)

	// Observe classifies one occurrence of key in the current scan and
	// records it unless it is a replay.
	Observe(ctx context.Context, key string) Verdict

	// Lookup returns the cycle that first recorded key.
	Lookup(key string) (cycle int, ok bool)

	// Cycle returns the generation id this guard observes for.
	Cycle() int

	// Size returns the number of recorded rows.
	Size() int64
}

type inMemoryGuard struct {
	mu       sync.Mutex
	cycle    int
	rows     map[string][]int // key -> cycles of recorded rows, in order
	observed map[string]int   // key -> occurrences seen by this scan
	size     atomic.Int64
}

// NewInMemoryGuard creates a guard for one scan.
func NewInMemoryGuard(opts ...Option) Guard {
	g := &inMemoryGuard{
		rows:     make(map[string][]int),
		observed: make(map[string]int),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *inMemoryGuard) Seed(key string, cycle int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rows[key] = append(g.rows[key], cycle)
	g.size.Add(1)
}

func (g *inMemoryGuard) Observe(_ context.Context, key string) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.observed[key]++
	seen := g.observed[key]
	rows := g.rows[key]

	if len(rows) == 0 {
		g.record(key)
		return Fresh
	}
	for _, c := range rows {
		if c != g.cycle {
			return Replay
		}
	}
	if len(rows) < seen {
		g.record(key)
		return Repeat
	}
	return Replay
}

// record must be called with g.mu held.
func (g *inMemoryGuard) record(key string) {
	g.rows[key] = append(g.rows[key], g.cycle)
	g.size.Add(1)
}

func (g *inMemoryGuard) Lookup(key string) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rows := g.rows[key]
	if len(rows) == 0 {
		return 0, false
	}
	return rows[0], true
}

func (g *inMemoryGuard) Cycle() int { return g.cycle }

func (g *inMemoryGuard) Size() int64 { return g.size.Load() }
