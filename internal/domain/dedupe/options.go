package dedupe

// Option applies a configuration option to the in-memory guard.
type Option func(*inMemoryGuard)

// WithCycle sets the generation id the guard observes for. Negative values
// are ignored.
func WithCycle(cycle int) Option {
	return func(g *inMemoryGuard) {
		if cycle >= 0 {
			g.cycle = cycle
		}
	}
}
