package handlers

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/stencilgo/internal/bundle"
	"github.com/vk/stencilgo/internal/idx"
)

// Names of the built-in evaluators.
const (
	Noop        = "noop"
	CountPoints = "count_points"
	Checksum    = "checksum"
)

// Tally accumulates one counter per bundle. It is safe for concurrent use.
type Tally struct {
	mu     sync.Mutex
	counts map[string]*atomic.Int64
}

func NewTally() *Tally {
	return &Tally{counts: make(map[string]*atomic.Int64)}
}

func (t *Tally) counter(name string) *atomic.Int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.counts[name]
	if !ok {
		c = new(atomic.Int64)
		t.counts[name] = c
	}
	return c
}

// Add adds n to the counter of bundle name.
func (t *Tally) Add(name string, n int64) { t.counter(name).Add(n) }

// Get returns the counter of bundle name.
func (t *Tally) Get(name string) int64 { return t.counter(name).Load() }

// Snapshot copies all counters.
func (t *Tally) Snapshot() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.counts))
	for name, c := range t.counts {
		out[name] = c.Load()
	}
	return out
}

// ChecksumInput holds the arguments of the checksum evaluator.
type ChecksumInput struct {
	Weight int64 `arg:"weight,optional"`
}

// RegisterBuiltins adds noop, count_points and checksum. The last two
// accumulate into tally under the evaluating bundle's name.
func RegisterBuiltins(r *Handlers, tally *Tally) {
	r.Register(Noop, &Evaluator{
		New: func(any) bundle.NanoBlockFunc {
			return func(context.Context, *bundle.Bundle, int, int, idx.NanoRange) error { return nil }
		},
	})
	r.Register(CountPoints, &Evaluator{
		New: func(any) bundle.NanoBlockFunc {
			return func(_ context.Context, b *bundle.Bundle, _, _ int, nr idx.NanoRange) error {
				tally.Add(b.Name(), nr.NumPoints())
				return nil
			}
		},
	})
	r.Register(Checksum, &Evaluator{
		Input: func() any { return &ChecksumInput{Weight: 1} },
		New: func(input any) bundle.NanoBlockFunc {
			w := input.(*ChecksumInput).Weight
			return func(_ context.Context, b *bundle.Bundle, _, _ int, nr idx.NanoRange) error {
				tally.Add(b.Name(), w*CoordSum(nr))
				return nil
			}
		},
	})
}

// CoordSum returns the sum over all points of nr of the sum of their
// coordinates. It does not depend on how a range is split into tiles.
func CoordSum(nr idx.NanoRange) int64 {
	n := len(nr.Start)
	lens := make([]int64, n)
	sums := make([]int64, n)
	for i := 0; i < n; i++ {
		lo, hi := nr.Start[i], nr.Stop[i]
		if hi < lo {
			// Reverse ranges cover start, start-1, ..., stop+1.
			lo, hi = hi+1, lo+1
		}
		lens[i] = hi - lo
		sums[i] = (lo + hi - 1) * (hi - lo) / 2
	}
	var total int64
	for i := 0; i < n; i++ {
		term := sums[i]
		for j := 0; j < n; j++ {
			if j != i {
				term *= lens[j]
			}
		}
		total += term
	}
	return total
}
