// Package env defines the process-group collaborator: rank identity and the
// collective sum used to aggregate work statistics across ranks.
//
// Local serves a single process. Group runs several ranks inside one
// process; tests use it to exercise the collective. The socketenv package
// provides the networked implementation the CLI uses for multi-rank runs.
package env

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Env is the view of the process group held by one rank.
type Env interface {
	Rank() int
	NumRanks() int

	// SumOverRanks is a collective: every rank must call it the same number
	// of times, in the same order. It blocks until all ranks have
	// contributed and returns the total to each of them.
	SumOverRanks(ctx context.Context, v int64) (int64, error)
}

// Local is a group of one.
type Local struct{}

var _ Env = Local{}

func (Local) Rank() int     { return 0 }
func (Local) NumRanks() int { return 1 }

func (Local) SumOverRanks(_ context.Context, v int64) (int64, error) {
	return v, nil
}

// Group is an in-process group of ranks.
type Group struct {
	mu      sync.Mutex
	members []*Member
	cur     *round
}

type round struct {
	sum     int64
	arrived int
	done    chan struct{}
}

func newRound() *round {
	return &round{done: make(chan struct{})}
}

// NewGroup returns a group of n ranks.
func NewGroup(n int) (*Group, error) {
	if n < 1 {
		return nil, fmt.Errorf("group needs at least one rank, got %d", n)
	}
	g := &Group{cur: newRound()}
	for r := 0; r < n; r++ {
		g.members = append(g.members, &Member{group: g, rank: r})
	}
	return g, nil
}

// Member returns the Env of rank r.
func (g *Group) Member(r int) *Member {
	return g.members[r]
}

// Size returns the number of ranks.
func (g *Group) Size() int { return len(g.members) }

// Run calls fn once per rank, each on its own goroutine, and waits for all
// of them. The first error cancels the context passed to the others.
func (g *Group) Run(ctx context.Context, fn func(ctx context.Context, e Env) error) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, m := range g.members {
		eg.Go(func() error {
			if err := fn(egCtx, m); err != nil {
				return fmt.Errorf("rank %d: %w", m.rank, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// Member is one rank of a Group.
type Member struct {
	group *Group
	rank  int
}

var _ Env = (*Member)(nil)

func (m *Member) Rank() int     { return m.rank }
func (m *Member) NumRanks() int { return len(m.group.members) }

func (m *Member) SumOverRanks(ctx context.Context, v int64) (int64, error) {
	g := m.group
	g.mu.Lock()
	r := g.cur
	r.sum += v
	r.arrived++
	if r.arrived == len(g.members) {
		close(r.done)
		g.cur = newRound()
	}
	g.mu.Unlock()

	select {
	case <-r.done:
		return r.sum, nil
	case <-ctx.Done():
	}

	// Withdraw from the round unless the last rank closed it meanwhile.
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-r.done:
		return r.sum, nil
	default:
	}
	r.sum -= v
	r.arrived--
	return 0, fmt.Errorf("waiting for %d ranks: %w", len(g.members), ctx.Err())
}
