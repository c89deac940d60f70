package scheduler

import (
	"context"

	"github.com/vk/stencilgo/internal/idx"
	"golang.org/x/sync/errgroup"
)

// SlabOffset is added to slab start indices before dividing so the
// slab-to-thread pattern continues unchanged through negative coordinates.
const SlabOffset int64 = 0x1000

// SlabOwner returns the inner thread in [0, nThreads) that owns the slab
// starting at elem. Slabs whose starts differ by a multiple of
// slabPts*nThreads have the same owner.
func SlabOwner(elem, slabPts int64, nThreads int) int {
	slab := idx.IdivFlr(elem+SlabOffset, slabPts)
	return int(idx.ImodFlr(slab, int64(nThreads)))
}

// BindSlabs returns a copy of idxs sliced into slabs of slabPts along the
// stencil dim bindPosn. The slab width is also the alignment so slabs line
// up between units and steps. Every other domain dim gets a single tile.
func BindSlabs(idxs idx.ScanIndices, bindPosn int, slabPts int64, posns []idx.DimPosn) idx.ScanIndices {
	out := idxs.Clone()
	for _, p := range posns {
		i := p.Stencil
		if i == bindPosn {
			out.Stride[i] = slabPts
			out.Align[i] = slabPts
			continue
		}
		out.Stride[i] = max(out.OverallRange(i), 1)
	}
	return out
}

// Pool is the default Region.
type Pool struct {
	threads int
}

var _ Region = (*Pool)(nil)

// New returns a region with the given number of inner workers; values
// below one mean one.
func New(threads int) *Pool {
	return &Pool{threads: max(threads, 1)}
}

// NumThreads implements Region.
func (p *Pool) NumThreads() int { return p.threads }

// RunBound implements Region.
func (p *Pool) RunBound(ctx context.Context, idxs idx.ScanIndices, bindPosn int, slabPts int64, fn TileFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	for tid := 0; tid < p.threads; tid++ {
		g.Go(func() error {
			return idx.Walk(idxs, func(r idx.NanoRange) error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if SlabOwner(r.Start[bindPosn], slabPts, p.threads) != tid {
					return nil
				}
				return fn(gctx, tid, r)
			})
		})
	}
	return g.Wait()
}

// RunDynamic implements Region. A single-worker region runs inline on the
// calling goroutine.
func (p *Pool) RunDynamic(ctx context.Context, idxs idx.ScanIndices, fn TileFunc) error {
	if p.threads == 1 {
		return idx.Walk(idxs, func(r idx.NanoRange) error {
			return fn(ctx, 0, r)
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.threads)

	// Inner thread ids are handed out as tokens; SetLimit guarantees one is
	// always free when a goroutine starts.
	ids := make(chan int, p.threads)
	for tid := 0; tid < p.threads; tid++ {
		ids <- tid
	}

	walkErr := idx.Walk(idxs, func(r idx.NanoRange) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			tid := <-ids
			defer func() { ids <- tid }()
			return fn(gctx, tid, r)
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return walkErr
}
