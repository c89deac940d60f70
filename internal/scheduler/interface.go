package scheduler

import (
	"context"

	"github.com/vk/stencilgo/internal/idx"
)

// TileFunc evaluates one nano-block on inner worker innerThread.
type TileFunc func(ctx context.Context, innerThread int, r idx.NanoRange) error

// Region is a nested parallel region: a fixed set of inner workers that is
// joined before each Run method returns.
//
// # Ordering
//
// Tiles of one call may run in any order and concurrently. Callers run one
// unit per call; the join guarantees a scratch unit is fully written before
// the next call evaluates its consumer.
type Region interface {
	// NumThreads returns the number of inner workers.
	NumThreads() int

	// RunBound walks idxs on every worker; each worker evaluates only the
	// tiles whose start in stencil dim bindPosn falls in a slab it owns.
	// idxs should already be sliced into slabs with BindSlabs.
	RunBound(ctx context.Context, idxs idx.ScanIndices, bindPosn int, slabPts int64, fn TileFunc) error

	// RunDynamic walks idxs once and hands each tile to a free worker.
	RunDynamic(ctx context.Context, idxs idx.ScanIndices, fn TileFunc) error
}
