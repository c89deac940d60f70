package bundle

import (
	"context"
	"fmt"

	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/idx"
	"github.com/vk/stencilgo/internal/scheduler"
	"github.com/vk/stencilgo/internal/varstore"
)

// CalcMicroBlock evaluates non-scratch bundle b and its required scratch
// bundles over one micro-block. mb covers exactly one step. The inner
// workers are joined before it returns, and the outputs of b are marked
// once at least one of its boxes overlapped mb.
func (b *Bundle) CalcMicroBlock(ctx context.Context, outerThread int, settings *Settings, mb idx.ScanIndices, sec MPISection) error {
	assertf(!b.scratch, nil, "micro-block evaluation called on scratch bundle %q", b.name)
	assertf(mb.NumDims() == b.dims.NumStencilDims(), ErrDimMismatch,
		"bundle %q: %d index dims, want %d", b.name, mb.NumDims(), b.dims.NumStencilDims())

	sp := b.dims.StepPosn()
	assertf(mb.End[sp]-mb.Begin[sp] == 1 || mb.End[sp]-mb.Begin[sp] == -1, ErrTemporalBlocking,
		"bundle %q: step range [%d, %d)", b.name, mb.Begin[sp], mb.End[sp])
	t := mb.Begin[sp]

	trace := ctxlog.TraceEnabled(ctx)
	if trace {
		ctxlog.Trace(ctx, "calc micro-block", "bundle", b.name, "step", t,
			"range", b.dims.RangeString(stencilToDomain(mb.Begin, b), stencilToDomain(mb.End, b)))
	}

	if !b.bb.Valid() {
		if trace {
			ctxlog.Trace(ctx, "empty bundle box", "bundle", b.name)
		}
		return nil
	}
	posns := b.dims.DomainPosns()
	if !b.bb.Overlaps(mb, posns) {
		if trace {
			ctxlog.Trace(ctx, "micro-block outside bundle box", "bundle", b.name)
		}
		return nil
	}

	region := scheduler.New(settings.InnerThreads)
	bind := settings.BindInnerThreads && region.NumThreads() > 1
	var slabPts int64
	if bind {
		slabPts = settings.slabPts(posns)
		assertf(slabPts > 0, nil, "binding requires a positive nano-block size in the bound dim")
	}

	touched := false
	for bbn, bb := range b.bbs {
		if !bb.Valid() {
			continue
		}
		mb1, ok := bb.Trim(mb, posns)
		if !ok {
			if trace {
				ctxlog.Trace(ctx, "micro-block misses box", "bundle", b.name, "box", bbn)
			}
			continue
		}
		touched = true

		for _, sg := range b.reqd {
			active, err := sg.IsInValidStep(t)
			if err != nil {
				return fmt.Errorf("bundle %q: %w", sg.name, err)
			}
			if !active {
				if trace {
					ctxlog.Trace(ctx, "bundle inactive at step", "bundle", sg.name, "step", t)
				}
				continue
			}

			mb2 := mb1.Clone()
			if sg.scratch {
				mb2 = sg.AdjustSpan(mb1)
				if settings.CheckBounds {
					sg.checkSpan(outerThread, mb2)
				}
			}
			mb2.AdjustFromSettings(settings.NanoBlockSizes, posns)

			for fbbn, fbb := range sg.bbs {
				var mb3 idx.ScanIndices
				if sg.scratch {
					if !fbb.Valid() {
						continue
					}
					if mb3, ok = fbb.Trim(mb2, posns); !ok {
						continue
					}
				} else {
					// Only the box already selected above applies to b.
					if sg != b || fbbn != bbn {
						continue
					}
					mb3 = mb2
				}

				if trace {
					ctxlog.Trace(ctx, "eval range", "bundle", sg.name, "outer_thread", outerThread,
						"range", b.dims.RangeString(stencilToDomain(mb3.Begin, b), stencilToDomain(mb3.End, b)))
				}
				if err := sg.evalRange(ctx, region, outerThread, mb3, bind, settings.BindPosn, slabPts); err != nil {
					return fmt.Errorf("bundle %q: %w", sg.name, err)
				}
			}
		}
	}

	if touched {
		b.UpdateVarInfo(varstore.Self, t, sec.Exterior(), true, false)
	}
	return nil
}

func (b *Bundle) evalRange(ctx context.Context, region scheduler.Region, outerThread int, r idx.ScanIndices, bind bool, bindPosn int, slabPts int64) error {
	fn := func(ctx context.Context, innerThread int, nr idx.NanoRange) error {
		return b.CalcNanoBlock(ctx, outerThread, innerThread, nr)
	}
	if bind {
		r = scheduler.BindSlabs(r, bindPosn, slabPts, b.dims.DomainPosns())
		return region.RunBound(ctx, r, bindPosn, slabPts, fn)
	}
	return region.RunDynamic(ctx, r, fn)
}

// CalcNanoBlock runs the bound evaluator on one tile.
func (b *Bundle) CalcNanoBlock(ctx context.Context, outerThread, innerThread int, r idx.NanoRange) error {
	return b.eval(ctx, b, outerThread, innerThread, r)
}

// stencilToDomain picks the domain entries out of a stencil-indexed tuple.
func stencilToDomain(v idx.Indices, b *Bundle) idx.Indices {
	out := idx.NewIndices(b.dims.NumDomainDims())
	for _, p := range b.dims.DomainPosns() {
		out[p.Domain] = v[p.Stencil]
	}
	return out
}
