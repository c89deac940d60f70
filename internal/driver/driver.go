// Package driver is the outer blocking loop. It tiles the rank domain into
// micro-blocks and hands them to a fixed set of outer workers, each of
// which evaluates every bundle of the current stage on its block.
package driver

import (
	"context"
	"fmt"

	"github.com/vk/stencilgo/internal/bundle"
	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/idx"
	"github.com/vk/stencilgo/internal/kernel"
	"golang.org/x/sync/errgroup"
)

// Driver runs the stages of one kernel.
type Driver struct {
	k *kernel.Kernel
}

func New(k *kernel.Kernel) *Driver {
	return &Driver{k: k}
}

// Block is one micro-block and the rank edges it touches.
type Block struct {
	Idxs    idx.ScanIndices
	Section bundle.MPISection
}

// MicroBlocks tiles the rank domain at step t by the micro-block sizes of
// the kernel settings. A size of zero spans the whole domain in that dim.
func (d *Driver) MicroBlocks(t int64) ([]Block, error) {
	dm := d.k.Dims
	dom := d.k.Domain
	s := idx.NewScanIndices(dm.NumStencilDims())
	sp := dm.StepPosn()
	s.Begin[sp], s.End[sp] = t, t+dm.StepDir
	for _, p := range dm.DomainPosns() {
		s.Begin[p.Stencil] = dom.Begin[p.Domain]
		s.End[p.Stencil] = dom.End[p.Domain]
		s.Stride[p.Stencil] = 0
		if p.Domain < len(d.k.Settings.MicroBlockSizes) {
			s.Stride[p.Stencil] = d.k.Settings.MicroBlockSizes[p.Domain]
		}
	}

	var blocks []Block
	err := idx.Walk(s, func(r idx.NanoRange) error {
		mb := idx.NewScanIndices(len(r.Start))
		mb.Begin, mb.End = r.Start, r.Stop
		var sec bundle.MPISection
		for _, p := range dm.DomainPosns() {
			sec.DoLeft = sec.DoLeft || r.Start[p.Stencil] == dom.Begin[p.Domain]
			sec.DoRight = sec.DoRight || r.Stop[p.Stencil] == dom.End[p.Domain]
		}
		blocks = append(blocks, Block{Idxs: mb, Section: sec})
		return nil
	})
	return blocks, err
}

// Run evaluates numSteps steps starting at first, moving in the kernel's
// step direction. Stages run in order within each step.
func (d *Driver) Run(ctx context.Context, first, numSteps int64) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Starting run.", "kernel", d.k.Name, "first_step", first, "steps", numSteps)
	for i := int64(0); i < numSteps; i++ {
		t := first + i*d.k.Dims.StepDir
		if err := d.RunStep(ctx, t); err != nil {
			return fmt.Errorf("step %d: %w", t, err)
		}
	}
	logger.Info("Run finished.", "kernel", d.k.Name, "steps", numSteps)
	return nil
}

// RunStep evaluates every stage once at step t.
func (d *Driver) RunStep(ctx context.Context, t int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := ctxlog.FromContext(ctx)
	blocks, err := d.MicroBlocks(t)
	if err != nil {
		return err
	}
	for _, st := range d.k.Stages {
		logger.Debug("Running stage.", "stage", st.Name(), "step", t, "micro_blocks", len(blocks))
		st.StartTimers()
		err := d.runBlocks(ctx, st.Bundles(), blocks)
		st.StopTimers()
		if err != nil {
			return fmt.Errorf("stage %q: %w", st.Name(), err)
		}
		st.AddSteps(1)
	}
	return nil
}

// runBlocks feeds blocks to the outer workers. Worker i always passes i as
// its outer thread, so it owns scratch instance i.
func (d *Driver) runBlocks(ctx context.Context, bundles []*bundle.Bundle, blocks []Block) error {
	g, ctx := errgroup.WithContext(ctx)
	work := make(chan Block)

	g.Go(func() error {
		defer close(work)
		for _, blk := range blocks {
			select {
			case work <- blk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < d.k.OuterThreads; i++ {
		outerThread := i
		g.Go(func() error {
			for blk := range work {
				for _, b := range bundles {
					if err := b.CalcMicroBlock(ctx, outerThread, d.k.Settings, blk.Idxs, blk.Section); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}
