package bundle

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/stencilgo/internal/bbox"
	"github.com/vk/stencilgo/internal/dims"
	"github.com/vk/stencilgo/internal/idx"
	"github.com/vk/stencilgo/internal/varstore"
)

// NanoBlockFunc applies a bundle's equations to one tile. It is called from
// inner worker goroutines; tiles handed to concurrent calls never overlap.
type NanoBlockFunc func(ctx context.Context, b *Bundle, outerThread, innerThread int, r idx.NanoRange) error

// StepCondFunc reports whether a bundle is active at step t. An error
// means the condition could not be evaluated at t.
type StepCondFunc func(t int64) (bool, error)

// OutputStepFunc maps an input step to the step a bundle writes. The second
// result is false when the bundle writes no step-indexed output at t.
type OutputStepFunc func(t int64) (int64, bool)

// Config holds everything needed to build a Bundle.
type Config struct {
	Name    string
	Scratch bool
	Dims    *dims.Dims

	// BBs are the full rectangles covering the bundle's valid region. The
	// overall box is their hull.
	BBs []bbox.BoundingBox

	Inputs  []varstore.Var
	Outputs []varstore.Var

	// OutputScratch holds, per scratch var written by a scratch bundle, one
	// instance per outer thread.
	OutputScratch [][]varstore.Var

	ReadsPerPoint  int64
	WritesPerPoint int64
	FPOpsPerPoint  int64

	StepCond             StepCondFunc
	StepCondDescription  string
	SubDomainDescription string

	// OutputStep defaults to t+StepDir when any output is step-indexed.
	OutputStep OutputStepFunc

	Eval NanoBlockFunc
}

// Bundle is a computational unit. It is safe to call CalcMicroBlock from
// several outer threads at once as long as their micro-blocks do not overlap.
type Bundle struct {
	name    string
	scratch bool
	dims    *dims.Dims

	bb  bbox.BoundingBox
	bbs []bbox.BoundingBox

	inputs        []varstore.Var
	outputs       []varstore.Var
	outputScratch [][]varstore.Var

	maxLH, maxRH idx.Indices

	children []*Bundle
	reqd     []*Bundle

	readsPerPoint  int64
	writesPerPoint int64
	fpOpsPerPoint  int64

	stepCond      StepCondFunc
	stepCondDesc  string
	subDomainDesc string
	outputStep    OutputStepFunc
	eval          NanoBlockFunc
}

// New validates cfg and builds a bundle. Write halos of a scratch bundle
// are computed here.
func New(cfg Config) (*Bundle, error) {
	if cfg.Name == "" {
		return nil, errors.New("bundle name is required")
	}
	if cfg.Dims == nil {
		return nil, fmt.Errorf("bundle %q: dims are required", cfg.Name)
	}
	if cfg.Eval == nil {
		return nil, fmt.Errorf("bundle %q: no nano-block evaluator bound", cfg.Name)
	}
	nd := cfg.Dims.NumDomainDims()
	for i, bb := range cfg.BBs {
		if len(bb.Begin) != nd || len(bb.End) != nd {
			return nil, fmt.Errorf("bundle %q: box %d has %d dims, want %d", cfg.Name, i, len(bb.Begin), nd)
		}
	}
	if !cfg.Scratch && len(cfg.OutputScratch) > 0 {
		return nil, fmt.Errorf("bundle %q: only scratch bundles write scratch vars", cfg.Name)
	}

	b := &Bundle{
		name:           cfg.Name,
		scratch:        cfg.Scratch,
		dims:           cfg.Dims,
		bbs:            cloneBoxes(cfg.BBs),
		inputs:         cfg.Inputs,
		outputs:        cfg.Outputs,
		readsPerPoint:  cfg.ReadsPerPoint,
		writesPerPoint: cfg.WritesPerPoint,
		fpOpsPerPoint:  cfg.FPOpsPerPoint,
		stepCond:       cfg.StepCond,
		stepCondDesc:   cfg.StepCondDescription,
		subDomainDesc:  cfg.SubDomainDescription,
		outputStep:     cfg.OutputStep,
		eval:           cfg.Eval,
		maxLH:          idx.NewIndices(nd),
		maxRH:          idx.NewIndices(nd),
	}
	b.bb = hull(b.bbs, nd)
	b.reqd = []*Bundle{b}
	if b.scratch {
		if err := b.SetOutputScratchVars(cfg.OutputScratch); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func cloneBoxes(in []bbox.BoundingBox) []bbox.BoundingBox {
	out := make([]bbox.BoundingBox, len(in))
	for i, bb := range in {
		out[i] = bb
		out[i].Begin = bb.Begin.Clone()
		out[i].End = bb.End.Clone()
	}
	return out
}

// hull returns the smallest rectangle holding every valid box. Its point
// count is the sum over the boxes, so it is full only for a single box.
func hull(bbs []bbox.BoundingBox, nd int) bbox.BoundingBox {
	var out bbox.BoundingBox
	first := true
	for _, bb := range bbs {
		if !bb.Valid() {
			continue
		}
		if first {
			out = bbox.New(bb.Begin, bb.End)
			out.NumPoints = 0
			first = false
		}
		for j := 0; j < nd; j++ {
			out.Begin[j] = min(out.Begin[j], bb.Begin[j])
			out.End[j] = max(out.End[j], bb.End[j])
		}
		out.NumPoints += bb.NumPoints
	}
	if first {
		return bbox.New(idx.NewIndices(nd), idx.NewIndices(nd))
	}
	points := out.NumPoints
	out = bbox.New(out.Begin, out.End)
	out.NumPoints = min(points, out.Size)
	return out
}

func (b *Bundle) Name() string     { return b.name }
func (b *Bundle) IsScratch() bool  { return b.scratch }
func (b *Bundle) Dims() *dims.Dims { return b.dims }

// BB returns the overall box.
func (b *Bundle) BB() bbox.BoundingBox { return b.bb }

// BBs returns the full rectangles.
func (b *Bundle) BBs() []bbox.BoundingBox { return b.bbs }

func (b *Bundle) Inputs() []varstore.Var  { return b.inputs }
func (b *Bundle) Outputs() []varstore.Var { return b.outputs }

// OutputScratchVars returns the per-thread scratch vectors written by a
// scratch bundle.
func (b *Bundle) OutputScratchVars() [][]varstore.Var { return b.outputScratch }

// ScratchChildren returns the scratch bundles this one reads directly.
func (b *Bundle) ScratchChildren() []*Bundle { return b.children }

// RequiredBundles returns the bundle and all its transitive scratch
// prerequisites, producers first and b itself last. Before Set.Resolve it
// holds only b.
func (b *Bundle) RequiredBundles() []*Bundle { return b.reqd }

func (b *Bundle) ReadsPerPoint() int64  { return b.readsPerPoint }
func (b *Bundle) WritesPerPoint() int64 { return b.writesPerPoint }
func (b *Bundle) FPOpsPerPoint() int64  { return b.fpOpsPerPoint }

// StepCondDescription and SubDomainDescription return the source text of
// the conditions, empty when the bundle has none.
func (b *Bundle) StepCondDescription() string  { return b.stepCondDesc }
func (b *Bundle) SubDomainDescription() string { return b.subDomainDesc }

// IsStepCondExpr reports whether the bundle is conditionally active.
func (b *Bundle) IsStepCondExpr() bool { return b.stepCond != nil }

// IsSubDomainExpr reports whether the bundle has a sub-domain condition.
func (b *Bundle) IsSubDomainExpr() bool { return b.subDomainDesc != "" }

// IsInValidStep reports whether the bundle is active at step t.
func (b *Bundle) IsInValidStep(t int64) (bool, error) {
	if b.stepCond == nil {
		return true, nil
	}
	return b.stepCond(t)
}

// MaxWriteHalos returns copies of the aggregated left and right write halos
// per domain dim. Both are zero for non-scratch bundles.
func (b *Bundle) MaxWriteHalos() (left, right idx.Indices) {
	return b.maxLH.Clone(), b.maxRH.Clone()
}

func (b *Bundle) String() string { return b.name }
