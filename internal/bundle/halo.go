package bundle

import (
	"fmt"

	"github.com/vk/stencilgo/internal/idx"
	"github.com/vk/stencilgo/internal/varstore"
)

// SetOutputScratchVars replaces the scratch vectors written by a scratch
// bundle and recomputes its write halos.
func (b *Bundle) SetOutputScratchVars(vecs [][]varstore.Var) error {
	if !b.scratch {
		return fmt.Errorf("bundle %q: only scratch bundles write scratch vars", b.name)
	}
	for i, vec := range vecs {
		if len(vec) == 0 {
			return fmt.Errorf("bundle %q: scratch var vector %d has no instances", b.name, i)
		}
		for _, v := range vec {
			if !v.IsScratch() {
				return fmt.Errorf("bundle %q: var %q is not a scratch var", b.name, v.Name())
			}
		}
	}
	b.outputScratch = vecs
	b.FindWriteHalos()
	return nil
}

// FindWriteHalos sets the max write halos of a scratch bundle from its
// output scratch vars. Halos do not depend on the thread, so only the first
// instance of each vector is inspected. Dims a var lacks are skipped.
func (b *Bundle) FindWriteHalos() {
	nd := b.dims.NumDomainDims()
	b.maxLH = idx.NewIndices(nd)
	b.maxRH = idx.NewIndices(nd)
	for _, vec := range b.outputScratch {
		if len(vec) == 0 {
			continue
		}
		gp := vec[0]
		for j, dname := range b.dims.DomainDims {
			posn := gp.DimPosn(dname)
			if posn < 0 {
				continue
			}
			b.maxLH[j] = max(b.maxLH[j], gp.LeftHaloSize(posn))
			b.maxRH[j] = max(b.maxRH[j], gp.RightHaloSize(posn))
		}
	}
}

// AdjustSpan grows idxs by the write halos of scratch bundle b and aligns
// the result to the vector fold: begin rounds down and end rounds up. A
// stride that covered the whole original width is widened to the new
// width. The result always contains idxs.
func (b *Bundle) AdjustSpan(idxs idx.ScanIndices) idx.ScanIndices {
	assertf(b.scratch, nil, "span adjustment on non-scratch bundle %q", b.name)
	assertf(idxs.NumDims() == b.dims.NumStencilDims(), ErrDimMismatch,
		"bundle %q: %d index dims, want %d", b.name, idxs.NumDims(), b.dims.NumStencilDims())

	adj := idxs.Clone()
	for _, p := range b.dims.DomainPosns() {
		i, j := p.Stencil, p.Domain
		width := idxs.End[i] - idxs.Begin[i]

		begin := idx.RoundDownFlr(idxs.Begin[i]-b.maxLH[j], b.dims.FoldPts[j])
		end := idx.RoundUpFlr(idxs.End[i]+b.maxRH[j], b.dims.FoldPts[j])
		adj.Begin[i] = begin
		adj.End[i] = end

		if idxs.Stride[i] >= width {
			adj.Stride[i] = end - begin
		}
	}
	return adj
}

// checkSpan asserts that adj fits the storage of the scratch instances
// owned by outerThread.
func (b *Bundle) checkSpan(outerThread int, adj idx.ScanIndices) {
	for _, vec := range b.outputScratch {
		assertf(outerThread >= 0 && outerThread < len(vec), nil,
			"bundle %q: no scratch instance for outer thread %d", b.name, outerThread)
		gp := vec[outerThread]
		for _, p := range b.dims.DomainPosns() {
			dname := b.dims.DomainDims[p.Domain]
			posn := gp.DimPosn(dname)
			if posn < 0 {
				continue
			}
			first, last := gp.FirstLocalIndex(posn), gp.LastLocalIndex(posn)
			assertf(adj.Begin[p.Stencil] >= first && adj.End[p.Stencil] <= last+1, ErrHaloExceedsStorage,
				"bundle %q var %q dim %s: span [%d, %d) outside [%d, %d]",
				b.name, gp.Name(), dname, adj.Begin[p.Stencil], adj.End[p.Stencil], first, last)
		}
	}
}
