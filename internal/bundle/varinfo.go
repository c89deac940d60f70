package bundle

import "github.com/vk/stencilgo/internal/varstore"

// OutputStep returns the step b writes when evaluated at step t.
func (b *Bundle) OutputStep(t int64) (int64, bool) {
	if b.outputStep != nil {
		return b.outputStep(t)
	}
	for _, v := range b.outputs {
		if v.DimPosn(b.dims.StepDim) >= 0 {
			return t + b.dims.StepDir, true
		}
	}
	return 0, false
}

// UpdateVarInfo records that b wrote its outputs for step t. Each of the
// three updates has its own gate: markExternDirty sets the dirty flag kept
// for whose, modDev flags the device copy as stale, and updateValidStep
// advances the newest valid step. Scratch outputs are never touched, and a
// bundle without an output step at t changes nothing. Dirty flags are
// only ever set here; clearing them belongs to the halo exchange.
func (b *Bundle) UpdateVarInfo(whose varstore.Whose, t int64, markExternDirty, modDev, updateValidStep bool) {
	tOut, ok := b.OutputStep(t)
	if !ok {
		return
	}
	for _, v := range b.outputs {
		if v.IsScratch() {
			continue
		}
		if markExternDirty {
			v.SetDirty(whose, true, tOut)
		}
		if modDev {
			v.ModDev()
		}
		if updateValidStep {
			v.UpdateValidStep(tOut)
		}
	}
}
