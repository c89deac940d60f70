package inmemoryvars

import (
	"fmt"
	"sync"

	"github.com/vk/stencilgo/internal/idx"
	"github.com/vk/stencilgo/internal/varstore"
)

// Spec describes the geometry of one variable. All per-dim slices are
// indexed by the variable's own dim positions.
type Spec struct {
	Name      string
	Dims      []string
	LeftHalo  idx.Indices
	RightHalo idx.Indices

	// FirstDomainIndex and DomainSize give the rank-local domain, halos
	// excluded.
	FirstDomainIndex idx.Indices
	DomainSize       idx.Indices

	Domain  bool
	Scratch bool
}

// Var is the in-memory varstore.Var.
type Var struct {
	spec Spec

	mu            sync.Mutex
	dirty         [2]map[int64]bool
	devModified   bool
	lastValidStep int64
	hasValidStep  bool
}

var _ varstore.Var = (*Var)(nil)

// New validates spec and returns a variable with no marks set. Missing halo
// and bound slices default to zeros.
func New(spec Spec) (*Var, error) {
	n := len(spec.Dims)
	if spec.Name == "" {
		return nil, fmt.Errorf("variable name is required")
	}
	fill := func(v idx.Indices, what string) (idx.Indices, error) {
		if v == nil {
			return idx.NewIndices(n), nil
		}
		if len(v) != n {
			return nil, fmt.Errorf("variable %q: %s has %d entries for %d dims", spec.Name, what, len(v), n)
		}
		return v.Clone(), nil
	}
	var err error
	if spec.LeftHalo, err = fill(spec.LeftHalo, "left halo"); err != nil {
		return nil, err
	}
	if spec.RightHalo, err = fill(spec.RightHalo, "right halo"); err != nil {
		return nil, err
	}
	if spec.FirstDomainIndex, err = fill(spec.FirstDomainIndex, "first domain index"); err != nil {
		return nil, err
	}
	if spec.DomainSize, err = fill(spec.DomainSize, "domain size"); err != nil {
		return nil, err
	}
	spec.Dims = append([]string(nil), spec.Dims...)

	return &Var{
		spec:  spec,
		dirty: [2]map[int64]bool{make(map[int64]bool), make(map[int64]bool)},
	}, nil
}

// NewScratchVec returns one independent instance of spec per outer thread.
func NewScratchVec(spec Spec, numThreads int) ([]*Var, error) {
	spec.Scratch = true
	out := make([]*Var, numThreads)
	for i := range out {
		v, err := New(spec)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (v *Var) Name() string { return v.spec.Name }

func (v *Var) DimPosn(dim string) int {
	for i, d := range v.spec.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

func (v *Var) LeftHaloSize(posn int) int64  { return v.spec.LeftHalo[posn] }
func (v *Var) RightHaloSize(posn int) int64 { return v.spec.RightHalo[posn] }

func (v *Var) FirstLocalIndex(posn int) int64 {
	return v.spec.FirstDomainIndex[posn] - v.spec.LeftHalo[posn]
}

func (v *Var) LastLocalIndex(posn int) int64 {
	return v.spec.FirstDomainIndex[posn] + v.spec.DomainSize[posn] - 1 + v.spec.RightHalo[posn]
}

func (v *Var) IsDomainVar() bool { return v.spec.Domain }
func (v *Var) IsScratch() bool   { return v.spec.Scratch }

func (v *Var) SetDirty(whose varstore.Whose, dirty bool, step int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if dirty {
		v.dirty[whose][step] = true
	} else {
		delete(v.dirty[whose], step)
	}
}

func (v *Var) IsDirty(whose varstore.Whose, step int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dirty[whose][step]
}

// ClearDirty resets the flag for whose at step. The halo-exchange
// transport calls it once the exchange has completed.
func (v *Var) ClearDirty(whose varstore.Whose, step int64) {
	v.SetDirty(whose, false, step)
}

// DirtySteps returns how many steps are currently flagged for whose.
func (v *Var) DirtySteps(whose varstore.Whose) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.dirty[whose])
}

func (v *Var) ModDev() {
	v.mu.Lock()
	v.devModified = true
	v.mu.Unlock()
}

// DevModified reports whether ModDev was called since the last SyncDev.
func (v *Var) DevModified() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.devModified
}

// SyncDev clears the device-modification marker after a copy to the device.
func (v *Var) SyncDev() {
	v.mu.Lock()
	v.devModified = false
	v.mu.Unlock()
}

func (v *Var) UpdateValidStep(step int64) {
	v.mu.Lock()
	v.lastValidStep = step
	v.hasValidStep = true
	v.mu.Unlock()
}

// LastValidStep returns the newest valid step, if any was recorded.
func (v *Var) LastValidStep() (int64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastValidStep, v.hasValidStep
}

// Vars converts a slice of in-memory vars to the interface slice bundles
// are built from.
func Vars(vs ...*Var) []varstore.Var {
	out := make([]varstore.Var, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
