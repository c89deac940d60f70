// Package varstore defines the interface the engine consumes from the grid
// storage layer.
//
// # Why Var Is an Interface
//
// Allocation, halo padding and accelerator coherence belong to the storage
// layer, not to the micro-block engine. The engine only needs a narrow view
// of each variable:
//   - **Geometry:** dimension positions, halo widths and local index bounds,
//     used to size and check scratch spans
//   - **Classification:** domain vs. other, scratch vs. exchanged
//   - **Bookkeeping:** dirty flags, device-modification marker and last
//     valid step, written after a unit completes
//
// The halo-exchange transport reads the bookkeeping fields and is the only
// component allowed to clear a dirty flag.
//
// # Thread-Safety Requirements
//
// Several outer workers may finish micro-blocks of the same unit at the same
// time and mark the same variable. Implementations MUST make the bookkeeping
// mutators safe for concurrent use. The marks are idempotent, so ordering
// between workers does not matter.
//
// See internal/inmemoryvars for the reference implementation.
package varstore

// Whose selects the perspective a dirty flag is kept for.
type Whose int

const (
	// Self marks data this rank must send to its neighbors.
	Self Whose = iota
	// Neighbor marks data a neighbor has changed and this rank must receive.
	Neighbor
)

// String implements fmt.Stringer.
func (w Whose) String() string {
	switch w {
	case Self:
		return "self"
	case Neighbor:
		return "neighbor"
	default:
		return "unknown"
	}
}

// Var is the engine's view of one grid variable.
type Var interface {
	// Name returns the variable name.
	Name() string

	// DimPosn returns the position of dim in this variable's own dim list,
	// or -1 when the variable is not indexed by it.
	DimPosn(dim string) int

	// LeftHaloSize and RightHaloSize return the halo widths at posn.
	LeftHaloSize(posn int) int64
	RightHaloSize(posn int) int64

	// FirstLocalIndex and LastLocalIndex return the inclusive allocated
	// bounds at posn, halos included.
	FirstLocalIndex(posn int) int64
	LastLocalIndex(posn int) int64

	// IsDomainVar reports whether the variable spans the domain dims and
	// takes part in halo exchange.
	IsDomainVar() bool

	// IsScratch reports whether the variable holds per-thread temporaries.
	IsScratch() bool

	// SetDirty sets the flag kept for whose at step.
	SetDirty(whose Whose, dirty bool, step int64)

	// IsDirty reads the flag kept for whose at step.
	IsDirty(whose Whose, step int64) bool

	// ModDev records that host data changed and the device copy is stale.
	ModDev()

	// UpdateValidStep records step as the newest step holding valid data.
	UpdateValidStep(step int64)
}
