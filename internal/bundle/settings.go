package bundle

import "github.com/vk/stencilgo/internal/idx"

// Settings are the execution settings the outer driver passes with every
// micro-block. Block sizes are indexed by domain dim.
type Settings struct {
	MicroBlockSizes idx.Indices
	NanoBlockSizes  idx.Indices

	// InnerThreads is the number of workers started inside one micro-block.
	InnerThreads int

	// BindInnerThreads enables slab binding when InnerThreads > 1.
	// BindPosn is the stencil position of the sliced dim; the slab width is
	// the nano-block size of that dim.
	BindInnerThreads bool
	BindPosn         int

	// CheckBounds asserts that expanded scratch spans fit their storage.
	CheckBounds bool
}

// MPISection tells the evaluator which exterior parts of the rank domain
// the current call covers.
type MPISection struct {
	DoLeft  bool
	DoRight bool
}

// Exterior reports whether boundary data is touched by this call.
func (s MPISection) Exterior() bool {
	return s.DoLeft || s.DoRight
}

func (s *Settings) slabPts(posns []idx.DimPosn) int64 {
	for _, p := range posns {
		if p.Stencil == s.BindPosn {
			if p.Domain < len(s.NanoBlockSizes) {
				return s.NanoBlockSizes[p.Domain]
			}
			return 0
		}
	}
	assertf(false, nil, "binding position %d is not a domain dim", s.BindPosn)
	return 0
}
