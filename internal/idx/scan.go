package idx

import "fmt"

// ScanIndices describes one nested iteration space: a half-open range per
// stencil dimension, the tile stride and the tile alignment grid.
//
// Each blocking level owns its own copy; derive a child level with Clone.
type ScanIndices struct {
	Begin    Indices
	End      Indices
	Stride   Indices
	Align    Indices
	AlignOfs Indices
}

// NewScanIndices returns an empty range over n dims with unit strides and
// unit alignment.
func NewScanIndices(n int) ScanIndices {
	return ScanIndices{
		Begin:    NewIndices(n),
		End:      NewIndices(n),
		Stride:   Filled(n, 1),
		Align:    Filled(n, 1),
		AlignOfs: NewIndices(n),
	}
}

// NumDims returns the number of stencil dims covered.
func (s ScanIndices) NumDims() int {
	return len(s.Begin)
}

// Clone returns a deep copy.
func (s ScanIndices) Clone() ScanIndices {
	return ScanIndices{
		Begin:    s.Begin.Clone(),
		End:      s.End.Clone(),
		Stride:   s.Stride.Clone(),
		Align:    s.Align.Clone(),
		AlignOfs: s.AlignOfs.Clone(),
	}
}

// OverallRange returns End-Begin in stencil dim i. It is negative when the
// dim runs backward.
func (s ScanIndices) OverallRange(i int) int64 {
	return s.End[i] - s.Begin[i]
}

// AdjustFromSettings sets the stride of each domain dim to the matching
// entry of nanoSizes (indexed by domain position). A size of zero or less
// means one tile spans the whole range.
func (s *ScanIndices) AdjustFromSettings(nanoSizes Indices, posns []DimPosn) {
	for _, p := range posns {
		width := s.OverallRange(p.Stencil)
		sz := int64(0)
		if p.Domain < len(nanoSizes) {
			sz = nanoSizes[p.Domain]
		}
		if sz <= 0 || sz > width {
			sz = width
		}
		if sz < 1 {
			sz = 1
		}
		s.Stride[p.Stencil] = sz
	}
}

// String renders the range as "[b ... e) by stride".
func (s ScanIndices) String() string {
	return fmt.Sprintf("[%s ... %s) by %s", s.Begin, s.End, s.Stride)
}

// NanoRange is one leaf tile produced by Walk.
type NanoRange struct {
	Start Indices
	Stop  Indices
}

// NumPoints returns the number of points in the tile.
func (r NanoRange) NumPoints() int64 {
	n := int64(1)
	for i := range r.Start {
		w := r.Stop[i] - r.Start[i]
		if w < 0 {
			w = -w
		}
		n *= w
	}
	return n
}

// String renders the tile as "[start ... stop)".
func (r NanoRange) String() string {
	return fmt.Sprintf("[%s ... %s)", r.Start, r.Stop)
}
