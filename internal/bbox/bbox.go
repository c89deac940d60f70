// Package bbox provides axis-aligned rectangular regions of the domain and
// the trimming of iteration ranges against them.
package bbox

import (
	"github.com/vk/stencilgo/internal/dims"
	"github.com/vk/stencilgo/internal/idx"
)

// BoundingBox is indexed by domain dim. NumPoints counts the valid points
// inside it and may be less than Size when the box bounds a sparse
// sub-domain; boxes built by New are full rectangles.
type BoundingBox struct {
	Begin     idx.Indices
	End       idx.Indices
	NumPoints int64
	Size      int64
}

// New builds a full rectangle [begin, end). Any non-positive extent yields
// a box with zero points.
func New(begin, end idx.Indices) BoundingBox {
	bb := BoundingBox{Begin: begin.Clone(), End: end.Clone()}
	bb.Size = volume(bb.Begin, bb.End)
	bb.NumPoints = bb.Size
	return bb
}

func volume(begin, end idx.Indices) int64 {
	n := int64(1)
	for j := range begin {
		w := end[j] - begin[j]
		if w <= 0 {
			return 0
		}
		n *= w
	}
	return n
}

// Valid reports whether the box holds any point.
func (bb BoundingBox) Valid() bool {
	return bb.NumPoints > 0
}

// IsFull reports whether every point in the rectangle is valid.
func (bb BoundingBox) IsFull() bool {
	return bb.NumPoints == bb.Size
}

// Equal compares bounds and counts.
func (bb BoundingBox) Equal(o BoundingBox) bool {
	if len(bb.Begin) != len(o.Begin) || bb.NumPoints != o.NumPoints {
		return false
	}
	for j := range bb.Begin {
		if bb.Begin[j] != o.Begin[j] || bb.End[j] != o.End[j] {
			return false
		}
	}
	return true
}

// IntersectionWith returns the full rectangle shared by both boxes. When they
// are disjoint the result has zero points.
func (bb BoundingBox) IntersectionWith(o BoundingBox) BoundingBox {
	n := len(bb.Begin)
	begin, end := idx.NewIndices(n), idx.NewIndices(n)
	for j := 0; j < n; j++ {
		begin[j] = max(bb.Begin[j], o.Begin[j])
		end[j] = min(bb.End[j], o.End[j])
	}
	return New(begin, end)
}

// Overlaps reports whether the domain part of idxs intersects the box.
func (bb BoundingBox) Overlaps(idxs idx.ScanIndices, posns []idx.DimPosn) bool {
	for _, p := range posns {
		if min(idxs.End[p.Stencil], bb.End[p.Domain]) <= max(idxs.Begin[p.Stencil], bb.Begin[p.Domain]) {
			return false
		}
	}
	return true
}

// Trim confines the domain dims of idxs to the box. The returned copy keeps
// every other field of idxs. The second result is false as soon as any dim
// has no overlap; equal bounds count as no overlap.
func (bb BoundingBox) Trim(idxs idx.ScanIndices, posns []idx.DimPosn) (idx.ScanIndices, bool) {
	out := idxs.Clone()
	for _, p := range posns {
		b := max(idxs.Begin[p.Stencil], bb.Begin[p.Domain])
		e := min(idxs.End[p.Stencil], bb.End[p.Domain])
		if e <= b {
			return out, false
		}
		out.Begin[p.Stencil] = b
		out.End[p.Stencil] = e
	}
	return out, true
}

// RangeString renders the box with the names in d.
func (bb BoundingBox) RangeString(d *dims.Dims) string {
	return d.RangeString(bb.Begin, bb.End)
}

// LenString renders the box lengths with the names in d.
func (bb BoundingBox) LenString(d *dims.Dims) string {
	return d.LenString(bb.Begin, bb.End)
}
