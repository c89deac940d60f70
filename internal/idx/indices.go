package idx

import (
	"strconv"
	"strings"
)

// Indices holds one value per dimension.
type Indices []int64

// NewIndices returns n zeros.
func NewIndices(n int) Indices {
	return make(Indices, n)
}

// Filled returns n copies of v.
func Filled(n int, v int64) Indices {
	out := make(Indices, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Clone returns an independent copy.
func (v Indices) Clone() Indices {
	if v == nil {
		return nil
	}
	out := make(Indices, len(v))
	copy(out, v)
	return out
}

// Product multiplies all values; an empty tuple yields 1.
func (v Indices) Product() int64 {
	p := int64(1)
	for _, x := range v {
		p *= x
	}
	return p
}

// String renders the values separated by commas, e.g. "0, 4, 8".
func (v Indices) String() string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatInt(x, 10)
	}
	return strings.Join(parts, ", ")
}

// DimPosn pairs the position of a dimension in a unit's stencil-dim list
// with its position in the canonical domain-dim list.
type DimPosn struct {
	Stencil int
	Domain  int
}
