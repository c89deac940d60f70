// Package dims describes the axes of the grid: exactly one step dimension
// and N domain dimensions, plus the order in which the stencil iterates them.
// It owns the mapping between a position in the stencil-dim list and a
// position in the domain-dim list.
package dims

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/stencilgo/internal/idx"
)

// Dims is immutable once built.
type Dims struct {
	StepDim     string
	DomainDims  []string
	StencilDims []string

	// FoldPts is the vector length per domain dim. Scratch spans are
	// re-aligned to it.
	FoldPts idx.Indices

	// StepDir is +1 for kernels stepping forward in time, -1 for backward.
	StepDir int64

	stepPosn int
	posns    []idx.DimPosn
}

// New validates and indexes the dimension lists. A nil stencilDims means the
// step dim followed by the domain dims. A nil fold means unit vectors.
func New(stepDim string, domainDims, stencilDims []string, fold idx.Indices, stepDir int64) (*Dims, error) {
	if stepDim == "" {
		return nil, errors.New("step dimension name is required")
	}
	if len(domainDims) == 0 {
		return nil, errors.New("at least one domain dimension is required")
	}
	if stencilDims == nil {
		stencilDims = append([]string{stepDim}, domainDims...)
	}
	if fold == nil {
		fold = idx.Filled(len(domainDims), 1)
	}
	if len(fold) != len(domainDims) {
		return nil, fmt.Errorf("fold has %d entries for %d domain dims", len(fold), len(domainDims))
	}
	if stepDir == 0 {
		stepDir = 1
	}

	d := &Dims{
		StepDim:     stepDim,
		DomainDims:  append([]string(nil), domainDims...),
		StencilDims: append([]string(nil), stencilDims...),
		FoldPts:     fold.Clone(),
		StepDir:     stepDir,
		stepPosn:    -1,
	}

	domainIndex := make(map[string]int, len(domainDims))
	for j, name := range domainDims {
		if name == stepDim {
			return nil, fmt.Errorf("dimension %q is both step and domain", name)
		}
		if _, dup := domainIndex[name]; dup {
			return nil, fmt.Errorf("duplicate domain dimension %q", name)
		}
		domainIndex[name] = j
	}

	seen := make(map[string]bool, len(stencilDims))
	for i, name := range stencilDims {
		if seen[name] {
			return nil, fmt.Errorf("duplicate stencil dimension %q", name)
		}
		seen[name] = true
		if name == stepDim {
			d.stepPosn = i
			continue
		}
		j, ok := domainIndex[name]
		if !ok {
			return nil, fmt.Errorf("stencil dimension %q is neither the step dim nor a domain dim", name)
		}
		d.posns = append(d.posns, idx.DimPosn{Stencil: i, Domain: j})
	}
	if d.stepPosn < 0 {
		return nil, fmt.Errorf("stencil dimensions %v omit step dim %q", stencilDims, stepDim)
	}
	if len(d.posns) != len(domainDims) {
		return nil, fmt.Errorf("stencil dimensions %v do not cover domain dims %v", stencilDims, domainDims)
	}
	return d, nil
}

// NumStencilDims returns the length of the stencil-dim list.
func (d *Dims) NumStencilDims() int { return len(d.StencilDims) }

// NumDomainDims returns N.
func (d *Dims) NumDomainDims() int { return len(d.DomainDims) }

// StepPosn returns the step dim's position in the stencil-dim list.
func (d *Dims) StepPosn() int { return d.stepPosn }

// DomainPosns lists every domain dim with its stencil position, in
// stencil order. The slice is shared; do not modify it.
func (d *Dims) DomainPosns() []idx.DimPosn { return d.posns }

// DomainIndex returns the position of name in the domain-dim list, or -1.
func (d *Dims) DomainIndex(name string) int {
	for j, n := range d.DomainDims {
		if n == name {
			return j
		}
	}
	return -1
}

// RangeString renders a domain-indexed box as "x=0...9, y=0...9" with
// inclusive last indices.
func (d *Dims) RangeString(begin, end idx.Indices) string {
	parts := make([]string, len(d.DomainDims))
	for j, name := range d.DomainDims {
		parts[j] = fmt.Sprintf("%s=%d...%d", name, begin[j], end[j]-1)
	}
	return strings.Join(parts, ", ")
}

// LenString renders per-dim lengths as "x=10 * y=10".
func (d *Dims) LenString(begin, end idx.Indices) string {
	parts := make([]string, len(d.DomainDims))
	for j, name := range d.DomainDims {
		parts[j] = fmt.Sprintf("%s=%d", name, end[j]-begin[j])
	}
	return strings.Join(parts, " * ")
}
