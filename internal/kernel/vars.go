package kernel

import (
	"github.com/vk/stencilgo/internal/bbox"
	"github.com/vk/stencilgo/internal/config"
	"github.com/vk/stencilgo/internal/dims"
	"github.com/vk/stencilgo/internal/idx"
	"github.com/vk/stencilgo/internal/inmemoryvars"
)

// buildVars allocates the rank-local variables. Every var covers the rank
// domain in each of its domain dims. Scratch vars get one instance per
// outer thread and enough extra points on each side to hold any span
// widened by the largest scratch halo and re-aligned to the fold.
func buildVars(d *dims.Dims, domain bbox.BoundingBox, defs []*config.Var, outerThreads int) (map[string][]*inmemoryvars.Var, error) {
	specs := make([]inmemoryvars.Spec, len(defs))
	seen := make(map[string]bool, len(defs))
	nd := d.NumDomainDims()
	maxLH, maxRH := idx.NewIndices(nd), idx.NewIndices(nd)
	for i, def := range defs {
		if seen[def.Name] {
			return nil, invalidf("duplicate var %q", def.Name)
		}
		seen[def.Name] = true
		spec, err := varSpec(d, domain, def)
		if err != nil {
			return nil, err
		}
		specs[i] = spec
		if !def.Scratch {
			continue
		}
		for p, name := range spec.Dims {
			if j := d.DomainIndex(name); j >= 0 {
				maxLH[j] = max(maxLH[j], spec.LeftHalo[p])
				maxRH[j] = max(maxRH[j], spec.RightHalo[p])
			}
		}
	}

	out := make(map[string][]*inmemoryvars.Var, len(defs))
	for _, spec := range specs {
		if !spec.Scratch {
			v, err := inmemoryvars.New(spec)
			if err != nil {
				return nil, invalidf("%v", err)
			}
			out[spec.Name] = []*inmemoryvars.Var{v}
			continue
		}

		for p, name := range spec.Dims {
			if j := d.DomainIndex(name); j >= 0 {
				left := d.FoldPts[j] - 1 + maxLH[j] - spec.LeftHalo[p]
				right := d.FoldPts[j] - 1 + maxRH[j] - spec.RightHalo[p]
				spec.FirstDomainIndex[p] -= left
				spec.DomainSize[p] += left + right
			}
		}
		vec, err := inmemoryvars.NewScratchVec(spec, outerThreads)
		if err != nil {
			return nil, invalidf("%v", err)
		}
		out[spec.Name] = vec
	}
	return out, nil
}

func varSpec(d *dims.Dims, domain bbox.BoundingBox, def *config.Var) (inmemoryvars.Spec, error) {
	n := len(def.Dims)
	spec := inmemoryvars.Spec{
		Name:             def.Name,
		Dims:             def.Dims,
		LeftHalo:         idx.NewIndices(n),
		RightHalo:        idx.NewIndices(n),
		FirstDomainIndex: idx.NewIndices(n),
		DomainSize:       idx.Filled(n, 1),
		Scratch:          def.Scratch,
	}

	posn := make(map[string]int, n)
	domainDims := 0
	for i, name := range def.Dims {
		if _, dup := posn[name]; dup {
			return spec, invalidf("var %q: duplicate dim %q", def.Name, name)
		}
		posn[name] = i
		switch j := d.DomainIndex(name); {
		case j >= 0:
			spec.FirstDomainIndex[i] = domain.Begin[j]
			spec.DomainSize[i] = domain.End[j] - domain.Begin[j]
			domainDims++
		case name == d.StepDim:
			if def.Scratch {
				return spec, invalidf("scratch var %q cannot use step dim %q", def.Name, name)
			}
		default:
			return spec, invalidf("var %q: %q is neither the step dim nor a domain dim", def.Name, name)
		}
	}
	spec.Domain = !def.Scratch && domainDims == d.NumDomainDims()

	halo := func(m map[string]int64, into idx.Indices, side string) error {
		for name, h := range m {
			i, ok := posn[name]
			if !ok || d.DomainIndex(name) < 0 {
				return invalidf("var %q: %s halo on %q, which is not one of its domain dims", def.Name, side, name)
			}
			if h < 0 {
				return invalidf("var %q: negative %s halo on %q", def.Name, side, name)
			}
			into[i] = h
		}
		return nil
	}
	if err := halo(def.LeftHalo, spec.LeftHalo, "left"); err != nil {
		return spec, err
	}
	if err := halo(def.RightHalo, spec.RightHalo, "right"); err != nil {
		return spec, err
	}
	return spec, nil
}
