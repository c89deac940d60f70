package kernel

import (
	"context"

	"github.com/vk/stencilgo/internal/bbox"
	"github.com/vk/stencilgo/internal/bundle"
	"github.com/vk/stencilgo/internal/config"
	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/handlers"
	"github.com/vk/stencilgo/internal/idx"
	"github.com/vk/stencilgo/internal/inmemoryvars"
	"github.com/vk/stencilgo/internal/varstore"
)

func (k *Kernel) buildBundles(ctx context.Context, defs []*config.Bundle, conv config.Converter, h *handlers.Handlers) (*bundle.Set, error) {
	logger := ctxlog.FromContext(ctx)
	set := bundle.NewSet()

	for _, def := range defs {
		cfg := bundle.Config{
			Name:                 def.Name,
			Scratch:              def.Scratch,
			Dims:                 k.Dims,
			ReadsPerPoint:        def.ReadsPerPoint,
			WritesPerPoint:       def.WritesPerPoint,
			FPOpsPerPoint:        def.FPOpsPerPoint,
			StepCondDescription:  def.StepCondSource,
			SubDomainDescription: def.SubDomain,
		}

		var err error
		if cfg.BBs, err = k.boxes(def); err != nil {
			return nil, err
		}
		if cfg.Inputs, _, err = k.lookupVars(def, def.Inputs, "input"); err != nil {
			return nil, err
		}
		var scratchOut [][]varstore.Var
		if cfg.Outputs, scratchOut, err = k.lookupVars(def, def.Outputs, "output"); err != nil {
			return nil, err
		}
		if def.Scratch {
			if len(cfg.Outputs) > 0 {
				return nil, invalidf("scratch bundle %q writes non-scratch var %q", def.Name, cfg.Outputs[0].Name())
			}
			cfg.OutputScratch = scratchOut
		} else {
			if len(scratchOut) > 0 {
				return nil, invalidf("bundle %q writes scratch var %q but is not a scratch bundle", def.Name, scratchOut[0][0].Name())
			}
		}

		if def.StepCond != nil {
			cond, err := conv.StepCond(ctx, def.StepCond, k.Dims.StepDim)
			if err != nil {
				return nil, invalidf("bundle %q: %v", def.Name, err)
			}
			cfg.StepCond = cond
		}

		evalDef := def.Evaluator
		if evalDef == nil {
			evalDef = &config.Evaluator{Type: handlers.Noop}
		}
		if cfg.Eval, err = h.Build(ctx, conv, evalDef); err != nil {
			return nil, invalidf("bundle %q: %v", def.Name, err)
		}

		b, err := bundle.New(cfg)
		if err != nil {
			return nil, invalidf("%v", err)
		}
		if err := set.Add(b); err != nil {
			return nil, invalidf("%v", err)
		}
		logger.Debug("Bundle built.", "bundle", def.Name, "scratch", def.Scratch, "boxes", len(cfg.BBs), "evaluator", evalDef.Type)
	}

	for _, def := range defs {
		for _, used := range def.Uses {
			if err := set.AddScratchDep(def.Name, used); err != nil {
				return nil, invalidf("%v", err)
			}
		}
	}
	if err := set.Resolve(); err != nil {
		return nil, invalidf("%v", err)
	}
	return set, nil
}

// boxes converts the declared boxes to rank-local full rectangles. A dim a
// box leaves out spans the rank domain; every box is clipped to it.
func (k *Kernel) boxes(def *config.Bundle) ([]bbox.BoundingBox, error) {
	if len(def.Boxes) == 0 {
		return []bbox.BoundingBox{k.Domain}, nil
	}
	out := make([]bbox.BoundingBox, 0, len(def.Boxes))
	for i, box := range def.Boxes {
		begin, end := k.Domain.Begin.Clone(), k.Domain.End.Clone()
		set := func(m map[string]int64, into idx.Indices, side string) error {
			for name, v := range m {
				j := k.Dims.DomainIndex(name)
				if j < 0 {
					return invalidf("bundle %q: box %d: %s on %q, which is not a domain dim", def.Name, i, side, name)
				}
				into[j] = v
			}
			return nil
		}
		if err := set(box.Begin, begin, "begin"); err != nil {
			return nil, err
		}
		if err := set(box.End, end, "end"); err != nil {
			return nil, err
		}
		out = append(out, bbox.New(begin, end).IntersectionWith(k.Domain))
	}
	return out, nil
}

// lookupVars resolves names. Scratch vars come back as their per-thread
// instance vectors, the rest as plain vars. For inputs a scratch var is
// represented by its first instance in the plain list.
func (k *Kernel) lookupVars(def *config.Bundle, names []string, role string) ([]varstore.Var, [][]varstore.Var, error) {
	var plain []varstore.Var
	var scratch [][]varstore.Var
	for _, name := range names {
		vs, ok := k.vars[name]
		if !ok {
			return nil, nil, invalidf("bundle %q: unknown %s var %q", def.Name, role, name)
		}
		if vs[0].IsScratch() && role == "output" {
			scratch = append(scratch, inmemoryvars.Vars(vs...))
			continue
		}
		plain = append(plain, vs[0])
	}
	return plain, scratch, nil
}
