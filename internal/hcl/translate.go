// This file contains the logic for translating HCL schema structs into the
// format-agnostic kernel model defined in the config package.

package hcl

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/stencilgo/internal/config"
	"github.com/vk/stencilgo/internal/ctxlog"
)

// translateKernel converts the HCL-specific kernel schema into the agnostic model.
func (l *Loader) translateKernel(ctx context.Context, k *Kernel) (*config.Kernel, error) {
	logger := ctxlog.FromContext(ctx).With("kernel", k.Name)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Translating HCL kernel to internal config model.")

	out := &config.Kernel{
		Name:        k.Name,
		StepDim:     k.StepDim,
		DomainDims:  k.DomainDims,
		StencilDims: k.StencilDims,
		StepDir:     k.StepDir,
	}
	var err error
	if out.Fold, err = l.dimMap(ctx, k.Fold, "fold"); err != nil {
		return nil, fmt.Errorf("kernel %q: %w", k.Name, err)
	}
	if out.DomainSize, err = l.dimMap(ctx, k.DomainSize, "domain_size"); err != nil {
		return nil, fmt.Errorf("kernel %q: %w", k.Name, err)
	}
	if out.FirstIndex, err = l.dimMap(ctx, k.FirstIndex, "first_index"); err != nil {
		return nil, fmt.Errorf("kernel %q: %w", k.Name, err)
	}
	return out, nil
}

// translateVar converts the HCL-specific var schema into the agnostic model.
func (l *Loader) translateVar(ctx context.Context, v *Var) (*config.Var, error) {
	out := &config.Var{Name: v.Name, Dims: v.Dims, Scratch: v.Scratch}
	var err error
	if out.LeftHalo, err = l.dimMap(ctx, v.LeftHalo, "left_halo"); err != nil {
		return nil, fmt.Errorf("var %q: %w", v.Name, err)
	}
	if out.RightHalo, err = l.dimMap(ctx, v.RightHalo, "right_halo"); err != nil {
		return nil, fmt.Errorf("var %q: %w", v.Name, err)
	}
	return out, nil
}

// translateBundle converts the HCL-specific bundle schema into the agnostic
// model. src is the file the bundle came from; the step condition keeps its
// source text for reports.
func (l *Loader) translateBundle(ctx context.Context, b *Bundle, src []byte) (*config.Bundle, error) {
	logger := ctxlog.FromContext(ctx).With("bundle", b.Name)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Translating HCL bundle to internal config model.")

	out := &config.Bundle{
		Name:           b.Name,
		Scratch:        b.Scratch,
		Inputs:         b.Inputs,
		Outputs:        b.Outputs,
		Uses:           b.Uses,
		ReadsPerPoint:  b.ReadsPerPoint,
		WritesPerPoint: b.WritesPerPoint,
		FPOpsPerPoint:  b.FPOpsPerPoint,
		SubDomain:      b.SubDomain,
	}

	if isExprDefined(ctx, b.StepCond, "step_cond") {
		out.StepCond = b.StepCond
		out.StepCondSource = exprSource(b.StepCond, src)
	}

	if b.Evaluator != nil {
		args, err := bodyAttributes(b.Evaluator.Body)
		if err != nil {
			return nil, fmt.Errorf("bundle %q: evaluator %q: %w", b.Name, b.Evaluator.Type, err)
		}
		out.Evaluator = &config.Evaluator{Type: b.Evaluator.Type, Arguments: args}
	}

	for i, box := range b.Boxes {
		begin, err := l.dimMap(ctx, box.Begin, "begin")
		if err != nil {
			return nil, fmt.Errorf("bundle %q: box %d: %w", b.Name, i, err)
		}
		end, err := l.dimMap(ctx, box.End, "end")
		if err != nil {
			return nil, fmt.Errorf("bundle %q: box %d: %w", b.Name, i, err)
		}
		out.Boxes = append(out.Boxes, &config.Box{Begin: begin, End: end})
	}
	return out, nil
}

// translateSettings converts the HCL-specific settings schema into the agnostic model.
func (l *Loader) translateSettings(ctx context.Context, s *Settings) (*config.Settings, error) {
	out := &config.Settings{
		OuterThreads:     s.OuterThreads,
		InnerThreads:     s.InnerThreads,
		BindInnerThreads: s.BindInnerThreads,
		BindDim:          s.BindDim,
		CheckBounds:      s.CheckBounds,
	}
	var err error
	if out.MicroBlock, err = l.dimMap(ctx, s.MicroBlock, "micro_block"); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if out.NanoBlock, err = l.dimMap(ctx, s.NanoBlock, "nano_block"); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	return out, nil
}

// dimMap evaluates an object such as `{ x = 4, y = 1 }` into a map keyed by
// dim name. An absent or null attribute gives a nil map.
func (l *Loader) dimMap(ctx context.Context, expr hcl.Expression, attrName string) (map[string]int64, error) {
	if !isExprDefined(ctx, expr, attrName) {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid %s: %w", attrName, diags)
	}
	if val.IsNull() {
		return nil, nil
	}
	var out map[string]int64
	if err := l.converter.decode(ctx, val, &out); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", attrName, err)
	}
	return out, nil
}

// exprSource returns the expression as written, or "" when the range is not
// inside src.
func exprSource(expr hcl.Expression, src []byte) string {
	rng := expr.Range()
	if rng.Start.Byte < 0 || rng.End.Byte > len(src) || rng.Start.Byte >= rng.End.Byte {
		return ""
	}
	return strings.TrimSpace(string(rng.SliceBytes(src)))
}
