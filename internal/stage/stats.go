package stage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/vk/stencilgo/internal/bundle"
	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/env"
	"github.com/vk/stencilgo/internal/varstore"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Counts are per-step estimates for one required bundle.
type Counts struct {
	Bundle string `json:"bundle"`
	Points int64  `json:"points"`
	Reads  int64  `json:"reads"`
	Writes int64  `json:"writes"`
	FPOps  int64  `json:"fp_ops"`
}

// BundleStats holds the estimates of a non-scratch bundle and every bundle
// it requires, in evaluation order.
type BundleStats struct {
	Bundle   string     `json:"bundle"`
	Required []Counts   `json:"required"`
	Vars     VarClasses `json:"vars"`
}

// VarClasses sorts the variables of a bundle into six disjoint groups by
// direction and by whether they span the domain. It is diagnostic only.
type VarClasses struct {
	InputDomain       []string `json:"input_only_domain,omitempty"`
	OutputDomain      []string `json:"output_only_domain,omitempty"`
	InputOutputDomain []string `json:"input_output_domain,omitempty"`
	InputOther        []string `json:"input_only_other,omitempty"`
	OutputOther       []string `json:"output_only_other,omitempty"`
	InputOutputOther  []string `json:"input_output_other,omitempty"`
}

// WorkStats are the per-step work estimates of a stage. The rank-local
// figures are summed over the required bundles of every bundle; the Tot
// figures are those summed over all ranks. Scratch work in the pad area
// around a box is not counted, so all figures are approximate.
type WorkStats struct {
	ReadsPerStep  int64 `json:"reads_per_step"`
	WritesPerStep int64 `json:"writes_per_step"`
	FPOpsPerStep  int64 `json:"fp_ops_per_step"`

	TotReadsPerStep  int64 `json:"tot_reads_per_step"`
	TotWritesPerStep int64 `json:"tot_writes_per_step"`
	TotFPOpsPerStep  int64 `json:"tot_fp_ops_per_step"`

	Bundles []BundleStats `json:"bundles"`
}

// InitWorkStats computes the stage's work estimates, writes a report to w
// and reduces the totals over the ranks of e. Every rank must call it.
func (s *Stage) InitWorkStats(ctx context.Context, e env.Env, w io.Writer) error {
	p := message.NewPrinter(language.English)
	var ws WorkStats

	p.Fprintf(w, "Stage '%s':\n", s.name)
	p.Fprintf(w, " num non-scratch bundles:     %d\n", len(s.bundles))
	p.Fprintf(w, " stage scope:                 %s\n", s.bb.RangeString(s.dims))

	for _, sg := range s.bundles {
		reqd := sg.RequiredBundles()
		p.Fprintf(w, " Non-scratch bundle '%s':\n", sg.Name())
		p.Fprintf(w, "  num reqd scratch bundles:   %d\n", len(sg.ScratchChildren()))

		counts := accumulate(sg)
		bs := BundleStats{Bundle: sg.Name(), Required: counts}

		for i, rsg := range reqd {
			c := counts[i]
			p.Fprintf(w, "  Bundle '%s':\n", rsg.Name())
			if rsg.IsSubDomainExpr() {
				p.Fprintf(w, "   sub-domain expr:            '%s'\n", rsg.SubDomainDescription())
			}
			if rsg.IsStepCondExpr() {
				p.Fprintf(w, "   step-condition expr:        '%s'\n", rsg.StepCondDescription())
			}
			p.Fprintf(w, "   points to eval in bundle:   %d\n", c.Points)
			p.Fprintf(w, "   var-reads per point:        %d\n", rsg.ReadsPerPoint())
			p.Fprintf(w, "   var-writes per point:       %d\n", rsg.WritesPerPoint())
			p.Fprintf(w, "   est FP-ops per point:       %d\n", rsg.FPOpsPerPoint())
			p.Fprintf(w, "   var-reads in rank:          %d\n", c.Reads)
			p.Fprintf(w, "   var-writes in rank:         %d\n", c.Writes)
			p.Fprintf(w, "   est FP-ops in rank:         %d\n", c.FPOps)

			ws.ReadsPerStep += c.Reads
			ws.WritesPerStep += c.Writes
			ws.FPOpsPerStep += c.FPOps

			p.Fprintf(w, "   bundle scope:               %s\n", rsg.BB().RangeString(s.dims))
			bbs := rsg.BBs()
			p.Fprintf(w, "   num full rectangles in box: %d\n", len(bbs))
			for ri, rbb := range bbs {
				p.Fprintf(w, "    Rectangle %d:\n", ri)
				p.Fprintf(w, "     num points in rect:       %d\n", rbb.Size)
				if rbb.Size > 0 {
					p.Fprintf(w, "     rect scope:               %s\n", rbb.RangeString(s.dims))
					p.Fprintf(w, "     rect size:                %s\n", rbb.LenString(s.dims))
				}
			}
		}

		bs.Vars = classify(sg)
		printVarList(w, p, bs.Vars.InputDomain, "input-only domain")
		printVarList(w, p, bs.Vars.OutputDomain, "output-only domain")
		printVarList(w, p, bs.Vars.InputOutputDomain, "input-output domain")
		printVarList(w, p, bs.Vars.InputOther, "input-only other")
		printVarList(w, p, bs.Vars.OutputOther, "output-only other")
		printVarList(w, p, bs.Vars.InputOutputOther, "input-output other")

		ws.Bundles = append(ws.Bundles, bs)
	}

	var err error
	if ws.TotReadsPerStep, err = e.SumOverRanks(ctx, ws.ReadsPerStep); err != nil {
		return fmt.Errorf("stage %q: summing reads: %w", s.name, err)
	}
	if ws.TotWritesPerStep, err = e.SumOverRanks(ctx, ws.WritesPerStep); err != nil {
		return fmt.Errorf("stage %q: summing writes: %w", s.name, err)
	}
	if ws.TotFPOpsPerStep, err = e.SumOverRanks(ctx, ws.FPOpsPerStep); err != nil {
		return fmt.Errorf("stage %q: summing FP ops: %w", s.name, err)
	}

	ctxlog.FromContext(ctx).Debug("Work stats computed",
		"stage", s.name,
		"rank", e.Rank(),
		"readsPerStep", ws.ReadsPerStep,
		"totReadsPerStep", ws.TotReadsPerStep,
		"totWritesPerStep", ws.TotWritesPerStep,
		"totFPOpsPerStep", ws.TotFPOpsPerStep,
	)

	s.mu.Lock()
	s.stats = ws
	s.mu.Unlock()
	return nil
}

// accumulate intersects every full box of sg with every box of each bundle
// it requires and weights the overlap by that bundle's per-point costs.
// The result is indexed like sg.RequiredBundles().
func accumulate(sg *bundle.Bundle) []Counts {
	reqd := sg.RequiredBundles()
	out := make([]Counts, len(reqd))
	for i, rsg := range reqd {
		out[i].Bundle = rsg.Name()
	}
	for _, fbb := range sg.BBs() {
		for i, rsg := range reqd {
			for _, fnbb := range rsg.BBs() {
				n := fbb.IntersectionWith(fnbb).NumPoints
				out[i].Points += n
				out[i].Reads += rsg.ReadsPerPoint() * n
				out[i].Writes += rsg.WritesPerPoint() * n
				out[i].FPOps += rsg.FPOpsPerPoint() * n
			}
		}
	}
	return out
}

func classify(sg *bundle.Bundle) VarClasses {
	var vc VarClasses
	has := func(list []varstore.Var, v varstore.Var) bool {
		for _, x := range list {
			if x == v {
				return true
			}
		}
		return false
	}
	for _, v := range sg.Inputs() {
		switch out, dom := has(sg.Outputs(), v), v.IsDomainVar(); {
		case out && dom:
			vc.InputOutputDomain = append(vc.InputOutputDomain, v.Name())
		case out:
			vc.InputOutputOther = append(vc.InputOutputOther, v.Name())
		case dom:
			vc.InputDomain = append(vc.InputDomain, v.Name())
		default:
			vc.InputOther = append(vc.InputOther, v.Name())
		}
	}
	for _, v := range sg.Outputs() {
		if has(sg.Inputs(), v) {
			continue
		}
		if v.IsDomainVar() {
			vc.OutputDomain = append(vc.OutputDomain, v.Name())
		} else {
			vc.OutputOther = append(vc.OutputOther, v.Name())
		}
	}
	return vc
}

func printVarList(w io.Writer, p *message.Printer, names []string, kind string) {
	p.Fprintf(w, "  num %s vars:%s%d\n", kind, strings.Repeat(" ", max(21-len(kind), 1)), len(names))
	if len(names) > 0 {
		p.Fprintf(w, "  %s vars:%s%s\n", kind, strings.Repeat(" ", max(25-len(kind), 1)), strings.Join(names, ", "))
	}
}
