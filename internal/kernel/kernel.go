package kernel

import (
	"context"
	"fmt"

	"github.com/vk/stencilgo/internal/bbox"
	"github.com/vk/stencilgo/internal/bundle"
	"github.com/vk/stencilgo/internal/config"
	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/dims"
	"github.com/vk/stencilgo/internal/handlers"
	"github.com/vk/stencilgo/internal/idx"
	"github.com/vk/stencilgo/internal/inmemoryvars"
	"github.com/vk/stencilgo/internal/stage"
)

// Options override parts of the description at build time.
type Options struct {
	// OuterThreads wins over the settings block when positive.
	OuterThreads int
}

// Kernel is a fully built and validated kernel.
type Kernel struct {
	Name string
	Dims *dims.Dims

	// Domain is this rank's part of the domain.
	Domain bbox.BoundingBox

	Bundles  *bundle.Set
	Stages   []*stage.Stage
	Settings *bundle.Settings

	// OuterThreads is the number of micro-blocks evaluated at once. Every
	// scratch var has that many instances.
	OuterThreads int

	vars map[string][]*inmemoryvars.Var
}

// Build validates m and constructs the kernel it describes. conv compiles
// step conditions and decodes evaluator arguments; h supplies evaluators.
func Build(ctx context.Context, m *config.Model, conv config.Converter, h *handlers.Handlers, opts Options) (*Kernel, error) {
	if m == nil || m.Kernel == nil {
		return nil, invalidf("no kernel")
	}
	logger := ctxlog.FromContext(ctx).With("kernel", m.Kernel.Name)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Building kernel.")

	d, domain, err := buildDims(m.Kernel)
	if err != nil {
		return nil, err
	}

	s := m.Settings
	if s == nil {
		s = &config.Settings{}
	}
	k := &Kernel{
		Name:         m.Kernel.Name,
		Dims:         d,
		Domain:       domain,
		OuterThreads: max(1, s.OuterThreads),
	}
	if opts.OuterThreads > 0 {
		k.OuterThreads = opts.OuterThreads
	}

	if k.Settings, err = buildSettings(d, s); err != nil {
		return nil, err
	}
	if k.vars, err = buildVars(d, domain, m.Vars, k.OuterThreads); err != nil {
		return nil, err
	}
	if k.Bundles, err = k.buildBundles(ctx, m.Bundles, conv, h); err != nil {
		return nil, err
	}
	if k.Stages, err = k.buildStages(ctx, m.Stages); err != nil {
		return nil, err
	}

	logger.Info("Kernel built.",
		"domain", domain.RangeString(d),
		"vars", len(k.vars),
		"bundles", len(k.Bundles.All()),
		"stages", len(k.Stages),
		"outer_threads", k.OuterThreads,
		"inner_threads", k.Settings.InnerThreads,
	)
	return k, nil
}

// Var returns the variable called name. For scratch vars it is the
// instance of outer thread 0.
func (k *Kernel) Var(name string) (*inmemoryvars.Var, bool) {
	vs, ok := k.vars[name]
	if !ok {
		return nil, false
	}
	return vs[0], true
}

// ScratchVec returns all instances of scratch var name, one per outer
// thread.
func (k *Kernel) ScratchVec(name string) ([]*inmemoryvars.Var, bool) {
	vs, ok := k.vars[name]
	if !ok || !vs[0].IsScratch() {
		return nil, false
	}
	return vs, true
}

func buildDims(kc *config.Kernel) (*dims.Dims, bbox.BoundingBox, error) {
	var stencilDims []string
	if len(kc.StencilDims) > 0 {
		stencilDims = kc.StencilDims
	}
	fold, err := perDomainDim(kc.DomainDims, kc.Fold, 1, "fold")
	if err != nil {
		return nil, bbox.BoundingBox{}, err
	}
	d, err := dims.New(kc.StepDim, kc.DomainDims, stencilDims, fold, kc.StepDir)
	if err != nil {
		return nil, bbox.BoundingBox{}, invalidf("kernel %q: %v", kc.Name, err)
	}
	for j, f := range fold {
		if f < 1 {
			return nil, bbox.BoundingBox{}, invalidf("fold of %s is %d, want at least 1", d.DomainDims[j], f)
		}
	}

	size, err := perDomainDim(kc.DomainDims, kc.DomainSize, 0, "domain_size")
	if err != nil {
		return nil, bbox.BoundingBox{}, err
	}
	for j, n := range size {
		if n < 1 {
			return nil, bbox.BoundingBox{}, invalidf("domain size of %s is %d, want at least 1", d.DomainDims[j], n)
		}
	}
	first, err := perDomainDim(kc.DomainDims, kc.FirstIndex, 0, "first_index")
	if err != nil {
		return nil, bbox.BoundingBox{}, err
	}
	end := idx.NewIndices(len(size))
	for j := range end {
		end[j] = first[j] + size[j]
	}
	return d, bbox.New(first, end), nil
}

// perDomainDim orders m by domainDims. Dims missing from m get def; keys
// that are not domain dims are rejected.
func perDomainDim(domainDims []string, m map[string]int64, def int64, what string) (idx.Indices, error) {
	out := idx.Filled(len(domainDims), def)
	known := make(map[string]int, len(domainDims))
	for j, name := range domainDims {
		known[name] = j
	}
	for name, v := range m {
		j, ok := known[name]
		if !ok {
			return nil, invalidf("%s: %q is not a domain dim", what, name)
		}
		out[j] = v
	}
	return out, nil
}

func buildSettings(d *dims.Dims, s *config.Settings) (*bundle.Settings, error) {
	micro, err := perDomainDim(d.DomainDims, s.MicroBlock, 0, "micro_block")
	if err != nil {
		return nil, err
	}
	nano, err := perDomainDim(d.DomainDims, s.NanoBlock, 0, "nano_block")
	if err != nil {
		return nil, err
	}
	out := &bundle.Settings{
		MicroBlockSizes:  micro,
		NanoBlockSizes:   nano,
		InnerThreads:     max(1, s.InnerThreads),
		BindInnerThreads: s.BindInnerThreads,
		CheckBounds:      s.CheckBounds,
	}

	bindDim := s.BindDim
	if bindDim == "" {
		bindDim = d.DomainDims[0]
	}
	j := d.DomainIndex(bindDim)
	if j < 0 {
		return nil, invalidf("bind_dim %q is not a domain dim", bindDim)
	}
	for _, p := range d.DomainPosns() {
		if p.Domain == j {
			out.BindPosn = p.Stencil
		}
	}
	if out.BindInnerThreads && out.InnerThreads > 1 && nano[j] < 1 {
		return nil, invalidf("binding inner threads needs a nano_block size for %s", bindDim)
	}
	return out, nil
}

func (k *Kernel) buildStages(ctx context.Context, defs []*config.Stage) ([]*stage.Stage, error) {
	logger := ctxlog.FromContext(ctx)
	if len(defs) == 0 {
		var all []*bundle.Bundle
		for _, b := range k.Bundles.All() {
			if !b.IsScratch() {
				all = append(all, b)
			}
		}
		st, err := stage.New("stage0", k.Dims, all...)
		if err != nil {
			return nil, invalidf("%v", err)
		}
		logger.Debug("No stages declared, using one stage for all bundles.", "bundles", len(all))
		return []*stage.Stage{st}, nil
	}

	owner := make(map[string]string)
	var out []*stage.Stage
	for _, def := range defs {
		var bs []*bundle.Bundle
		for _, name := range def.Bundles {
			b, ok := k.Bundles.Get(name)
			if !ok {
				return nil, invalidf("stage %q: unknown bundle %q", def.Name, name)
			}
			if prev, dup := owner[name]; dup {
				return nil, invalidf("stage %q: bundle %q already in stage %q", def.Name, name, prev)
			}
			owner[name] = def.Name
			bs = append(bs, b)
		}
		st, err := stage.New(def.Name, k.Dims, bs...)
		if err != nil {
			return nil, invalidf("%v", err)
		}
		out = append(out, st)
	}
	for _, b := range k.Bundles.All() {
		if _, ok := owner[b.Name()]; !ok && !b.IsScratch() {
			logger.Warn("Bundle is not in any stage and will not run.", "bundle", b.Name())
		}
	}
	return out, nil
}

// String summarises the kernel for logs.
func (k *Kernel) String() string {
	return fmt.Sprintf("kernel %q over %s", k.Name, k.Domain.RangeString(k.Dims))
}
