package config

import (
	"github.com/hashicorp/hcl/v2"
)

// Model is the unified, format-agnostic representation of a kernel
// description. Slices keep declaration order.
type Model struct {
	Kernel   *Kernel
	Vars     []*Var
	Bundles  []*Bundle
	Stages   []*Stage
	Settings *Settings
}

// Kernel is the format-agnostic representation of the `kernel` block.
type Kernel struct {
	Name        string
	StepDim     string
	DomainDims  []string
	StencilDims []string // empty means the step dim followed by the domain dims
	Fold        map[string]int64
	StepDir     int64

	// DomainSize and FirstIndex give this rank's part of the domain per
	// domain dim.
	DomainSize map[string]int64
	FirstIndex map[string]int64
}

// Var is the format-agnostic representation of a `var` block.
type Var struct {
	Name      string
	Dims      []string
	LeftHalo  map[string]int64
	RightHalo map[string]int64
	Scratch   bool
}

// Bundle is the format-agnostic representation of a `bundle` block.
type Bundle struct {
	Name    string
	Scratch bool

	Inputs  []string
	Outputs []string
	// Uses names the scratch bundles whose outputs this bundle reads.
	Uses []string

	Evaluator *Evaluator

	ReadsPerPoint  int64
	WritesPerPoint int64
	FPOpsPerPoint  int64

	// StepCond is nil when the bundle runs at every step. StepCondSource is
	// the expression as written.
	StepCond       hcl.Expression
	StepCondSource string
	SubDomain      string

	// Boxes empty means the whole rank domain.
	Boxes []*Box
}

// Evaluator names the registered nano-block evaluator of a bundle and holds
// its raw arguments.
type Evaluator struct {
	Type      string
	Arguments map[string]hcl.Expression
}

// Box is one full rectangle, half-open per domain dim.
type Box struct {
	Begin map[string]int64
	End   map[string]int64
}

// Stage is the format-agnostic representation of a `stage` block.
type Stage struct {
	Name    string
	Bundles []string
}

// Settings is the format-agnostic representation of the `settings` block.
// Zero values mean defaults.
type Settings struct {
	MicroBlock       map[string]int64
	NanoBlock        map[string]int64
	OuterThreads     int
	InnerThreads     int
	BindInnerThreads bool
	BindDim          string
	CheckBounds      bool
}
