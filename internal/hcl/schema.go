package hcl

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot is a struct used to decode all possible top-level blocks from any
// file. Anything else in a file is an error.
type fileRoot struct {
	Kernels  []*Kernel   `hcl:"kernel,block"`
	Vars     []*Var      `hcl:"var,block"`
	Bundles  []*Bundle   `hcl:"bundle,block"`
	Stages   []*Stage    `hcl:"stage,block"`
	Settings []*Settings `hcl:"settings,block"`
}

// Kernel represents the `kernel` block. Dim maps stay expressions until
// translation so they can be converted with cty.
type Kernel struct {
	Name        string         `hcl:"name,label"`
	StepDim     string         `hcl:"step_dim"`
	DomainDims  []string       `hcl:"domain_dims"`
	StencilDims []string       `hcl:"stencil_dims,optional"`
	Fold        hcl.Expression `hcl:"fold,optional"`
	StepDir     int64          `hcl:"step_dir,optional"`
	DomainSize  hcl.Expression `hcl:"domain_size"`
	FirstIndex  hcl.Expression `hcl:"first_index,optional"`
}

// Var represents a `var` block.
type Var struct {
	Name      string         `hcl:"name,label"`
	Dims      []string       `hcl:"dims"`
	LeftHalo  hcl.Expression `hcl:"left_halo,optional"`
	RightHalo hcl.Expression `hcl:"right_halo,optional"`
	Scratch   bool           `hcl:"scratch,optional"`
}

// EvaluatorBlock names a registered nano-block evaluator; its body holds the
// evaluator's arguments.
type EvaluatorBlock struct {
	Type string   `hcl:"type,label"`
	Body hcl.Body `hcl:",remain"`
}

// Box represents a `box` block inside a bundle.
type Box struct {
	Begin hcl.Expression `hcl:"begin"`
	End   hcl.Expression `hcl:"end"`
}

// Bundle represents a `bundle` block.
type Bundle struct {
	Name           string          `hcl:"name,label"`
	Scratch        bool            `hcl:"scratch,optional"`
	Inputs         []string        `hcl:"inputs,optional"`
	Outputs        []string        `hcl:"outputs,optional"`
	Uses           []string        `hcl:"uses,optional"`
	ReadsPerPoint  int64           `hcl:"reads_per_point,optional"`
	WritesPerPoint int64           `hcl:"writes_per_point,optional"`
	FPOpsPerPoint  int64           `hcl:"fp_ops_per_point,optional"`
	StepCond       hcl.Expression  `hcl:"step_cond,optional"`
	SubDomain      string          `hcl:"sub_domain,optional"`
	Evaluator      *EvaluatorBlock `hcl:"evaluator,block"`
	Boxes          []*Box          `hcl:"box,block"`
}

// Stage represents a `stage` block.
type Stage struct {
	Name    string   `hcl:"name,label"`
	Bundles []string `hcl:"bundles"`
}

// Settings represents the `settings` block.
type Settings struct {
	MicroBlock       hcl.Expression `hcl:"micro_block,optional"`
	NanoBlock        hcl.Expression `hcl:"nano_block,optional"`
	OuterThreads     int            `hcl:"outer_threads,optional"`
	InnerThreads     int            `hcl:"inner_threads,optional"`
	BindInnerThreads bool           `hcl:"bind_inner_threads,optional"`
	BindDim          string         `hcl:"bind_dim,optional"`
	CheckBounds      bool           `hcl:"check_bounds,optional"`
}
