package config

import (
	"context"

	"github.com/hashicorp/hcl/v2"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads the kernel description from the given paths, translates it
	// into the format-agnostic model, and returns a matching Converter.
	Load(ctx context.Context, paths ...string) (*Model, Converter, error)
}

// Converter is the interface for a format-specific data binding and type
// conversion implementation. It acts as the bridge between the raw
// configuration and the Go types used by evaluators.
type Converter interface {
	// DecodeBody decodes the arguments of an evaluator block into a target Go
	// struct. Fields are matched by their `arg` tag; fields tagged
	// `arg:"name,optional"` keep their current value when the argument is
	// absent.
	DecodeBody(ctx context.Context, target any, args map[string]hcl.Expression) error

	// StepCond compiles a step-condition expression into a predicate over
	// the step index, which the expression refers to as stepVar.
	StepCond(ctx context.Context, expr hcl.Expression, stepVar string) (func(t int64) (bool, error), error)
}
