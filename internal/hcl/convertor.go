package hcl

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// argTag is the struct tag DecodeBody matches evaluator arguments by.
const argTag = "arg"

// Converter is the HCL-specific implementation of the config.Converter interface.
type Converter struct{}

// NewConverter creates a new HCL converter.
func NewConverter() *Converter {
	return &Converter{}
}

// DecodeBody evaluates the argument expressions and populates the tagged
// fields of target using reflection. Arguments without a matching field are
// rejected.
func (c *Converter) DecodeBody(ctx context.Context, target any, args map[string]hcl.Expression) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting HCL body decoding.", "arg_count", len(args))

	structVal := reflect.ValueOf(target)
	if structVal.Kind() != reflect.Ptr || structVal.IsNil() || structVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a non-nil pointer to a struct, got %T", target)
	}
	structVal = structVal.Elem()
	structType := structVal.Type()

	known := make(map[string]bool)
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		fieldVal := structVal.Field(i)
		if !field.IsExported() || !fieldVal.CanSet() {
			continue
		}

		name, opts, _ := strings.Cut(field.Tag.Get(argTag), ",")
		if name == "" || name == "-" {
			continue
		}
		known[name] = true

		argExpr, provided := args[name]
		if !provided {
			if opts == "optional" {
				continue
			}
			return fmt.Errorf("missing required argument %q", name)
		}

		val, diags := argExpr.Value(nil)
		if diags.HasErrors() {
			return fmt.Errorf("argument %q: %w", name, diags)
		}
		if err := c.decode(ctx, val, fieldVal.Addr().Interface()); err != nil {
			return fmt.Errorf("failed to decode argument '%s': %w", name, err)
		}
	}

	for _, name := range slices.Sorted(maps.Keys(args)) {
		if !known[name] {
			return fmt.Errorf("unsupported argument %q", name)
		}
	}
	logger.Debug("Finished HCL body decoding successfully.")
	return nil
}

// StepCond checks that expr refers to no variable other than stepVar and
// evaluates to a bool at step 0, then returns a predicate evaluating it at
// any step.
func (c *Converter) StepCond(ctx context.Context, expr hcl.Expression, stepVar string) (func(t int64) (bool, error), error) {
	for _, traversal := range expr.Variables() {
		if name := traversal.RootName(); name != stepVar {
			return nil, fmt.Errorf("step condition may only refer to %q, found %q", stepVar, name)
		}
	}

	eval := func(t int64) (bool, error) {
		evalCtx := &hcl.EvalContext{
			Variables: map[string]cty.Value{stepVar: cty.NumberIntVal(t)},
		}
		val, diags := expr.Value(evalCtx)
		if diags.HasErrors() {
			return false, fmt.Errorf("step condition at %s=%d: %w", stepVar, t, diags)
		}
		val, err := convert.Convert(val, cty.Bool)
		if err != nil {
			return false, fmt.Errorf("step condition at %s=%d: %w", stepVar, t, err)
		}
		if val.IsNull() || !val.IsKnown() {
			return false, fmt.Errorf("step condition at %s=%d is not a known bool", stepVar, t)
		}
		return val.True(), nil
	}

	if _, err := eval(0); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Step condition compiled.", "range", expr.Range().String())
	return eval, nil
}

// decode handles the conversion and decoding of a cty.Value into a Go pointer.
func (c *Converter) decode(ctx context.Context, val cty.Value, goVal any) error {
	logger := ctxlog.FromContext(ctx)
	valPtr := reflect.ValueOf(goVal)
	if valPtr.Kind() != reflect.Ptr {
		return fmt.Errorf("target for decoding must be a pointer, got %T", goVal)
	}

	impliedType, err := gocty.ImpliedType(valPtr.Elem().Interface())
	if err != nil {
		logger.Debug("Could not imply cty.Type from Go type, attempting direct decoding.", "go_type", valPtr.Elem().Type().String(), "error", err)
		return gocty.FromCtyValue(val, goVal)
	}

	convertedVal, err := convert.Convert(val, impliedType)
	if err != nil {
		return fmt.Errorf("cannot convert %s to required type %s: %w", val.Type().FriendlyName(), impliedType.FriendlyName(), err)
	}

	if !val.Type().Equals(convertedVal.Type()) {
		logger.Debug("Implicitly converted value type.",
			"from", val.Type().FriendlyName(),
			"to", convertedVal.Type().FriendlyName(),
		)
	}

	return gocty.FromCtyValue(convertedVal, goVal)
}
