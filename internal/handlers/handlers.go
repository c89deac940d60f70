// Package handlers holds the registry of named nano-block evaluators that
// kernel descriptions bind to bundles.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/vk/stencilgo/internal/bundle"
	"github.com/vk/stencilgo/internal/config"
)

// Handlers holds all the registered evaluators.
type Handlers struct {
	all map[string]*Evaluator
}

// New creates an empty registry.
func New() *Handlers {
	return &Handlers{
		all: make(map[string]*Evaluator),
	}
}

// Evaluator holds the compiled Go parts of one nano-block evaluator.
type Evaluator struct {
	// Input returns a pointer to a fresh argument struct with defaults set.
	// Nil means the evaluator takes no arguments.
	Input func() any
	// New binds the decoded arguments, as returned by Input, into a
	// nano-block function.
	New func(input any) bundle.NanoBlockFunc
}

// Register adds an evaluator under name.
func (r *Handlers) Register(name string, e *Evaluator) {
	if _, exists := r.all[name]; exists {
		panic(fmt.Sprintf("evaluator with name '%s' already registered", name))
	}
	slog.Debug("Registering evaluator.", "name", name)
	r.all[name] = e
}

// Get looks up an evaluator by name.
func (r *Handlers) Get(name string) (*Evaluator, bool) {
	e, ok := r.all[name]
	return e, ok
}

// Names returns the registered names, sorted.
func (r *Handlers) Names() []string {
	return slices.Sorted(maps.Keys(r.all))
}

// Build decodes the arguments of def with conv and returns the bound
// nano-block function.
func (r *Handlers) Build(ctx context.Context, conv config.Converter, def *config.Evaluator) (bundle.NanoBlockFunc, error) {
	e, ok := r.all[def.Type]
	if !ok {
		return nil, fmt.Errorf("unknown evaluator %q, registered: %v", def.Type, r.Names())
	}
	var input any
	if e.Input != nil {
		input = e.Input()
		if err := conv.DecodeBody(ctx, input, def.Arguments); err != nil {
			return nil, fmt.Errorf("evaluator %q: %w", def.Type, err)
		}
	} else if len(def.Arguments) > 0 {
		return nil, fmt.Errorf("evaluator %q takes no arguments", def.Type)
	}
	return e.New(input), nil
}
