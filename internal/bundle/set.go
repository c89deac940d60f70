package bundle

import (
	"fmt"

	"github.com/vk/stencilgo/internal/dag"
)

// Set owns the bundles of a kernel and the dependency graph among them.
// Resolve must be called after the last AddScratchDep and before any
// micro-block is evaluated.
type Set struct {
	byName map[string]*Bundle
	order  []*Bundle
	graph  *dag.Graph
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{
		byName: make(map[string]*Bundle),
		graph:  dag.New(),
	}
}

// Add registers b. Names must be unique.
func (s *Set) Add(b *Bundle) error {
	if _, ok := s.byName[b.name]; ok {
		return fmt.Errorf("duplicate bundle %q", b.name)
	}
	s.byName[b.name] = b
	s.order = append(s.order, b)
	s.graph.AddNode(b.name)
	return nil
}

// AddScratchDep records that consumer reads the output of scratch bundle
// producer within the same micro-block.
func (s *Set) AddScratchDep(consumer, producer string) error {
	p, ok := s.byName[producer]
	if !ok {
		return fmt.Errorf("unknown bundle %q", producer)
	}
	if _, ok := s.byName[consumer]; !ok {
		return fmt.Errorf("unknown bundle %q", consumer)
	}
	if !p.scratch {
		return fmt.Errorf("bundle %q depends on non-scratch bundle %q", consumer, producer)
	}
	return s.graph.AddEdge(producer, consumer)
}

// Resolve checks the graph for cycles and caches, on every bundle, its
// direct scratch children and its flattened required list.
func (s *Set) Resolve() error {
	if err := s.graph.DetectCycles(); err != nil {
		return fmt.Errorf("scratch dependencies: %w", err)
	}
	for _, b := range s.order {
		deps, err := s.graph.Dependencies(b.name)
		if err != nil {
			return err
		}
		b.children = b.children[:0]
		for _, id := range deps {
			b.children = append(b.children, s.byName[id])
		}

		flat, err := s.graph.Flatten(b.name)
		if err != nil {
			return err
		}
		b.reqd = make([]*Bundle, 0, len(flat))
		for _, id := range flat {
			b.reqd = append(b.reqd, s.byName[id])
		}
	}
	return nil
}

// Get returns the bundle with the given name.
func (s *Set) Get(name string) (*Bundle, bool) {
	b, ok := s.byName[name]
	return b, ok
}

// All returns the bundles in the order they were added.
func (s *Set) All() []*Bundle { return s.order }
