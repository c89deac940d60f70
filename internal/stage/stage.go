// Package stage groups non-scratch bundles that share one blocking
// structure. A stage owns the run timers and the per-step work estimates
// used for performance reporting.
package stage

import (
	"fmt"
	"sync"
	"time"

	"github.com/vk/stencilgo/internal/bbox"
	"github.com/vk/stencilgo/internal/bundle"
	"github.com/vk/stencilgo/internal/dims"
	"github.com/vk/stencilgo/internal/idx"
)

// Stage is an ordered group of non-scratch bundles.
type Stage struct {
	name    string
	dims    *dims.Dims
	bundles []*bundle.Bundle
	bb      bbox.BoundingBox

	mu        sync.Mutex
	now       func() time.Time
	started   time.Time
	running   bool
	elapsed   time.Duration
	stepsDone int64

	stats WorkStats
}

// New builds a stage over bundles, which must all be non-scratch.
func New(name string, d *dims.Dims, bundles ...*bundle.Bundle) (*Stage, error) {
	if name == "" {
		return nil, fmt.Errorf("stage name is required")
	}
	for _, b := range bundles {
		if b.IsScratch() {
			return nil, fmt.Errorf("stage %q: scratch bundle %q cannot be scheduled directly", name, b.Name())
		}
	}
	s := &Stage{
		name:    name,
		dims:    d,
		bundles: bundles,
		now:     time.Now,
	}
	s.bb = scope(bundles, d.NumDomainDims())
	return s, nil
}

// scope is the hull of the bundles' overall boxes.
func scope(bundles []*bundle.Bundle, nd int) bbox.BoundingBox {
	var begin, end idx.Indices
	var pts int64
	for _, b := range bundles {
		bb := b.BB()
		if !bb.Valid() {
			continue
		}
		if begin == nil {
			begin, end = bb.Begin.Clone(), bb.End.Clone()
		}
		for j := 0; j < nd; j++ {
			begin[j] = min(begin[j], bb.Begin[j])
			end[j] = max(end[j], bb.End[j])
		}
		pts += bb.NumPoints
	}
	if begin == nil {
		return bbox.New(idx.NewIndices(nd), idx.NewIndices(nd))
	}
	out := bbox.New(begin, end)
	out.NumPoints = min(pts, out.Size)
	return out
}

func (s *Stage) Name() string { return s.name }

// Bundles returns the stage's bundles in evaluation order.
func (s *Stage) Bundles() []*bundle.Bundle { return s.bundles }

// BB returns the hull of the bundles' boxes.
func (s *Stage) BB() bbox.BoundingBox { return s.bb }

// StartTimers starts accumulating elapsed time. Starting a running timer
// has no effect.
func (s *Stage) StartTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.started = s.now()
	s.running = true
}

// StopTimers adds the time since StartTimers to the total.
func (s *Stage) StopTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.elapsed += s.now().Sub(s.started)
	s.running = false
}

// AddSteps records n more steps evaluated.
func (s *Stage) AddSteps(n int64) {
	s.mu.Lock()
	s.stepsDone += n
	s.mu.Unlock()
}

// Elapsed returns the accumulated time, including the current interval
// when the timer is running.
func (s *Stage) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.elapsed + s.now().Sub(s.started)
	}
	return s.elapsed
}

func (s *Stage) StepsDone() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepsDone
}

// Stats returns the figures computed by the last InitWorkStats.
func (s *Stage) Stats() WorkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
