package bundle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/stencilgo/internal/bbox"
	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/dims"
	"github.com/vk/stencilgo/internal/idx"
	"github.com/vk/stencilgo/internal/inmemoryvars"
	"github.com/vk/stencilgo/internal/varstore"
)

func testCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// testDims is t, x, y with a vector fold of 4 in x.
func testDims(t *testing.T) *dims.Dims {
	t.Helper()
	d, err := newDims(1)
	require.NoError(t, err)
	return d
}

func newDims(stepDir int64) (*dims.Dims, error) {
	return dims.New("t", []string{"x", "y"}, nil, idx.Indices{4, 1}, stepDir)
}

func box(xb, xe, yb, ye int64) bbox.BoundingBox {
	return bbox.New(idx.Indices{xb, yb}, idx.Indices{xe, ye})
}

// mbAt returns a one-step micro-block at step t.
func mbAt(t, xb, xe, yb, ye int64) idx.ScanIndices {
	s := idx.NewScanIndices(3)
	s.Begin = idx.Indices{t, xb, yb}
	s.End = idx.Indices{t + 1, xe, ye}
	return s
}

type call struct {
	Bundle string
	Inner  int
	Range  string
	X      int64
}

type recorder struct {
	mu    sync.Mutex
	calls []call
	fail  error
}

func (r *recorder) eval(_ context.Context, b *Bundle, _, inner int, nr idx.NanoRange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{Bundle: b.Name(), Inner: inner, Range: nr.String(), X: nr.Start[1]})
	return r.fail
}

func (r *recorder) ranges(bundle string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		if c.Bundle == bundle {
			out = append(out, c.Range)
		}
	}
	return out
}

// order returns "bundle range" per call in call order.
func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Bundle + " " + c.Range
	}
	return out
}

func gridVar(t *testing.T, name string) *inmemoryvars.Var {
	t.Helper()
	v, err := inmemoryvars.New(inmemoryvars.Spec{
		Name:       name,
		Dims:       []string{"t", "x", "y"},
		DomainSize: idx.Indices{2, 64, 64},
		Domain:     true,
	})
	require.NoError(t, err)
	return v
}

// scratchVec builds a per-thread x-y scratch var with the given x halos and
// x domain size.
func scratchVec(t *testing.T, name string, lh, rh, xSize int64, threads int) []varstore.Var {
	t.Helper()
	vs, err := inmemoryvars.NewScratchVec(inmemoryvars.Spec{
		Name:       name,
		Dims:       []string{"x", "y"},
		LeftHalo:   idx.Indices{lh, 0},
		RightHalo:  idx.Indices{rh, 0},
		DomainSize: idx.Indices{xSize, 64},
	}, threads)
	require.NoError(t, err)
	return inmemoryvars.Vars(vs...)
}

func mustBundle(t *testing.T, cfg Config) *Bundle {
	t.Helper()
	b, err := New(cfg)
	require.NoError(t, err)
	return b
}

// requirePanicIs runs fn and requires it to panic with an error matching
// each of targets.
func requirePanicIs(t *testing.T, fn func(), targets ...error) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		for _, target := range targets {
			require.True(t, errors.Is(err, target), "panic %v does not wrap %v", err, target)
		}
	}()
	fn()
}
