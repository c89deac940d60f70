package handlers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	hclv2 "github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/stencilgo/internal/bbox"
	"github.com/vk/stencilgo/internal/bundle"
	"github.com/vk/stencilgo/internal/config"
	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/dims"
	"github.com/vk/stencilgo/internal/hcl"
	"github.com/vk/stencilgo/internal/idx"
)

func testCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func expr(t *testing.T, src string) hclv2.Expression {
	t.Helper()
	e, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hclv2.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors(), diags.Error())
	return e
}

func newBundle(t *testing.T, name string, fn bundle.NanoBlockFunc) *bundle.Bundle {
	t.Helper()
	d, err := dims.New("t", []string{"x", "y"}, nil, nil, 1)
	require.NoError(t, err)
	b, err := bundle.New(bundle.Config{
		Name: name, Dims: d, Eval: fn,
		BBs: []bbox.BoundingBox{bbox.New(idx.Indices{0, 0}, idx.Indices{4, 4})},
	})
	require.NoError(t, err)
	return b
}

func nr(start, stop idx.Indices) idx.NanoRange { return idx.NanoRange{Start: start, Stop: stop} }

func bruteCoordSum(r idx.NanoRange) int64 {
	var total int64
	var rec func(d int, acc int64)
	rec = func(d int, acc int64) {
		if d == len(r.Start) {
			total += acc
			return
		}
		step := int64(1)
		if r.Stop[d] < r.Start[d] {
			step = -1
		}
		for c := r.Start[d]; c != r.Stop[d]; c += step {
			rec(d+1, acc+c)
		}
	}
	rec(0, 0)
	return total
}

func TestCoordSum(t *testing.T) {
	for _, r := range []idx.NanoRange{
		nr(idx.Indices{0}, idx.Indices{5}),
		nr(idx.Indices{3, -2, 7}, idx.Indices{4, 5, 10}),
		nr(idx.Indices{5, 0, 0}, idx.Indices{4, 3, 2}),
		nr(idx.Indices{2, 2}, idx.Indices{2, 9}),
	} {
		assert.Equal(t, bruteCoordSum(r), CoordSum(r), "range %s", r)
	}

	// Splitting a range does not change the total.
	whole := nr(idx.Indices{0, 0}, idx.Indices{6, 5})
	left := nr(idx.Indices{0, 0}, idx.Indices{2, 5})
	right := nr(idx.Indices{2, 0}, idx.Indices{6, 5})
	assert.Equal(t, CoordSum(whole), CoordSum(left)+CoordSum(right))
}

func TestBuild(t *testing.T) {
	tally := NewTally()
	r := New()
	RegisterBuiltins(r, tally)
	conv := hcl.NewConverter()
	assert.Equal(t, []string{Checksum, CountPoints, Noop}, r.Names())

	tile := nr(idx.Indices{0, 0, 0}, idx.Indices{1, 2, 3})

	t.Run("count points", func(t *testing.T) {
		fn, err := r.Build(testCtx(), conv, &config.Evaluator{Type: CountPoints})
		require.NoError(t, err)
		b := newBundle(t, "counted", fn)
		require.NoError(t, b.CalcNanoBlock(testCtx(), 0, 0, tile))
		require.NoError(t, b.CalcNanoBlock(testCtx(), 0, 1, tile))
		assert.Equal(t, int64(12), tally.Get("counted"))
	})

	t.Run("checksum default weight", func(t *testing.T) {
		fn, err := r.Build(testCtx(), conv, &config.Evaluator{Type: Checksum})
		require.NoError(t, err)
		b := newBundle(t, "sum1", fn)
		require.NoError(t, b.CalcNanoBlock(testCtx(), 0, 0, tile))
		assert.Equal(t, CoordSum(tile), tally.Get("sum1"))
	})

	t.Run("checksum weight", func(t *testing.T) {
		fn, err := r.Build(testCtx(), conv, &config.Evaluator{
			Type:      Checksum,
			Arguments: map[string]hclv2.Expression{"weight": expr(t, "3")},
		})
		require.NoError(t, err)
		b := newBundle(t, "sum3", fn)
		require.NoError(t, b.CalcNanoBlock(testCtx(), 0, 0, tile))
		assert.Equal(t, 3*CoordSum(tile), tally.Get("sum3"))
	})

	t.Run("noop", func(t *testing.T) {
		fn, err := r.Build(testCtx(), conv, &config.Evaluator{Type: Noop})
		require.NoError(t, err)
		require.NoError(t, newBundle(t, "quiet", fn).CalcNanoBlock(testCtx(), 0, 0, tile))
		assert.Zero(t, tally.Get("quiet"))
	})

	t.Run("errors", func(t *testing.T) {
		_, err := r.Build(testCtx(), conv, &config.Evaluator{Type: "laplace"})
		assert.ErrorContains(t, err, `unknown evaluator "laplace"`)

		_, err = r.Build(testCtx(), conv, &config.Evaluator{
			Type:      Noop,
			Arguments: map[string]hclv2.Expression{"weight": expr(t, "1")},
		})
		assert.ErrorContains(t, err, "takes no arguments")

		_, err = r.Build(testCtx(), conv, &config.Evaluator{
			Type:      Checksum,
			Arguments: map[string]hclv2.Expression{"scale": expr(t, "1")},
		})
		assert.ErrorContains(t, err, `unsupported argument "scale"`)
	})
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := New()
	RegisterBuiltins(r, NewTally())
	assert.Panics(t, func() { r.Register(Noop, &Evaluator{}) })
}

func TestTallyConcurrent(t *testing.T) {
	tally := NewTally()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tally.Add("a", 1)
				tally.Add("b", 2)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, map[string]int64{"a": 800, "b": 1600}, tally.Snapshot())
}
