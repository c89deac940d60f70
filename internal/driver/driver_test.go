package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	hclv2 "github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/stencilgo/internal/bundle"
	"github.com/vk/stencilgo/internal/config"
	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/handlers"
	"github.com/vk/stencilgo/internal/hcl"
	"github.com/vk/stencilgo/internal/idx"
	"github.com/vk/stencilgo/internal/kernel"
	"github.com/vk/stencilgo/internal/varstore"
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

// model is a 20x12 kernel folded 4 wide in x. main runs at even steps on
// x in [2,18) and reads scratch var tmp written by tmp_calc.
func model(t *testing.T, s *config.Settings) *config.Model {
	return &config.Model{
		Kernel: &config.Kernel{
			Name: "heat", StepDim: "t", DomainDims: []string{"x", "y"},
			Fold:       map[string]int64{"x": 4},
			DomainSize: map[string]int64{"x": 20, "y": 12},
		},
		Vars: []*config.Var{
			{Name: "u", Dims: []string{"t", "x", "y"}, LeftHalo: map[string]int64{"x": 1, "y": 1}, RightHalo: map[string]int64{"x": 1, "y": 1}},
			{Name: "tmp", Dims: []string{"x", "y"}, Scratch: true, LeftHalo: map[string]int64{"x": 1}, RightHalo: map[string]int64{"x": 2}},
		},
		Bundles: []*config.Bundle{
			{
				Name: "tmp_calc", Scratch: true, Inputs: []string{"u"}, Outputs: []string{"tmp"},
				Evaluator: &config.Evaluator{Type: handlers.CountPoints},
			},
			{
				Name: "main", Inputs: []string{"u", "tmp"}, Outputs: []string{"u"}, Uses: []string{"tmp_calc"},
				StepCond:  expr(t, "t % 2 == 0"),
				Evaluator: &config.Evaluator{Type: handlers.Checksum},
				Boxes:     []*config.Box{{Begin: map[string]int64{"x": 2}, End: map[string]int64{"x": 18}}},
			},
		},
		Settings: s,
	}
}

func build(t *testing.T, m *config.Model, outer int) (*kernel.Kernel, *handlers.Tally) {
	t.Helper()
	tally := handlers.NewTally()
	h := handlers.New()
	handlers.RegisterBuiltins(h, tally)
	k, err := kernel.Build(testCtx(), m, hcl.NewConverter(), h, kernel.Options{OuterThreads: outer})
	require.NoError(t, err)
	return k, tally
}

func TestMicroBlocks(t *testing.T) {
	k, _ := build(t, model(t, &config.Settings{MicroBlock: map[string]int64{"x": 8, "y": 12}}), 1)
	blocks, err := New(k).MicroBlocks(3)
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	assert.Equal(t, idx.Indices{3, 0, 0}, blocks[0].Idxs.Begin)
	assert.Equal(t, idx.Indices{4, 8, 12}, blocks[0].Idxs.End)
	assert.Equal(t, idx.Indices{3, 16, 0}, blocks[2].Idxs.Begin)
	assert.Equal(t, idx.Indices{4, 20, 12}, blocks[2].Idxs.End)

	// Every block spans y, so all of them touch an edge on both sides.
	assert.Equal(t, bundle.MPISection{DoLeft: true, DoRight: true}, blocks[1].Section)

	k, _ = build(t, model(t, &config.Settings{MicroBlock: map[string]int64{"x": 8, "y": 4}}), 1)
	blocks, err = New(k).MicroBlocks(0)
	require.NoError(t, err)
	require.Len(t, blocks, 9)
	assert.Equal(t, bundle.MPISection{}, blocks[4].Section, "centre block")
	assert.Equal(t, bundle.MPISection{DoLeft: true}, blocks[0].Section)
	assert.Equal(t, bundle.MPISection{DoRight: true}, blocks[8].Section)
}

func TestRunIsIndependentOfBlocking(t *testing.T) {
	const steps = 4
	var want int64
	for t0 := int64(0); t0 < steps; t0++ {
		if t0%2 == 0 {
			want += handlers.CoordSum(idx.NanoRange{Start: idx.Indices{t0, 2, 0}, Stop: idx.Indices{t0 + 1, 18, 12}})
		}
	}

	testCases := []struct {
		outer    int
		settings *config.Settings
	}{
		{outer: 1, settings: &config.Settings{}},
		{outer: 1, settings: &config.Settings{MicroBlock: map[string]int64{"x": 8, "y": 4}}},
		{outer: 3, settings: &config.Settings{MicroBlock: map[string]int64{"x": 4, "y": 4}, NanoBlock: map[string]int64{"x": 4, "y": 2}}},
		{outer: 2, settings: &config.Settings{
			MicroBlock: map[string]int64{"x": 12, "y": 6}, NanoBlock: map[string]int64{"y": 2},
			InnerThreads: 3, BindInnerThreads: true, BindDim: "y", CheckBounds: true,
		}},
		{outer: 4, settings: &config.Settings{
			MicroBlock: map[string]int64{"x": 5, "y": 7}, NanoBlock: map[string]int64{"x": 3},
			InnerThreads: 2, CheckBounds: true,
		}},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprintf("case %d", i), func(t *testing.T) {
			k, tally := build(t, model(t, tc.settings), tc.outer)
			require.NoError(t, New(k).Run(testCtx(), 0, steps))

			assert.Equal(t, want, tally.Get("main"))
			assert.Positive(t, tally.Get("tmp_calc"))

			for _, st := range k.Stages {
				assert.Equal(t, int64(steps), st.StepsDone())
			}
			u, ok := k.Var("u")
			require.True(t, ok)
			// Outputs are marked for step t+1 whenever a block overlaps the
			// box, active or not.
			for step := int64(1); step <= steps; step++ {
				assert.True(t, u.IsDirty(varstore.Self, step), "step %d", step)
			}
			assert.False(t, u.IsDirty(varstore.Self, 0))
			assert.Equal(t, steps, u.DirtySteps(varstore.Self))
			assert.True(t, u.DevModified())
		})
	}
}

func TestRunBackward(t *testing.T) {
	m := model(t, &config.Settings{MicroBlock: map[string]int64{"x": 10}})
	m.Kernel.StepDir = -1
	m.Bundles[1].StepCond = nil
	m.Bundles[1].Evaluator = &config.Evaluator{Type: handlers.CountPoints}
	k, tally := build(t, m, 2)

	require.NoError(t, New(k).Run(testCtx(), 5, 2))
	assert.Equal(t, int64(2*16*12), tally.Get("main"))

	u, _ := k.Var("u")
	assert.True(t, u.IsDirty(varstore.Self, 4))
	assert.True(t, u.IsDirty(varstore.Self, 3))
	assert.False(t, u.IsDirty(varstore.Self, 5))
}

func TestRunStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	h := handlers.New()
	h.Register("fail", &handlers.Evaluator{
		New: func(any) bundle.NanoBlockFunc {
			return func(context.Context, *bundle.Bundle, int, int, idx.NanoRange) error { return boom }
		},
	})
	handlers.RegisterBuiltins(h, handlers.NewTally())

	m := model(t, &config.Settings{MicroBlock: map[string]int64{"x": 4}})
	m.Bundles[1].Evaluator = &config.Evaluator{Type: "fail"}
	k, err := kernel.Build(testCtx(), m, hcl.NewConverter(), h, kernel.Options{OuterThreads: 3})
	require.NoError(t, err)

	err = New(k).Run(testCtx(), 0, 3)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, `step 0: stage "stage0": bundle "main"`)
	assert.Equal(t, int64(0), k.Stages[0].StepsDone())
}

func TestRunStepConditionError(t *testing.T) {
	m := model(t, &config.Settings{MicroBlock: map[string]int64{"x": 4}})
	m.Bundles[1].StepCond = expr(t, "[true, false][t]")
	k, _ := build(t, m, 3)

	var err error
	require.NotPanics(t, func() { err = New(k).Run(testCtx(), 0, 3) })
	require.Error(t, err)
	assert.ErrorContains(t, err, `step 2: stage "stage0": bundle "main": step condition at t=2`)
	assert.Equal(t, int64(2), k.Stages[0].StepsDone())
}

func TestRunCancelled(t *testing.T) {
	k, _ := build(t, model(t, &config.Settings{MicroBlock: map[string]int64{"x": 4, "y": 4}}), 2)
	ctx, cancel := context.WithCancel(testCtx())
	cancel()
	err := New(k).Run(ctx, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
