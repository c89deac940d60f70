package bundle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/stencilgo/internal/idx"
	"github.com/vk/stencilgo/internal/inmemoryvars"
	"github.com/vk/stencilgo/internal/varstore"
)

func TestFindWriteHalos(t *testing.T) {
	d := testDims(t)
	rec := &recorder{}

	xOnly, err := inmemoryvars.NewScratchVec(inmemoryvars.Spec{
		Name:      "xonly",
		Dims:      []string{"x"},
		LeftHalo:  idx.Indices{5},
		RightHalo: idx.Indices{1},
	}, 2)
	require.NoError(t, err)

	s := mustBundle(t, Config{
		Name: "s", Scratch: true, Dims: d, Eval: rec.eval,
		OutputScratch: [][]varstore.Var{scratchVec(t, "xy", 2, 3, 16, 2), inmemoryvars.Vars(xOnly...)},
	})
	left, right := s.MaxWriteHalos()
	assert.Equal(t, idx.Indices{5, 0}, left)
	assert.Equal(t, idx.Indices{3, 0}, right)

	t.Run("recomputed when outputs change", func(t *testing.T) {
		require.NoError(t, s.SetOutputScratchVars([][]varstore.Var{scratchVec(t, "xy", 1, 1, 16, 2)}))
		left, right := s.MaxWriteHalos()
		assert.Equal(t, idx.Indices{1, 0}, left)
		assert.Equal(t, idx.Indices{1, 0}, right)
	})

	t.Run("rejects bad vectors", func(t *testing.T) {
		assert.ErrorContains(t, s.SetOutputScratchVars([][]varstore.Var{{}}), "no instances")
		assert.ErrorContains(t, s.SetOutputScratchVars([][]varstore.Var{inmemoryvars.Vars(gridVar(t, "u"))}),
			"not a scratch var")

		b := mustBundle(t, Config{Name: "b", Dims: d, Eval: rec.eval})
		assert.ErrorContains(t, b.SetOutputScratchVars(nil), "only scratch bundles")
	})
}

func TestAdjustSpan(t *testing.T) {
	d := testDims(t)
	rec := &recorder{}
	s := mustBundle(t, Config{
		Name: "s", Scratch: true, Dims: d, Eval: rec.eval,
		OutputScratch: [][]varstore.Var{scratchVec(t, "tmp", 2, 3, 16, 1)},
	})

	t.Run("halo growth rounded to fold", func(t *testing.T) {
		got := s.AdjustSpan(mbAt(0, 4, 12, 0, 8))
		assert.Equal(t, idx.Indices{0, 0, 0}, got.Begin)
		assert.Equal(t, idx.Indices{1, 16, 8}, got.End)
	})

	t.Run("never shrinks", func(t *testing.T) {
		for b := int64(-9); b < 9; b++ {
			for w := int64(1); w < 9; w++ {
				in := mbAt(0, b, b+w, 0, 8)
				got := s.AdjustSpan(in)
				name := fmt.Sprintf("[%d,%d)", b, b+w)
				assert.LessOrEqual(t, got.Begin[1], b-2, name)
				assert.GreaterOrEqual(t, got.End[1], b+w+3, name)
				assert.Zero(t, idx.ImodFlr(got.Begin[1], 4), name)
				assert.Zero(t, idx.ImodFlr(got.End[1], 4), name)
				assert.Equal(t, in.Begin[2], got.Begin[2])
				assert.Equal(t, in.End[2], got.End[2])
			}
		}
	})

	t.Run("full-width stride widens", func(t *testing.T) {
		in := mbAt(0, 4, 12, 0, 8)
		in.Stride = idx.Indices{1, 8, 2}
		got := s.AdjustSpan(in)
		assert.Equal(t, idx.Indices{1, 16, 2}, got.Stride)
		assert.Equal(t, idx.Indices{1, 8, 2}, in.Stride, "input must not change")
	})

	t.Run("non-scratch bundle panics", func(t *testing.T) {
		b := mustBundle(t, Config{Name: "b", Dims: d, Eval: rec.eval})
		requirePanicIs(t, func() { b.AdjustSpan(mbAt(0, 0, 4, 0, 4)) }, ErrPrecondition)
	})
}

func TestUpdateVarInfo(t *testing.T) {
	d := testDims(t)
	rec := &recorder{}

	for _, tc := range []struct {
		dirty, dev, valid bool
	}{
		{false, false, false},
		{true, false, false},
		{false, true, false},
		{false, false, true},
		{true, true, false},
		{true, false, true},
		{false, true, true},
		{true, true, true},
	} {
		t.Run(fmt.Sprintf("dirty=%v dev=%v valid=%v", tc.dirty, tc.dev, tc.valid), func(t *testing.T) {
			out := gridVar(t, "u")
			scratch := scratchVec(t, "tmp", 0, 0, 8, 1)[0].(*inmemoryvars.Var)
			b := mustBundle(t, Config{Name: "b", Dims: d, Eval: rec.eval,
				Outputs: []varstore.Var{out, scratch}})

			b.UpdateVarInfo(varstore.Neighbor, 10, tc.dirty, tc.dev, tc.valid)

			assert.Equal(t, tc.dirty, out.IsDirty(varstore.Neighbor, 11))
			assert.False(t, out.IsDirty(varstore.Self, 11))
			assert.Equal(t, tc.dev, out.DevModified())
			step, ok := out.LastValidStep()
			assert.Equal(t, tc.valid, ok)
			if tc.valid {
				assert.Equal(t, int64(11), step)
			}

			assert.Zero(t, scratch.DirtySteps(varstore.Neighbor))
			assert.False(t, scratch.DevModified())
			_, ok = scratch.LastValidStep()
			assert.False(t, ok)
		})
	}

	t.Run("no output step", func(t *testing.T) {
		table, err := inmemoryvars.New(inmemoryvars.Spec{Name: "coef", Dims: []string{"x"}})
		require.NoError(t, err)
		b := mustBundle(t, Config{Name: "b", Dims: d, Eval: rec.eval, Outputs: inmemoryvars.Vars(table)})

		b.UpdateVarInfo(varstore.Self, 3, true, true, true)
		assert.Zero(t, table.DirtySteps(varstore.Self))
		assert.False(t, table.DevModified())
	})

	t.Run("backward stepping and custom output step", func(t *testing.T) {
		back, err := newDims(-1)
		require.NoError(t, err)
		out := gridVar(t, "u")
		b := mustBundle(t, Config{Name: "b", Dims: back, Eval: rec.eval, Outputs: inmemoryvars.Vars(out)})
		b.UpdateVarInfo(varstore.Self, 5, true, false, false)
		assert.True(t, out.IsDirty(varstore.Self, 4))

		custom := mustBundle(t, Config{Name: "c", Dims: d, Eval: rec.eval, Outputs: inmemoryvars.Vars(out),
			OutputStep: func(t int64) (int64, bool) { return t + 2, t > 0 }})
		custom.UpdateVarInfo(varstore.Self, 5, true, false, false)
		assert.True(t, out.IsDirty(varstore.Self, 7))
		custom.UpdateVarInfo(varstore.Self, 0, true, false, false)
		assert.False(t, out.IsDirty(varstore.Self, 2))
	})

	t.Run("flags are never cleared", func(t *testing.T) {
		out := gridVar(t, "u")
		b := mustBundle(t, Config{Name: "b", Dims: d, Eval: rec.eval, Outputs: inmemoryvars.Vars(out)})
		b.UpdateVarInfo(varstore.Self, 0, true, false, false)
		b.UpdateVarInfo(varstore.Self, 0, false, true, true)
		assert.True(t, out.IsDirty(varstore.Self, 1))
	})
}
