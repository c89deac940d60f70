package idx

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloorArithmetic(t *testing.T) {
	cases := []struct {
		a, b       int64
		div, mod   int64
		down, upTo int64
	}{
		{a: 7, b: 4, div: 1, mod: 3, down: 4, upTo: 8},
		{a: 8, b: 4, div: 2, mod: 0, down: 8, upTo: 8},
		{a: -1, b: 4, div: -1, mod: 3, down: -4, upTo: 0},
		{a: -4, b: 4, div: -1, mod: 0, down: -4, upTo: -4},
		{a: -5, b: 4, div: -2, mod: 3, down: -8, upTo: -4},
		{a: 0, b: 3, div: 0, mod: 0, down: 0, upTo: 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.div, IdivFlr(tc.a, tc.b), "IdivFlr(%d, %d)", tc.a, tc.b)
		assert.Equal(t, tc.mod, ImodFlr(tc.a, tc.b), "ImodFlr(%d, %d)", tc.a, tc.b)
		assert.Equal(t, tc.down, RoundDownFlr(tc.a, tc.b), "RoundDownFlr(%d, %d)", tc.a, tc.b)
		assert.Equal(t, tc.upTo, RoundUpFlr(tc.a, tc.b), "RoundUpFlr(%d, %d)", tc.a, tc.b)
	}

	assert.Equal(t, int64(-3), RoundDownFlr(-3, 1))
	assert.Equal(t, int64(5), RoundUpFlr(5, 0))
}

func TestScanIndicesClone(t *testing.T) {
	s := NewScanIndices(2)
	s.Begin[1], s.End[1] = 3, 9

	c := s.Clone()
	c.Begin[1] = 100
	c.Stride[0] = 7

	assert.Equal(t, int64(3), s.Begin[1])
	assert.Equal(t, int64(1), s.Stride[0])
	assert.Equal(t, int64(6), s.OverallRange(1))
}

func TestAdjustFromSettings(t *testing.T) {
	s := NewScanIndices(3)
	s.Begin = Indices{0, 0, 10}
	s.End = Indices{1, 64, 20}
	posns := []DimPosn{{Stencil: 1, Domain: 0}, {Stencil: 2, Domain: 1}}

	s.AdjustFromSettings(Indices{16, 0}, posns)

	if diff := cmp.Diff(Indices{1, 16, 10}, s.Stride); diff != "" {
		t.Errorf("stride mismatch (-want +got):\n%s", diff)
	}

	s.AdjustFromSettings(Indices{128, 4}, posns)
	assert.Equal(t, Indices{1, 64, 4}, s.Stride)
}

func collect(t *testing.T, s ScanIndices) []NanoRange {
	t.Helper()
	var out []NanoRange
	require.NoError(t, Walk(s, func(r NanoRange) error {
		out = append(out, r)
		return nil
	}))
	return out
}

func TestWalk(t *testing.T) {
	t.Run("covers range without overlap", func(t *testing.T) {
		s := NewScanIndices(2)
		s.Begin = Indices{-3, 0}
		s.End = Indices{10, 5}
		s.Stride = Indices{4, 2}

		tiles := collect(t, s)
		seen := map[[2]int64]int{}
		var total int64
		for _, r := range tiles {
			total += r.NumPoints()
			for x := r.Start[0]; x < r.Stop[0]; x++ {
				for y := r.Start[1]; y < r.Stop[1]; y++ {
					seen[[2]int64{x, y}]++
				}
			}
		}
		assert.Equal(t, int64(13*5), total)
		assert.Len(t, seen, 13*5)
		for p, n := range seen {
			assert.Equal(t, 1, n, "point %v visited %d times", p, n)
		}
	})

	t.Run("tiles snap to alignment grid", func(t *testing.T) {
		s := NewScanIndices(1)
		s.Begin = Indices{3}
		s.End = Indices{17}
		s.Stride = Indices{4}
		s.Align = Indices{4}

		tiles := collect(t, s)
		var starts, stops []int64
		for _, r := range tiles {
			starts = append(starts, r.Start[0])
			stops = append(stops, r.Stop[0])
		}
		assert.Equal(t, []int64{3, 4, 8, 12, 16}, starts)
		assert.Equal(t, []int64{4, 8, 12, 16, 17}, stops)
	})

	t.Run("empty and backward dims", func(t *testing.T) {
		s := NewScanIndices(2)
		s.Begin = Indices{5, 0}
		s.End = Indices{5, 4}
		assert.Empty(t, collect(t, s))

		s.End = Indices{4, 4}
		tiles := collect(t, s)
		require.Len(t, tiles, 4)
		assert.Equal(t, int64(5), tiles[0].Start[0])
		assert.Equal(t, int64(4), tiles[0].Stop[0])
	})

	t.Run("stops on error", func(t *testing.T) {
		s := NewScanIndices(1)
		s.End = Indices{10}
		boom := errors.New("boom")
		calls := 0
		err := Walk(s, func(NanoRange) error {
			calls++
			if calls == 3 {
				return boom
			}
			return nil
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
	})
}
