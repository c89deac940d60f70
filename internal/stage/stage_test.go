package stage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/stencilgo/internal/bbox"
	"github.com/vk/stencilgo/internal/bundle"
	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/dims"
	"github.com/vk/stencilgo/internal/env"
	"github.com/vk/stencilgo/internal/idx"
	"github.com/vk/stencilgo/internal/inmemoryvars"
	"github.com/vk/stencilgo/internal/varstore"
)

func testCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func noop(context.Context, *bundle.Bundle, int, int, idx.NanoRange) error { return nil }

type fixture struct {
	dims  *dims.Dims
	set   *bundle.Set
	main  *bundle.Bundle
	stage *Stage
}

// newFixture builds a stage with one bundle "main" over [0,10)x[0,10) with
// costs (2,1,4) that requires scratch bundle "tmp" over [5,15)x[0,10) with
// costs (3,1,5). The boxes share 50 points.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	d, err := dims.New("t", []string{"x", "y"}, nil, nil, 1)
	require.NoError(t, err)

	mk := func(name string, dom bool, vdims ...string) *inmemoryvars.Var {
		v, err := inmemoryvars.New(inmemoryvars.Spec{Name: name, Dims: vdims, Domain: dom})
		require.NoError(t, err)
		return v
	}
	u := mk("u", true, "t", "x", "y")
	rho := mk("rho", true, "x", "y")
	out := mk("out", true, "t", "x", "y")
	coef := mk("coef", false, "x")
	acc := mk("acc", false, "x")
	sum := mk("sum", false, "x")

	tmp, err := inmemoryvars.NewScratchVec(inmemoryvars.Spec{Name: "tmp_v", Dims: []string{"x", "y"}}, 1)
	require.NoError(t, err)

	scratch, err := bundle.New(bundle.Config{
		Name: "tmp", Scratch: true, Dims: d, Eval: noop,
		BBs:                 []bbox.BoundingBox{bbox.New(idx.Indices{5, 0}, idx.Indices{15, 10})},
		OutputScratch:       [][]varstore.Var{inmemoryvars.Vars(tmp...)},
		ReadsPerPoint:       3,
		WritesPerPoint:      1,
		FPOpsPerPoint:       5,
		StepCond:            func(t int64) (bool, error) { return t > 0, nil },
		StepCondDescription: "t > 0",
	})
	require.NoError(t, err)

	main, err := bundle.New(bundle.Config{
		Name: "main", Dims: d, Eval: noop,
		BBs:                  []bbox.BoundingBox{bbox.New(idx.Indices{0, 0}, idx.Indices{10, 10})},
		Inputs:               []varstore.Var{u, rho, coef, acc, sum},
		Outputs:              []varstore.Var{u, out, acc, sum},
		ReadsPerPoint:        2,
		WritesPerPoint:       1,
		FPOpsPerPoint:        4,
		SubDomainDescription: "x < 10",
	})
	require.NoError(t, err)

	set := bundle.NewSet()
	require.NoError(t, set.Add(main))
	require.NoError(t, set.Add(scratch))
	require.NoError(t, set.AddScratchDep("main", "tmp"))
	require.NoError(t, set.Resolve())

	st, err := New("stage0", d, main)
	require.NoError(t, err)
	return &fixture{dims: d, set: set, main: main, stage: st}
}

func TestInitWorkStats(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	require.NoError(t, f.stage.InitWorkStats(testCtx(), env.Local{}, &buf))

	ws := f.stage.Stats()
	require.Len(t, ws.Bundles, 1)
	assert.Equal(t, []Counts{
		{Bundle: "tmp", Points: 50, Reads: 150, Writes: 50, FPOps: 250},
		{Bundle: "main", Points: 100, Reads: 200, Writes: 100, FPOps: 400},
	}, ws.Bundles[0].Required)

	assert.Equal(t, int64(350), ws.ReadsPerStep)
	assert.Equal(t, int64(150), ws.WritesPerStep)
	assert.Equal(t, int64(650), ws.FPOpsPerStep)
	assert.Equal(t, ws.ReadsPerStep, ws.TotReadsPerStep)
	assert.Equal(t, ws.FPOpsPerStep, ws.TotFPOpsPerStep)

	assert.Equal(t, VarClasses{
		InputDomain:       []string{"rho"},
		OutputDomain:      []string{"out"},
		InputOutputDomain: []string{"u"},
		InputOther:        []string{"coef"},
		InputOutputOther:  []string{"acc", "sum"},
	}, ws.Bundles[0].Vars)

	report := buf.String()
	for _, want := range []string{
		"Stage 'stage0':",
		" stage scope:                 x=0...9, y=0...9",
		"  num reqd scratch bundles:   1",
		"  Bundle 'tmp':",
		"   step-condition expr:        't > 0'",
		"   sub-domain expr:            'x < 10'",
		"   var-reads in rank:          150",
		"   est FP-ops in rank:         400",
		"     rect scope:               x=5...14, y=0...9",
		"     rect size:                x=10 * y=10",
		"  num input-only domain vars:    1\n  input-only domain vars:        rho\n",
		"  num output-only other vars:    0\n  num input-output other vars:   2\n  input-output other vars:       acc, sum\n",
	} {
		assert.Contains(t, report, want)
	}
}

func TestInitWorkStatsGroupsThousands(t *testing.T) {
	d, err := dims.New("t", []string{"x", "y"}, nil, nil, 1)
	require.NoError(t, err)
	big, err := bundle.New(bundle.Config{
		Name: "big", Dims: d, Eval: noop, ReadsPerPoint: 7,
		BBs: []bbox.BoundingBox{bbox.New(idx.Indices{0, 0}, idx.Indices{1000, 1000})},
	})
	require.NoError(t, err)
	st, err := New("s", d, big)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, st.InitWorkStats(testCtx(), env.Local{}, &buf))
	assert.Contains(t, buf.String(), "points to eval in bundle:   1,000,000")
	assert.Contains(t, buf.String(), "var-reads in rank:          7,000,000")
}

func TestInitWorkStatsAcrossRanks(t *testing.T) {
	const ranks = 3
	g, err := env.NewGroup(ranks)
	require.NoError(t, err)

	fixtures := make([]*fixture, ranks)
	for r := range fixtures {
		fixtures[r] = newFixture(t)
	}

	var mu sync.Mutex
	got := map[int]WorkStats{}
	err = g.Run(testCtx(), func(ctx context.Context, e env.Env) error {
		f := fixtures[e.Rank()]
		if err := f.stage.InitWorkStats(ctx, e, io.Discard); err != nil {
			return err
		}
		mu.Lock()
		got[e.Rank()] = f.stage.Stats()
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	for r := 0; r < ranks; r++ {
		assert.Equal(t, int64(350), got[r].ReadsPerStep)
		assert.Equal(t, int64(ranks*350), got[r].TotReadsPerStep)
		assert.Equal(t, int64(ranks*150), got[r].TotWritesPerStep)
		assert.Equal(t, int64(ranks*650), got[r].TotFPOpsPerStep)
	}
}

func TestInitWorkStatsReductionFailure(t *testing.T) {
	g, err := env.NewGroup(2)
	require.NoError(t, err)
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(testCtx(), 20*time.Millisecond)
	defer cancel()
	err = f.stage.InitWorkStats(ctx, g.Member(0), io.Discard)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorContains(t, err, "summing reads")
}

func TestNewRejectsScratch(t *testing.T) {
	f := newFixture(t)
	tmp, ok := f.set.Get("tmp")
	require.True(t, ok)
	_, err := New("bad", f.dims, f.main, tmp)
	assert.ErrorContains(t, err, "scratch bundle \"tmp\"")

	_, err = New("", f.dims)
	assert.Error(t, err)
}

func TestTimers(t *testing.T) {
	f := newFixture(t)
	clock := time.Unix(0, 0)
	f.stage.now = func() time.Time { return clock }

	f.stage.StartTimers()
	clock = clock.Add(3 * time.Second)
	assert.Equal(t, 3*time.Second, f.stage.Elapsed(), "running timer includes the open interval")
	f.stage.StopTimers()

	clock = clock.Add(time.Hour)
	f.stage.StopTimers()
	assert.Equal(t, 3*time.Second, f.stage.Elapsed())

	f.stage.StartTimers()
	f.stage.StartTimers()
	clock = clock.Add(2 * time.Second)
	f.stage.StopTimers()
	assert.Equal(t, 5*time.Second, f.stage.Elapsed())

	f.stage.AddSteps(4)
	f.stage.AddSteps(1)
	assert.Equal(t, int64(5), f.stage.StepsDone())
}

func TestScope(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, idx.Indices{0, 0}, f.stage.BB().Begin)
	assert.Equal(t, idx.Indices{10, 10}, f.stage.BB().End)
	assert.Equal(t, "stage0", f.stage.Name())
	assert.Len(t, f.stage.Bundles(), 1)
}
