package generator

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decaf-reliability/decaf/internal/linalg"
	"github.com/decaf-reliability/decaf/internal/model"
	"github.com/decaf-reliability/decaf/internal/state"
)

func build(t *testing.T, spec model.Spec, opts Options) (*model.Model, *state.Space, *Generator) {
	t.Helper()
	m, err := model.Build(spec)
	require.NoError(t, err)
	sp, err := state.Build(m)
	require.NoError(t, err)
	g, err := Build(context.Background(), m, sp, opts)
	require.NoError(t, err)
	return m, sp, g
}

// threeTypes is a two-environment model with a dense cascading graph.
func threeTypes(policy model.RepairPolicy) model.Spec {
	return model.Spec{
		Environments: [][]float64{{0, 0.02}, {0.5, 0}},
		RepairPolicy: policy,
		Components: []model.ComponentSpec{
			{
				Name: "psu", Redundancy: 2, Required: 1,
				Failure: []float64{0.001, 0.01}, Repair: []float64{0.2, 0.1},
				Cascading: []model.CascadeSpec{{Target: "fan", Probability: 0.4}, {Target: "cpu", Probability: 0.1}},
			},
			{
				Name: "fan", Redundancy: 3, Required: 2,
				Failure: []float64{0.002, 0.004}, Repair: []float64{0.5, 0.5},
				Cascading: []model.CascadeSpec{{Target: "cpu", Probability: 0.3}},
			},
			{
				Name: "cpu", Redundancy: 1, Required: 1,
				Failure: []float64{0.0005, 0.002}, Repair: []float64{0.05, 0.05},
				Cascading: []model.CascadeSpec{{Target: "psu", Probability: 0.05}, {Target: "fan", Probability: 0.2}},
			},
		},
	}
}

func dense(q *linalg.CSR) [][]float64 {
	n := q.Dim()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		cols, vals := q.Row(i)
		for k, j := range cols {
			out[i][j] = vals[k]
		}
	}
	return out
}

func TestBuild_SingleComponent(t *testing.T) {
	spec := model.Spec{
		Environments: [][]float64{{0}},
		Components: []model.ComponentSpec{
			{Name: "disk", Redundancy: 1, Required: 1, Failure: []float64{0.01}, Repair: []float64{0.1}},
		},
	}
	_, _, g := build(t, spec, Options{})

	want := [][]float64{
		{-0.01, 0.01},
		{0.1, -0.1},
	}
	got := dense(g.Q)
	for i := range want {
		assert.InDeltaSlice(t, want[i], got[i], 1e-15, "row %d", i)
	}
	assert.Equal(t, uint64(1), g.Stats.Trees)
	assert.Equal(t, uint64(1), g.Stats.Transitions)
}

func TestBuild_EnvironmentBlocks(t *testing.T) {
	spec := model.Spec{
		Environments: [][]float64{{0, 0.3}, {0.7, 0}},
		Components: []model.ComponentSpec{
			{Name: "a", Redundancy: 1, Required: 1, Failure: []float64{0, 0}, Repair: []float64{0, 0}},
		},
	}
	_, _, g := build(t, spec, Options{})

	// Failures and repairs are disabled, so Q is two copies of the
	// environment generator on the diagonal blocks.
	q := dense(g.Q)
	for base := 0; base < 4; base += 2 {
		assert.InDelta(t, -0.3, q[base][base], 1e-15)
		assert.InDelta(t, 0.3, q[base][base+1], 1e-15)
		assert.InDelta(t, 0.7, q[base+1][base], 1e-15)
		assert.InDelta(t, -0.7, q[base+1][base+1], 1e-15)
	}
	assert.Zero(t, q[0][2])
	assert.Zero(t, g.Stats.Transitions)
}

func TestBuild_CascadingEdges(t *testing.T) {
	spec := model.Spec{
		Environments: [][]float64{{0}},
		Components: []model.ComponentSpec{
			{
				Name: "a", Redundancy: 1, Required: 1, Failure: []float64{0.02}, Repair: []float64{0},
				Cascading: []model.CascadeSpec{{Target: "b", Probability: 0.25}},
			},
			{Name: "b", Redundancy: 1, Required: 1, Failure: []float64{0}, Repair: []float64{0}},
		},
	}
	_, sp, g := build(t, spec, Options{})

	from := sp.Codec.Encode(state.New([]int{0, 0}, 0))
	aOnly := sp.Codec.Encode(state.New([]int{1, 0}, 0))
	both := sp.Codec.Encode(state.New([]int{1, 1}, 0))
	assert.InDelta(t, 0.02*0.75, g.Q.At(from, aOnly), 1e-15)
	assert.InDelta(t, 0.02*0.25, g.Q.At(from, both), 1e-15)

	// With b already failed the induced failure is absorbed and a keeps
	// its full failure rate.
	bDown := sp.Codec.Encode(state.New([]int{0, 1}, 0))
	assert.InDelta(t, 0.02, g.Q.At(bDown, both), 1e-15)
	assert.InDelta(t, -0.02, g.Q.At(bDown, bDown), 1e-15)
	assert.Equal(t, uint64(1), g.Stats.Absorbed)
}

func TestBuild_FailureOutflowIndependentOfCascading(t *testing.T) {
	spec := threeTypes(model.RepairShared)
	for i := range spec.Components {
		spec.Components[i].Repair = []float64{0, 0}
	}
	spec.Environments = [][]float64{{0, 0}, {0, 0}}
	m, sp, g := build(t, spec, Options{})

	// Every root failure leaves the state, whatever it induces.
	for i := 0; i < sp.Length; i++ {
		s := sp.Codec.Decode(i)
		want := 0.0
		for typ := 0; typ < m.NumTypes(); typ++ {
			c := m.Component(typ)
			want += float64(int(c.Redundancy)-s.Count(typ)) * c.Failure[s.Env()]
		}
		assert.InDelta(t, -want, g.Q.At(i, i), 1e-12, "state %d", i)
	}
}

func TestBuild_RepairPolicies(t *testing.T) {
	spec := model.Spec{
		Environments: [][]float64{{0}},
		Components: []model.ComponentSpec{
			{Name: "a", Redundancy: 2, Required: 1, Failure: []float64{0}, Repair: []float64{0.4}},
			{Name: "b", Redundancy: 1, Required: 1, Failure: []float64{0}, Repair: []float64{0.9}},
		},
	}

	tests := []struct {
		policy model.RepairPolicy
		wantA  float64
		wantB  float64
	}{
		{model.RepairShared, 2 * 0.4 / 3, 0.9 / 3},
		{model.RepairPerType, 0.4, 0.9},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			spec.RepairPolicy = tt.policy
			_, sp, g := build(t, spec, Options{})

			from := sp.Codec.Encode(state.New([]int{2, 1}, 0))
			toA := sp.Codec.Encode(state.New([]int{1, 1}, 0))
			toB := sp.Codec.Encode(state.New([]int{2, 0}, 0))
			assert.InDelta(t, tt.wantA, g.Q.At(from, toA), 1e-15)
			assert.InDelta(t, tt.wantB, g.Q.At(from, toB), 1e-15)
		})
	}
}

func TestBuild_RowsSumToZero(t *testing.T) {
	for _, mode := range []DiagonalMode{DiagonalIncremental, DiagonalFinal} {
		t.Run(string(mode), func(t *testing.T) {
			_, sp, g := build(t, threeTypes(model.RepairShared), Options{Diagonal: mode})
			for i := 0; i < sp.Length; i++ {
				assert.InDelta(t, 0, g.Q.RowSum(i), 1e-12, "row %d", i)
			}
			assert.NoError(t, Check(g.Q, sp.Length))
		})
	}
}

func TestBuild_DiagonalModesAgree(t *testing.T) {
	_, sp, inc := build(t, threeTypes(model.RepairShared), Options{Diagonal: DiagonalIncremental})
	_, _, fin := build(t, threeTypes(model.RepairShared), Options{Diagonal: DiagonalFinal})

	assert.True(t, inc.Stats.Incremental)
	assert.False(t, fin.Stats.Incremental)
	for i := 0; i < sp.Length; i++ {
		for j := 0; j < sp.Length; j++ {
			a, b := inc.Q.At(i, j), fin.Q.At(i, j)
			assert.InDelta(t, a, b, 1e-12*math.Max(1, math.Abs(a)), "(%d, %d)", i, j)
		}
	}
}

func TestBuild_AutoFollowsLinkDensity(t *testing.T) {
	// 5 links over 3 types → density 5/9.
	m, _, g := build(t, threeTypes(model.RepairShared), Options{Diagonal: DiagonalAuto})
	require.GreaterOrEqual(t, m.LinkDensity(), DensityThreshold)
	assert.True(t, g.Stats.Incremental)

	sparse := threeTypes(model.RepairShared)
	sparse.Components[0].Cascading = nil
	sparse.Components[2].Cascading = nil
	m, _, g = build(t, sparse, Options{})
	require.Less(t, m.LinkDensity(), DensityThreshold)
	assert.False(t, g.Stats.Incremental)
}

func TestBuild_DeterministicAcrossWorkers(t *testing.T) {
	_, sp, seq := build(t, threeTypes(model.RepairPerType), Options{Workers: 1})
	_, _, par := build(t, threeTypes(model.RepairPerType), Options{Workers: 8})

	require.Equal(t, seq.Q.NNZ(), par.Q.NNZ())
	for i := 0; i < sp.Length; i++ {
		sc, sv := seq.Q.Row(i)
		pc, pv := par.Q.Row(i)
		assert.Equal(t, sc, pc, "row %d", i)
		assert.Equal(t, sv, pv, "row %d", i)
	}
	assert.Equal(t, seq.Stats.Trees, par.Stats.Trees)
	assert.Equal(t, seq.Stats.AvoidedTrees, par.Stats.AvoidedTrees)
	assert.Equal(t, seq.Stats.Transitions, par.Stats.Transitions)
}

func TestBuild_Cancelled(t *testing.T) {
	m, err := model.Build(threeTypes(model.RepairShared))
	require.NoError(t, err)
	sp, err := state.Build(m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Build(ctx, m, sp, Options{})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestCheck_Violations(t *testing.T) {
	tr := linalg.NewTriplets(2)
	tr.Add(0, 1, 1)
	tr.Add(0, 0, -0.5)
	err := Check(tr.Compress(), 2)
	assert.ErrorIs(t, err, ErrInconsistent)

	tr = linalg.NewTriplets(2)
	tr.Add(0, 1, -1)
	tr.Add(0, 0, 1)
	assert.ErrorIs(t, Check(tr.Compress(), 2), ErrInconsistent)

	assert.ErrorIs(t, Check(linalg.NewTriplets(2).Compress(), 3), ErrInconsistent)
}

func TestRepairRateOf(t *testing.T) {
	c := &model.Component{Repair: []float64{0.6, 0.2}}
	assert.Zero(t, RepairRateOf(c, model.RepairShared, 0, 3, 0))
	assert.InDelta(t, 0.4, RepairRateOf(c, model.RepairShared, 2, 3, 0), 1e-15)
	assert.InDelta(t, 0.2, RepairRateOf(c, model.RepairPerType, 2, 3, 1), 1e-15)
}
