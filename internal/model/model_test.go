package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validSpec returns a two-type, two-environment spec that passes validation.
func validSpec() Spec {
	return Spec{
		Environments: [][]float64{{0, 0.1}, {0.2, 0}},
		Components: []ComponentSpec{
			{
				Name: "cpu", Redundancy: 2, Required: 1,
				Failure: []float64{0.01, 0.02}, Repair: []float64{1, 1},
				Cascading: []CascadeSpec{{Target: "mem", Probability: 0.3}},
			},
			{
				Name: "mem", Redundancy: 1, Required: 1,
				Failure: []float64{0.005, 0.005}, Repair: []float64{0.5, 0.5},
			},
		},
	}
}

func TestBuild_Valid(t *testing.T) {
	m, err := Build(validSpec())
	require.NoError(t, err)

	assert.Equal(t, 2, m.EnvCount())
	assert.Equal(t, 2, m.NumTypes())
	assert.Equal(t, RepairShared, m.RepairPolicy(), "empty policy defaults to shared")
	assert.Equal(t, []uint8{2, 1}, m.Redundancies())
	assert.Equal(t, 0.2, m.EnvRate(1, 0))

	mem, ok := m.Lookup("mem")
	require.True(t, ok)
	assert.Equal(t, 1, mem)
	assert.Equal(t, []Link{{Target: 1, Probability: 0.3}}, m.Component(0).Cascading)
	assert.InDelta(t, 0.25, m.LinkDensity(), 1e-15)
}

func TestBuild_CopiesInput(t *testing.T) {
	spec := validSpec()
	m, err := Build(spec)
	require.NoError(t, err)

	spec.Environments[0][1] = 99
	spec.Components[0].Failure[0] = 99
	assert.Equal(t, 0.1, m.EnvRate(0, 1))
	assert.Equal(t, 0.01, m.Component(0).Failure[0])
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
		want   string
	}{
		{"empty environments", func(s *Spec) { s.Environments = nil }, "environments: env-change matrix not found or empty"},
		{"non-square environments", func(s *Spec) { s.Environments[1] = []float64{0.2} }, "must be square"},
		{"non-zero diagonal", func(s *Spec) { s.Environments[0][0] = 1 }, "diagonal must be zero"},
		{"negative env rate", func(s *Spec) { s.Environments[0][1] = -1 }, "finite and non-negative"},
		{"no components", func(s *Spec) { s.Components = nil }, "components not found or empty"},
		{"failure length", func(s *Spec) { s.Components[0].Failure = []float64{0.1} }, "components.cpu.failure: rates should be defined for each environment"},
		{"repair length", func(s *Spec) { s.Components[1].Repair = nil }, "components.mem.repair: rates should be defined for each environment"},
		{"unknown cascading target", func(s *Spec) { s.Components[0].Cascading[0].Target = "disk" }, "components.cpu.cascading.disk: is an invalid cascading component"},
		{"probability out of range", func(s *Spec) { s.Components[0].Cascading[0].Probability = 1.5 }, "probability must be in [0, 1]"},
		{"required above redundancy", func(s *Spec) { s.Components[1].Required = 2 }, "components.mem.required"},
		{"zero redundancy", func(s *Spec) { s.Components[1].Redundancy = 0; s.Components[1].Required = 0 }, "components.mem.redundancy"},
		{"duplicate name", func(s *Spec) { s.Components[1].Name = "cpu"; s.Components[0].Cascading = nil }, "duplicate component name"},
		{"unknown repair policy", func(s *Spec) { s.RepairPolicy = "magic" }, "unknown repair policy"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := validSpec()
			tc.mutate(&spec)

			m, err := Build(spec)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.True(t, errors.Is(err, ErrConfiguration))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	spec := validSpec()
	spec.Environments[0][0] = 3
	spec.Components[0].Failure = nil
	spec.Components[1].Cascading = []CascadeSpec{{Target: "ghost", Probability: 0.1}}

	vs := Validate(spec)
	require.Len(t, vs, 3)

	var joined []string
	for _, v := range vs {
		joined = append(joined, v.String())
	}
	all := strings.Join(joined, "\n")
	assert.Contains(t, all, "environments[0][0]")
	assert.Contains(t, all, "components.cpu.failure")
	assert.Contains(t, all, "components.mem.cascading.ghost")
}

func TestValidate_FanOutLimit(t *testing.T) {
	spec := Spec{Environments: [][]float64{{0}}}
	for i := 0; i <= MaxFanOut+1; i++ {
		spec.Components = append(spec.Components, ComponentSpec{
			Name: string(rune('a' + i)), Redundancy: 1, Required: 1,
			Failure: []float64{0.1}, Repair: []float64{1},
		})
	}
	for i := 1; i <= MaxFanOut+1; i++ {
		spec.Components[0].Cascading = append(spec.Components[0].Cascading,
			CascadeSpec{Target: spec.Components[i].Name, Probability: 0.5})
	}

	vs := Validate(spec)
	require.Len(t, vs, 1)
	assert.Equal(t, "cascading", vs[0].Field)
}

// --- state space size ---

func TestValidate_StateSpaceTooLarge(t *testing.T) {
	spec := Spec{Environments: [][]float64{{0}}}
	for i := 0; i < 8; i++ {
		spec.Components = append(spec.Components, ComponentSpec{
			Name: string(rune('a' + i)), Redundancy: 255, Required: 1,
			Failure: []float64{0.1}, Repair: []float64{1},
		})
	}

	vs := Validate(spec)
	require.Len(t, vs, 1)
	assert.Equal(t, "components", vs[0].Field)
	assert.Contains(t, vs[0].String(), "state space exceeds")

	m, err := Build(spec)
	assert.Nil(t, m)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestStateCount(t *testing.T) {
	n, ok := StateCount(2, []int{2, 1, 3})
	assert.True(t, ok)
	assert.Equal(t, 2*3*2*4, n)

	_, ok = StateCount(1, []int{255, 255, 255, 255, 255, 255, 255, 255})
	assert.False(t, ok, "256^8 wraps int")

	_, ok = StateCount(1, []int{MaxStates - 1})
	assert.True(t, ok)
	_, ok = StateCount(2, []int{MaxStates - 1})
	assert.False(t, ok)

	m, err := Build(validSpec())
	require.NoError(t, err)
	n, ok = m.StateCount()
	assert.True(t, ok)
	assert.Equal(t, 2*3*2, n)
}
