package report

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/decaf-reliability/decaf/internal/engine"
)

var runID = uuid.MustParse("6f1c2a4e-3b7d-4c59-9e21-0a8b5d7f3c10")

func sampleResult() *engine.Result {
	return &engine.Result{
		RunID:             runID,
		StartedAt:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		MTTF:              5150,
		MTTFByEnvironment: []float64{5150, 4900},
		SSU:               0.0125,
		Availability:      0.9875,
		Diagnostics: engine.Diagnostics{
			States:         18,
			UpStates:       8,
			NonZeros:       64,
			Patterns:       6,
			Trees:          5,
			AvoidedTrees:   1,
			Transitions:    22,
			MTTFIterations: 7,
			MTTFResidual:   3e-13,
			SSUIterations:  11,
			SSUResidual:    8e-13,
			Phases: []engine.Phase{
				{Name: "states", Duration: 2 * time.Millisecond},
				{Name: "generator", Duration: 15 * time.Millisecond},
			},
		},
	}
}

func TestWriteMetrics_ParsesBack(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMetrics(&buf, sampleResult()))

	mfs, err := ParseMetrics(&buf)
	require.NoError(t, err)

	assert.Equal(t, 5150.0, Value(mfs, MetricMTTF))
	assert.Equal(t, 0.0125, Value(mfs, MetricSSU))
	assert.Equal(t, 0.9875, Value(mfs, MetricAvailability))
	assert.Equal(t, 18.0, Value(mfs, MetricStates))
	assert.Equal(t, 5.0, Value(mfs, MetricTrees))
	assert.Equal(t, 1.0, Value(mfs, MetricAvoidedTrees))
	assert.Equal(t, 22.0, Value(mfs, MetricTransitions))
	assert.Equal(t, 1767225600.0, Value(mfs, MetricRunStartSeconds))

	v, ok := LabelValue(mfs, MetricMTTFByEnv, "environment", "1")
	require.True(t, ok)
	assert.Equal(t, 4900.0, v)

	v, ok = LabelValue(mfs, MetricSolverIter, "solve", "ssu")
	require.True(t, ok)
	assert.Equal(t, 11.0, v)

	v, ok = LabelValue(mfs, MetricPhaseSeconds, "phase", "generator")
	require.True(t, ok)
	assert.InDelta(t, 0.015, v, 1e-12)

	_, ok = LabelValue(mfs, MetricRunInfo, "run_id", runID.String())
	assert.True(t, ok)

	assert.True(t, math.IsNaN(Value(mfs, "decaf_absent")))
}

func TestWriteMetrics_InfiniteMTTF(t *testing.T) {
	res := sampleResult()
	res.MTTF = math.Inf(1)
	res.MTTFByEnvironment = []float64{math.Inf(1)}

	var buf bytes.Buffer
	require.NoError(t, WriteMetrics(&buf, res))
	assert.Contains(t, buf.String(), "decaf_mttf +Inf")

	mfs, err := ParseMetrics(&buf)
	require.NoError(t, err)
	assert.True(t, math.IsInf(Value(mfs, MetricMTTF), 1))
}

func TestFamilies_SortedAndTyped(t *testing.T) {
	fams := Families(sampleResult())
	for i := 1; i < len(fams); i++ {
		assert.Less(t, fams[i-1].GetName(), fams[i].GetName())
	}
	for _, mf := range fams {
		assert.NotEmpty(t, mf.GetHelp(), mf.GetName())
		assert.Equal(t, "GAUGE", mf.GetType().String(), mf.GetName())
	}
}

func TestParseMetrics_Malformed(t *testing.T) {
	_, err := ParseMetrics(strings.NewReader("decaf_mttf{broken 1\n"))
	assert.Error(t, err)
}

func TestWriteSummary_JSON(t *testing.T) {
	res := sampleResult()
	res.MTTFByEnvironment[1] = math.Inf(1)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, res, FormatJSON))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, runID.String(), got["run_id"])
	assert.Equal(t, 5150.0, got["mttf"])
	assert.Equal(t, []any{5150.0, "+Inf"}, got["mttf_by_environment"])

	diag := got["diagnostics"].(map[string]any)
	assert.Equal(t, 18.0, diag["states"])
	solver := diag["solver"].(map[string]any)
	assert.Equal(t, 7.0, solver["mttf"].(map[string]any)["iterations"])
}

func TestWriteSummary_YAML(t *testing.T) {
	res := sampleResult()
	res.MTTF = math.Inf(1)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, res, FormatYAML))

	var got struct {
		RunID       string  `yaml:"run_id"`
		MTTF        float64 `yaml:"mttf"`
		SSU         float64 `yaml:"ssu"`
		Diagnostics struct {
			Phases []PhaseSummary `yaml:"phases"`
		} `yaml:"diagnostics"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, runID.String(), got.RunID)
	assert.True(t, math.IsInf(got.MTTF, 1))
	assert.Equal(t, 0.0125, got.SSU)
	require.Len(t, got.Diagnostics.Phases, 2)
	assert.Equal(t, PhaseSummary{Name: "generator", Duration: "15ms"}, got.Diagnostics.Phases[1])
}

func TestWriteSummary_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, sampleResult(), FormatText))

	out := buf.String()
	for _, want := range []string{"MTTF", "5150", "from env 1", "SSU", "0.0125", "18 (8 up)", "5 (1 avoided)", "phase generator"} {
		assert.Contains(t, out, want)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"text", FormatText, false},
		{"YAML", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"json", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
