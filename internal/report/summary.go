package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/decaf-reliability/decaf/internal/engine"
)

// Format selects the summary encoding.
type Format string

const (
	FormatText Format = "text"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat resolves a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatYAML, FormatJSON:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("report: unknown format %q (want text, yaml or json)", s)
	}
}

// Number is a float that survives JSON even when infinite.
type Number float64

// MarshalJSON writes non-finite values as the strings "+Inf", "-Inf", "NaN".
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return json.Marshal(formatNumber(f))
	}
	return json.Marshal(f)
}

// MarshalYAML keeps the float; YAML has .inf and .nan.
func (n Number) MarshalYAML() (any, error) { return float64(n), nil }

// Summary is the serialisable view of a Result.
type Summary struct {
	RunID             string      `json:"run_id" yaml:"run_id"`
	StartedAt         time.Time   `json:"started_at" yaml:"started_at"`
	MTTF              Number      `json:"mttf" yaml:"mttf"`
	MTTFByEnvironment []Number    `json:"mttf_by_environment" yaml:"mttf_by_environment"`
	SSU               Number      `json:"ssu" yaml:"ssu"`
	Availability      Number      `json:"availability" yaml:"availability"`
	Diagnostics       DiagSummary `json:"diagnostics" yaml:"diagnostics"`
}

// DiagSummary mirrors engine.Diagnostics with stable field names.
type DiagSummary struct {
	States              int            `json:"states" yaml:"states"`
	UpStates            int            `json:"up_states" yaml:"up_states"`
	NonZeros            int            `json:"nonzeros" yaml:"nonzeros"`
	Patterns            int            `json:"patterns" yaml:"patterns"`
	Trees               uint64         `json:"trees" yaml:"trees"`
	AvoidedTrees        uint64         `json:"avoided_trees" yaml:"avoided_trees"`
	Transitions         uint64         `json:"transitions" yaml:"transitions"`
	IncrementalDiagonal bool           `json:"incremental_diagonal" yaml:"incremental_diagonal"`
	Solver              map[string]Run `json:"solver" yaml:"solver"`
	Phases              []PhaseSummary `json:"phases" yaml:"phases"`
}

// Run describes one linear solve.
type Run struct {
	Iterations int     `json:"iterations" yaml:"iterations"`
	Residual   float64 `json:"residual" yaml:"residual"`
}

// PhaseSummary is one timed phase.
type PhaseSummary struct {
	Name     string `json:"name" yaml:"name"`
	Duration string `json:"duration" yaml:"duration"`
}

// Summarize builds the serialisable view of res.
func Summarize(res *engine.Result) Summary {
	d := res.Diagnostics
	s := Summary{
		RunID:        res.RunID.String(),
		StartedAt:    res.StartedAt.UTC(),
		MTTF:         Number(res.MTTF),
		SSU:          Number(res.SSU),
		Availability: Number(res.Availability),
		Diagnostics: DiagSummary{
			States:              d.States,
			UpStates:            d.UpStates,
			NonZeros:            d.NonZeros,
			Patterns:            d.Patterns,
			Trees:               d.Trees,
			AvoidedTrees:        d.AvoidedTrees,
			Transitions:         d.Transitions,
			IncrementalDiagonal: d.Incremental,
			Solver: map[string]Run{
				"mttf": {Iterations: d.MTTFIterations, Residual: d.MTTFResidual},
				"ssu":  {Iterations: d.SSUIterations, Residual: d.SSUResidual},
			},
		},
	}
	for _, v := range res.MTTFByEnvironment {
		s.MTTFByEnvironment = append(s.MTTFByEnvironment, Number(v))
	}
	for _, p := range d.Phases {
		s.Diagnostics.Phases = append(s.Diagnostics.Phases, PhaseSummary{Name: p.Name, Duration: p.Duration.String()})
	}
	return s
}

// WriteSummary writes res to w in the requested format.
func WriteSummary(w io.Writer, res *engine.Result, format Format) error {
	s := Summarize(res)
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("report: encode json: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("report: encode yaml: %w", err)
		}
		return enc.Close()
	case FormatText, "":
		return writeText(w, s)
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
}

func writeText(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	d := s.Diagnostics
	fmt.Fprintf(tw, "run\t%s\n", s.RunID)
	fmt.Fprintf(tw, "MTTF\t%s\n", formatNumber(float64(s.MTTF)))
	for e, v := range s.MTTFByEnvironment {
		fmt.Fprintf(tw, "  from env %d\t%s\n", e, formatNumber(float64(v)))
	}
	fmt.Fprintf(tw, "SSU\t%s\n", formatNumber(float64(s.SSU)))
	fmt.Fprintf(tw, "availability\t%s\n", formatNumber(float64(s.Availability)))
	fmt.Fprintf(tw, "states\t%d (%d up)\n", d.States, d.UpStates)
	fmt.Fprintf(tw, "nonzeros\t%d\n", d.NonZeros)
	fmt.Fprintf(tw, "trees\t%d (%d avoided)\n", d.Trees, d.AvoidedTrees)
	fmt.Fprintf(tw, "transitions\t%d\n", d.Transitions)
	for _, name := range []string{"mttf", "ssu"} {
		r := d.Solver[name]
		fmt.Fprintf(tw, "%s solve\t%d iterations, residual %.3e\n", name, r.Iterations, r.Residual)
	}
	for _, p := range d.Phases {
		fmt.Fprintf(tw, "phase %s\t%s\n", p.Name, p.Duration)
	}
	return tw.Flush()
}

func formatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	return strconv.FormatFloat(f, 'g', 10, 64)
}
