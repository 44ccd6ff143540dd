package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/decaf-reliability/decaf/internal/engine"
)

// Metric names written by WriteMetrics.
const (
	MetricMTTF            = "decaf_mttf"
	MetricMTTFByEnv       = "decaf_mttf_by_environment"
	MetricSSU             = "decaf_ssu"
	MetricAvailability    = "decaf_availability"
	MetricStates          = "decaf_states"
	MetricUpStates        = "decaf_up_states"
	MetricNonZeros        = "decaf_generator_nonzeros"
	MetricTrees           = "decaf_failure_trees"
	MetricAvoidedTrees    = "decaf_failure_trees_avoided"
	MetricTransitions     = "decaf_failure_transitions"
	MetricSolverIter      = "decaf_solver_iterations"
	MetricSolverResidual  = "decaf_solver_residual"
	MetricPhaseSeconds    = "decaf_phase_duration_seconds"
	MetricRunInfo         = "decaf_run_info"
	MetricRunStartSeconds = "decaf_run_start_timestamp_seconds"
)

// Families converts res into metric families sorted by name.
func Families(res *engine.Result) []*dto.MetricFamily {
	d := res.Diagnostics
	fams := []*dto.MetricFamily{
		gauge(MetricMTTF, "Mean time to failure from zero failures in environment 0.", res.MTTF),
		gauge(MetricSSU, "Steady-state unavailability.", res.SSU),
		gauge(MetricAvailability, "Steady-state availability.", res.Availability),
		gauge(MetricStates, "Number of CTMC states.", float64(d.States)),
		gauge(MetricUpStates, "Number of operational states.", float64(d.UpStates)),
		gauge(MetricNonZeros, "Non-zero entries of the generator matrix.", float64(d.NonZeros)),
		gauge(MetricTrees, "Failure trees enumerated.", float64(d.Trees)),
		gauge(MetricAvoidedTrees, "Failure tree branches pruned.", float64(d.AvoidedTrees)),
		gauge(MetricTransitions, "Failure transitions written to the generator.", float64(d.Transitions)),
		gauge(MetricRunStartSeconds, "Unix time the run was set up.", float64(res.StartedAt.UnixNano())/1e9),
	}

	byEnv := family(MetricMTTFByEnv, "Mean time to failure by starting environment.")
	for e, v := range res.MTTFByEnvironment {
		byEnv.Metric = append(byEnv.Metric, gaugeMetric(v, "environment", strconv.Itoa(e)))
	}
	fams = append(fams, byEnv)

	iter := family(MetricSolverIter, "BiCGSTAB iterations per solve.")
	iter.Metric = append(iter.Metric,
		gaugeMetric(float64(d.MTTFIterations), "solve", "mttf"),
		gaugeMetric(float64(d.SSUIterations), "solve", "ssu"),
	)
	resid := family(MetricSolverResidual, "Final relative residual per solve.")
	resid.Metric = append(resid.Metric,
		gaugeMetric(d.MTTFResidual, "solve", "mttf"),
		gaugeMetric(d.SSUResidual, "solve", "ssu"),
	)
	fams = append(fams, iter, resid)

	phases := family(MetricPhaseSeconds, "Wall-clock duration of each run phase.")
	for _, p := range d.Phases {
		phases.Metric = append(phases.Metric, gaugeMetric(p.Duration.Seconds(), "phase", p.Name))
	}
	fams = append(fams, phases)

	info := family(MetricRunInfo, "Identifies the run that produced these metrics.")
	info.Metric = append(info.Metric, gaugeMetric(1, "run_id", res.RunID.String()))
	fams = append(fams, info)

	sort.Slice(fams, func(i, j int) bool { return fams[i].GetName() < fams[j].GetName() })
	return fams
}

// WriteMetrics writes res in the Prometheus text exposition format.
func WriteMetrics(w io.Writer, res *engine.Result) error {
	for _, mf := range Families(res) {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("report: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// ParseMetrics decodes a Prometheus text exposition from r into metric families.
func ParseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("report: parse prometheus text: %w", err)
	}
	return mfs, nil
}

// Value returns the sum of every sample in the named family, or NaN when
// the family is absent.
func Value(mfs map[string]*dto.MetricFamily, name string) float64 {
	mf, ok := mfs[name]
	if !ok {
		return math.NaN()
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

// LabelValue returns the value of the sample in the named family whose
// label key equals val.
func LabelValue(mfs map[string]*dto.MetricFamily, name, key, val string) (float64, bool) {
	mf, ok := mfs[name]
	if !ok {
		return 0, false
	}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == key && lp.GetValue() == val {
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func family(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	mf := family(name, help)
	mf.Metric = []*dto.Metric{gaugeMetric(v)}
	return mf
}

// gaugeMetric builds one gauge sample; labels are key/value pairs.
func gaugeMetric(v float64, labels ...string) *dto.Metric {
	m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	return m
}
