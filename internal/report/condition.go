package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/decaf-reliability/decaf/internal/engine"
)

// ErrRequirement reports a solved run that misses one of its requirements.
var ErrRequirement = errors.New("report: requirement not met")

// Condition is a requirement on a solved run, written "field operator value":
//
//	availability >= 0.999
//	ssu < 1e-3
//	mttf > 8760
//	states <= 100000
//
// Fields: mttf, ssu, availability, states, up_states, nonzeros, trees,
// avoided_trees, transitions. Operators: > >= < <= == !=.
type Condition struct {
	Field     string
	Op        string
	Threshold float64
}

func (c Condition) String() string {
	return c.Field + " " + c.Op + " " + strconv.FormatFloat(c.Threshold, 'g', -1, 64)
}

// ParseCondition parses a requirement expression.
func ParseCondition(s string) (Condition, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return Condition{}, fmt.Errorf("requirement %q: want \"field operator value\"", s)
	}
	c := Condition{Field: strings.ToLower(parts[0]), Op: parts[1]}
	if _, ok := numericField(c.Field, &engine.Result{}); !ok {
		return Condition{}, fmt.Errorf("requirement %q: unknown field %q", s, parts[0])
	}
	switch c.Op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return Condition{}, fmt.Errorf("requirement %q: unknown operator %q", s, c.Op)
	}
	v, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Condition{}, fmt.Errorf("requirement %q: %w", s, err)
	}
	c.Threshold = v
	return c, nil
}

// ParseConditions parses every expression, stopping at the first error.
func ParseConditions(exprs []string) ([]Condition, error) {
	out := make([]Condition, 0, len(exprs))
	for _, s := range exprs {
		c, err := ParseCondition(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Holds evaluates c against res and returns the observed value.
func (c Condition) Holds(res *engine.Result) (bool, float64) {
	v, _ := numericField(c.Field, res)
	return compareFloat(v, c.Op, c.Threshold), v
}

// Breach is a condition that did not hold, with the value observed.
type Breach struct {
	Condition Condition
	Value     float64
}

func (b Breach) String() string {
	return fmt.Sprintf("%s (got %s)", b.Condition, formatNumber(b.Value))
}

// Check evaluates every condition against res. It returns nil when all hold
// and otherwise an error wrapping ErrRequirement that lists every breach.
func Check(res *engine.Result, conds []Condition) error {
	var breaches []string
	for _, c := range conds {
		if ok, v := c.Holds(res); !ok {
			breaches = append(breaches, Breach{Condition: c, Value: v}.String())
		}
	}
	if len(breaches) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRequirement, strings.Join(breaches, "; "))
}

// numericField maps a field name to its value in res.
func numericField(field string, res *engine.Result) (float64, bool) {
	d := res.Diagnostics
	switch field {
	case "mttf":
		return res.MTTF, true
	case "ssu":
		return res.SSU, true
	case "availability":
		return res.Availability, true
	case "states":
		return float64(d.States), true
	case "up_states":
		return float64(d.UpStates), true
	case "nonzeros":
		return float64(d.NonZeros), true
	case "trees":
		return float64(d.Trees), true
	case "avoided_trees":
		return float64(d.AvoidedTrees), true
	case "transitions":
		return float64(d.Transitions), true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
