package model

import (
	"errors"
	"fmt"
	"strings"
)

// MaxFanOut bounds the number of cascading links per component type.
// The power-set cache holds 2^k patterns per type.
const MaxFanOut = 20

// MaxStates bounds envCount × Π(redundancy+1). Every state costs a row of
// the generator and a slot in each solver vector.
const MaxStates = 1 << 28

// ErrConfiguration is wrapped by every error caused by bad input data.
var ErrConfiguration = errors.New("configuration error")

// RepairPolicy selects how repair capacity is distributed.
type RepairPolicy string

const (
	// RepairShared models a single repair resource split across all failed
	// units system-wide: type t is repaired at counts[t]*repair[t]/totalFailed.
	RepairShared RepairPolicy = "shared"

	// RepairPerType gives every component type its own repair crew: type t
	// is repaired at repair[t] whenever at least one unit is down.
	RepairPerType RepairPolicy = "per_type"
)

// Spec is the name-addressed system description handed over by a loader.
type Spec struct {
	Environments [][]float64
	Components   []ComponentSpec
	RepairPolicy RepairPolicy
}

// ComponentSpec describes one component type before target resolution.
type ComponentSpec struct {
	Name       string
	Redundancy int
	Required   int
	Failure    []float64
	Repair     []float64
	Cascading  []CascadeSpec
}

// CascadeSpec is a directed cascading edge addressed by target name.
type CascadeSpec struct {
	Target      string
	Probability float64
}

// Model is the validated system description. It is read-only once built.
type Model struct {
	environments [][]float64
	components   []Component
	index        map[string]int
	policy       RepairPolicy
}

// Component is one redundant component type.
type Component struct {
	Name       string
	Redundancy uint8
	Required   uint8
	Failure    []float64
	Repair     []float64
	Cascading  []Link
}

// Link is a cascading edge to the component type at index Target.
type Link struct {
	Target      int
	Probability float64
}

// Build validates spec and returns the resolved Model. On failure the error
// is a *ValidationError listing every violation.
func Build(spec Spec) (*Model, error) {
	if vs := Validate(spec); len(vs) > 0 {
		return nil, &ValidationError{Violations: vs}
	}

	m := &Model{
		environments: make([][]float64, len(spec.Environments)),
		components:   make([]Component, len(spec.Components)),
		index:        make(map[string]int, len(spec.Components)),
		policy:       spec.RepairPolicy,
	}
	if m.policy == "" {
		m.policy = RepairShared
	}
	for i, row := range spec.Environments {
		m.environments[i] = append([]float64(nil), row...)
	}
	for i, c := range spec.Components {
		m.index[c.Name] = i
	}
	for i, c := range spec.Components {
		comp := Component{
			Name:       c.Name,
			Redundancy: uint8(c.Redundancy),
			Required:   uint8(c.Required),
			Failure:    append([]float64(nil), c.Failure...),
			Repair:     append([]float64(nil), c.Repair...),
		}
		for _, cs := range c.Cascading {
			comp.Cascading = append(comp.Cascading, Link{
				Target:      m.index[cs.Target],
				Probability: cs.Probability,
			})
		}
		m.components[i] = comp
	}
	return m, nil
}

// EnvCount returns the number of operating environments.
func (m *Model) EnvCount() int { return len(m.environments) }

// NumTypes returns the number of component types.
func (m *Model) NumTypes() int { return len(m.components) }

// Component returns the component type at index t.
func (m *Model) Component(t int) *Component { return &m.components[t] }

// Components returns the component types in their stable ordering.
// Callers must not modify the returned slice.
func (m *Model) Components() []Component { return m.components }

// EnvRate returns the environment-change rate from environment i to j.
func (m *Model) EnvRate(i, j int) float64 { return m.environments[i][j] }

// Lookup returns the index of the component type called name.
func (m *Model) Lookup(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

// RepairPolicy returns the configured repair policy.
func (m *Model) RepairPolicy() RepairPolicy { return m.policy }

// Redundancies returns the per-type redundancy vector.
func (m *Model) Redundancies() []uint8 {
	out := make([]uint8, len(m.components))
	for i, c := range m.components {
		out[i] = c.Redundancy
	}
	return out
}

// StateCount returns the size of the model's state space.
func (m *Model) StateCount() (int, bool) {
	red := make([]int, len(m.components))
	for i, c := range m.components {
		red[i] = int(c.Redundancy)
	}
	return StateCount(len(m.environments), red)
}

// StateCount returns envCount × Π(redundancy[t]+1). It reports false,
// without overflowing, once the product would exceed MaxStates.
func StateCount(envCount int, redundancy []int) (int, bool) {
	if envCount < 0 || envCount > MaxStates {
		return 0, false
	}
	n := envCount
	for _, r := range redundancy {
		if r < 0 || n > MaxStates/(r+1) {
			return 0, false
		}
		n *= r + 1
	}
	return n, true
}

// LinkCount returns the total number of cascading edges.
func (m *Model) LinkCount() int {
	n := 0
	for _, c := range m.components {
		n += len(c.Cascading)
	}
	return n
}

// LinkDensity is the fraction of possible type→type cascading edges present.
func (m *Model) LinkDensity() float64 {
	n := len(m.components)
	if n == 0 {
		return 0
	}
	return float64(m.LinkCount()) / float64(n*n)
}

// Violation identifies one problem found while validating a Spec.
type Violation struct {
	Component string // empty for model-wide problems
	Field     string
	Message   string
}

func (v Violation) String() string {
	switch {
	case v.Component != "" && v.Field != "":
		return fmt.Sprintf("components.%s.%s: %s", v.Component, v.Field, v.Message)
	case v.Component != "":
		return fmt.Sprintf("components.%s: %s", v.Component, v.Message)
	case v.Field != "":
		return fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return v.Message
}

// ValidationError carries every violation found in a single validation pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%d violation(s): %s", len(parts), strings.Join(parts, "; "))
}

// Unwrap lets errors.Is(err, ErrConfiguration) match.
func (e *ValidationError) Unwrap() error { return ErrConfiguration }
