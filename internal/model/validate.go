package model

import (
	"fmt"
	"math"
)

// Validate checks spec in one pass and returns every violation found.
// A nil result means Build will succeed.
func Validate(spec Spec) []Violation {
	var vs []Violation
	add := func(component, field, format string, args ...any) {
		vs = append(vs, Violation{Component: component, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	envCount := len(spec.Environments)
	if envCount == 0 {
		add("", "environments", "env-change matrix not found or empty")
	}
	for i, row := range spec.Environments {
		if len(row) != envCount {
			add("", fmt.Sprintf("environments[%d]", i), "env-change matrix must be square: row has %d entries, want %d", len(row), envCount)
			continue
		}
		for j, rate := range row {
			switch {
			case i == j && rate != 0:
				add("", fmt.Sprintf("environments[%d][%d]", i, j), "env-change matrix diagonal must be zero, got %g", rate)
			case !validRate(rate):
				add("", fmt.Sprintf("environments[%d][%d]", i, j), "rate must be finite and non-negative, got %g", rate)
			}
		}
	}

	switch spec.RepairPolicy {
	case "", RepairShared, RepairPerType:
	default:
		add("", "repair_policy", "unknown repair policy %q", spec.RepairPolicy)
	}

	if len(spec.Components) == 0 {
		add("", "components", "components not found or empty")
		return vs
	}

	names := make(map[string]bool, len(spec.Components))
	for i, c := range spec.Components {
		if c.Name == "" {
			add("", fmt.Sprintf("components[%d]", i), "name is required")
			continue
		}
		if names[c.Name] {
			add(c.Name, "", "duplicate component name")
		}
		names[c.Name] = true
	}

	shape := envCount > 0
	redundancy := make([]int, 0, len(spec.Components))
	for _, c := range spec.Components {
		if c.Name == "" {
			continue
		}
		redundancy = append(redundancy, c.Redundancy)
		if c.Redundancy < 1 || c.Redundancy > math.MaxUint8 {
			add(c.Name, "redundancy", "must be in [1, %d], got %d", math.MaxUint8, c.Redundancy)
			shape = false
		}
		if c.Required < 0 || c.Required > c.Redundancy {
			add(c.Name, "required", "must be in [0, redundancy=%d], got %d", c.Redundancy, c.Required)
		}
		if len(c.Failure) != envCount {
			add(c.Name, "failure", "rates should be defined for each environment: got %d, want %d", len(c.Failure), envCount)
		}
		if len(c.Repair) != envCount {
			add(c.Name, "repair", "rates should be defined for each environment: got %d, want %d", len(c.Repair), envCount)
		}
		for e, r := range c.Failure {
			if !validRate(r) {
				add(c.Name, fmt.Sprintf("failure[%d]", e), "rate must be finite and non-negative, got %g", r)
			}
		}
		for e, r := range c.Repair {
			if !validRate(r) {
				add(c.Name, fmt.Sprintf("repair[%d]", e), "rate must be finite and non-negative, got %g", r)
			}
		}

		if len(c.Cascading) > MaxFanOut {
			add(c.Name, "cascading", "at most %d cascading targets per component, got %d", MaxFanOut, len(c.Cascading))
		}
		seen := make(map[string]bool, len(c.Cascading))
		for _, cs := range c.Cascading {
			field := "cascading." + cs.Target
			if !names[cs.Target] {
				add(c.Name, field, "is an invalid cascading component")
			}
			if seen[cs.Target] {
				add(c.Name, field, "duplicate cascading target")
			}
			seen[cs.Target] = true
			if math.IsNaN(cs.Probability) || cs.Probability < 0 || cs.Probability > 1 {
				add(c.Name, field, "probability must be in [0, 1], got %g", cs.Probability)
			}
		}
	}

	if shape {
		if _, ok := StateCount(envCount, redundancy); !ok {
			add("", "components", "state space exceeds %d states", MaxStates)
		}
	}
	return vs
}

func validRate(r float64) bool {
	return !math.IsNaN(r) && !math.IsInf(r, 0) && r >= 0
}
