package state

import (
	"fmt"
	"strings"
)

// State is an immutable (failure counts, environment) pair.
// Operations on a State return new values.
type State struct {
	counts []int
	env    int
}

// New returns a State holding a copy of counts.
func New(counts []int, env int) State {
	return State{counts: append([]int(nil), counts...), env: env}
}

// Env returns the environment id.
func (s State) Env() int { return s.env }

// Count returns the number of failed units of type t.
func (s State) Count(t int) int { return s.counts[t] }

// Len returns the number of component types.
func (s State) Len() int { return len(s.counts) }

// Counts returns a copy of the failure-count vector.
func (s State) Counts() []int { return append([]int(nil), s.counts...) }

// TotalFailed returns the number of failed units across all types.
func (s State) TotalFailed() int {
	n := 0
	for _, c := range s.counts {
		n += c
	}
	return n
}

// WithEnv returns s moved to environment env.
func (s State) WithEnv(env int) State {
	return State{counts: s.counts, env: env}
}

// Equal reports whether s and o have identical counts and environment.
func (s State) Equal(o State) bool {
	if s.env != o.env || len(s.counts) != len(o.counts) {
		return false
	}
	for i := range s.counts {
		if s.counts[i] != o.counts[i] {
			return false
		}
	}
	return true
}

func (s State) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, c := range s.counts {
		fmt.Fprintf(&b, "%d, ", c)
	}
	fmt.Fprintf(&b, "env=%d)", s.env)
	return b.String()
}

// Combine returns s with delta added to its failure counts. The environment
// is unchanged. The result may be out of range; Codec.Encode reports that.
func Combine(s State, delta []int) State {
	out := make([]int, len(s.counts))
	for i, c := range s.counts {
		out[i] = c + delta[i]
	}
	return State{counts: out, env: s.env}
}

// Difference returns the per-type count difference a - b.
func Difference(a, b State) []int {
	out := make([]int, len(a.counts))
	for i := range a.counts {
		out[i] = a.counts[i] - b.counts[i]
	}
	return out
}
