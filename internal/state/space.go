package state

import (
	"fmt"

	"github.com/decaf-reliability/decaf/internal/model"
)

// Space is the enumerated state space of a model.
type Space struct {
	Codec    *Codec
	Length   int
	Up       []bool // Up[i] reports whether state i is operational
	UpStates []int  // ascending indices of up states
}

// Build enumerates every state of m with an odometer over the failure
// counts crossed with every environment, and classifies each state.
func Build(m *model.Model) (*Space, error) {
	if m == nil {
		return nil, fmt.Errorf("state: no component model set: %w", model.ErrConfiguration)
	}
	if m.NumTypes() == 0 || m.EnvCount() == 0 {
		return nil, fmt.Errorf("state: empty component model: %w", model.ErrConfiguration)
	}

	if _, ok := m.StateCount(); !ok {
		return nil, fmt.Errorf("state: state space exceeds %d states: %w", model.MaxStates, model.ErrConfiguration)
	}

	codec := NewCodec(m.Redundancies(), m.EnvCount())
	sp := &Space{
		Codec:  codec,
		Length: codec.Length(),
		Up:     make([]bool, codec.Length()),
	}

	comps := m.Components()
	counts := make([]int, len(comps))
	idx := 0
	for {
		up := true
		for t, c := range comps {
			if int(c.Redundancy)-counts[t] < int(c.Required) {
				up = false
				break
			}
		}
		for e := 0; e < codec.EnvCount(); e++ {
			sp.Up[idx] = up
			if up {
				sp.UpStates = append(sp.UpStates, idx)
			}
			idx++
		}

		// Advance the odometer; the last type is the fastest count digit.
		t := len(counts) - 1
		for ; t >= 0; t-- {
			counts[t]++
			if counts[t] <= int(comps[t].Redundancy) {
				break
			}
			counts[t] = 0
		}
		if t < 0 {
			break
		}
	}

	if idx != sp.Length {
		return nil, fmt.Errorf("state: enumerated %d states, codec expects %d", idx, sp.Length)
	}
	return sp, nil
}

// Initial returns the index of the fully operational state in env.
func (sp *Space) Initial(env int) int {
	return sp.Codec.Encode(New(make([]int, sp.Codec.NumTypes()), env))
}

// IsUp reports whether state i is operational.
func (sp *Space) IsUp(i int) bool { return sp.Up[i] }

// DownCount returns the number of failed states.
func (sp *Space) DownCount() int { return sp.Length - len(sp.UpStates) }
