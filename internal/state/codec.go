package state

// Invalid is returned by Encode for states outside the legal domain.
const Invalid = -1

// Codec is the bijection between State and state index for one model shape.
// It holds only the radix constants; encoding and decoding are O(types).
type Codec struct {
	redundancy []int
	stride     []int
	envCount   int
	length     int
}

// NewCodec derives the radix constants for the given redundancy vector and
// environment count. The state count must not exceed model.MaxStates.
func NewCodec(redundancy []uint8, envCount int) *Codec {
	c := &Codec{
		redundancy: make([]int, len(redundancy)),
		stride:     make([]int, len(redundancy)),
		envCount:   envCount,
	}
	s := envCount
	for t := len(redundancy) - 1; t >= 0; t-- {
		c.redundancy[t] = int(redundancy[t])
		c.stride[t] = s
		s *= int(redundancy[t]) + 1
	}
	c.length = s
	return c
}

// Length is the number of states: envCount × Π(redundancy[t]+1).
func (c *Codec) Length() int { return c.length }

// EnvCount returns the number of environments.
func (c *Codec) EnvCount() int { return c.envCount }

// NumTypes returns the number of component types.
func (c *Codec) NumTypes() int { return len(c.redundancy) }

// Redundancy returns the redundancy of type t.
func (c *Codec) Redundancy(t int) int { return c.redundancy[t] }

// Stride returns the index distance between states that differ by one
// failed unit of type t.
func (c *Codec) Stride(t int) int { return c.stride[t] }

// Encode returns the index of s, or Invalid when any count or the
// environment is out of range.
func (c *Codec) Encode(s State) int {
	if len(s.counts) != len(c.redundancy) || s.env < 0 || s.env >= c.envCount {
		return Invalid
	}
	idx := s.env
	for t, n := range s.counts {
		if n < 0 || n > c.redundancy[t] {
			return Invalid
		}
		idx += n * c.stride[t]
	}
	return idx
}

// Decode returns the State at index i. i must be in [0, Length).
func (c *Codec) Decode(i int) State {
	counts := make([]int, len(c.redundancy))
	c.DecodeInto(i, counts)
	return State{counts: counts, env: i % c.envCount}
}

// DecodeInto writes the counts of state i into counts and returns its
// environment. It lets hot loops decode without allocating.
func (c *Codec) DecodeInto(i int, counts []int) int {
	env := i % c.envCount
	r := i / c.envCount
	for t := len(c.redundancy) - 1; t >= 0; t-- {
		radix := c.redundancy[t] + 1
		counts[t] = r % radix
		r /= radix
	}
	return env
}

// Offset returns the index shift produced by adding delta to a state's
// counts. It does not check the domain.
func (c *Codec) Offset(delta []int) int {
	off := 0
	for t, d := range delta {
		off += d * c.stride[t]
	}
	return off
}

// Fits reports whether counts+delta stays within every redundancy.
func (c *Codec) Fits(counts, delta []int) bool {
	for t, d := range delta {
		if n := counts[t] + d; n < 0 || n > c.redundancy[t] {
			return false
		}
	}
	return true
}
