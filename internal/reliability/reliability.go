package reliability

import (
	"context"
	"fmt"
	"math"

	"github.com/decaf-reliability/decaf/internal/linalg"
	"github.com/decaf-reliability/decaf/internal/state"
)

// MTTFResult is the outcome of an MTTF solve.
type MTTFResult struct {
	// MTTF is the expected time to the first down state starting from
	// zero failures in environment 0. +Inf when absorption is not certain.
	MTTF float64

	// ByEnvironment[e] is the MTTF starting from zero failures in env e.
	ByEnvironment []float64

	Transient int // up states reachable from the initial states
	Solved    int // transient states with finite MTTF
	Stats     linalg.SolveStats
}

// SSUResult is the outcome of a steady-state solve.
type SSUResult struct {
	SSU          float64
	Availability float64
	Distribution []float64 // stationary probability of every state
	Stats        linalg.SolveStats
}

// MTTF computes the mean time to failure of the chain q over sp.
//
// The transient set is every up state reachable from a zero-failure state
// without passing through a down state. States that can reach an up state
// with no path to a down state have infinite MTTF and are excluded; the rest
// solve (I − P)·x = h with P the embedded jump chain and h the mean holding
// times.
func MTTF(ctx context.Context, q *linalg.CSR, sp *state.Space, opts linalg.SolveOptions) (MTTFResult, error) {
	if q.Dim() != sp.Length {
		return MTTFResult{}, fmt.Errorf("reliability: mttf: generator is %d×%d for %d states: %w", q.Dim(), q.Dim(), sp.Length, linalg.ErrNotSquare)
	}
	envs := sp.Codec.EnvCount()
	initial := make([]int, envs)
	for e := range initial {
		initial[e] = sp.Initial(e)
	}

	transient := forward(q, sp, initial)
	finite := finiteStates(q, sp, transient)

	res := MTTFResult{ByEnvironment: make([]float64, envs)}
	keep := make([]int, 0, len(transient))
	for i, ok := range transient {
		if ok {
			res.Transient++
			if finite[i] {
				keep = append(keep, i)
			}
		}
	}
	res.Solved = len(keep)

	var x []float64
	if len(keep) > 0 {
		if err := ctx.Err(); err != nil {
			return MTTFResult{}, err
		}
		diag := q.Diag()
		a := q.Map(keep, func(i, j int, v float64) float64 {
			if i == j {
				return 1
			}
			return v / diag[i]
		})
		h := make([]float64, len(keep))
		for p, i := range keep {
			h[p] = -1 / diag[i]
		}
		var err error
		x, res.Stats, err = linalg.BiCGSTAB(a, h, opts)
		if err != nil {
			return MTTFResult{}, fmt.Errorf("reliability: mttf: %w", err)
		}
	}

	pos := make(map[int]int, len(keep))
	for p, i := range keep {
		pos[i] = p
	}
	for e, s := range initial {
		if p, ok := pos[s]; ok {
			res.ByEnvironment[e] = x[p]
		} else {
			res.ByEnvironment[e] = math.Inf(1)
		}
	}
	res.MTTF = res.ByEnvironment[0]
	return res, nil
}

// forward marks the up states reachable from roots through up states only.
func forward(q *linalg.CSR, sp *state.Space, roots []int) []bool {
	seen := make([]bool, sp.Length)
	queue := make([]int, 0, len(roots))
	for _, r := range roots {
		if sp.IsUp(r) && !seen[r] {
			seen[r] = true
			queue = append(queue, r)
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		cols, vals := q.Row(i)
		for k, j := range cols {
			if j == i || vals[k] <= 0 || seen[j] || !sp.IsUp(j) {
				continue
			}
			seen[j] = true
			queue = append(queue, j)
		}
	}
	return seen
}

// backward marks the states among allowed that can reach a seed state,
// walking the transpose qt.
func backward(qt *linalg.CSR, seeds, allowed []bool) []bool {
	seen := make([]bool, len(seeds))
	var queue []int
	for i, ok := range seeds {
		if ok {
			seen[i] = true
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]
		cols, vals := qt.Row(j)
		for k, i := range cols {
			if i == j || vals[k] <= 0 || seen[i] || !allowed[i] {
				continue
			}
			seen[i] = true
			queue = append(queue, i)
		}
	}
	return seen
}

// finiteStates marks the transient states whose MTTF is finite: those that
// cannot reach an up state from which every down state is unreachable.
func finiteStates(q *linalg.CSR, sp *state.Space, transient []bool) []bool {
	qt := q.Transpose()
	down := make([]bool, sp.Length)
	for i, up := range sp.Up {
		down[i] = !up
	}
	absorbing := backward(qt, down, sp.Up)

	trapped := make([]bool, sp.Length)
	found := false
	for i, ok := range transient {
		if ok && !absorbing[i] {
			trapped[i] = true
			found = true
		}
	}
	finite := make([]bool, sp.Length)
	if !found {
		copy(finite, transient)
		return finite
	}
	infinite := backward(qt, trapped, transient)
	for i, ok := range transient {
		finite[i] = ok && !infinite[i]
	}
	return finite
}

// SSU computes the steady-state unavailability of the chain q over sp: the
// stationary probability mass of the down states. The balance equations
// πQ = 0 are solved with the last equation replaced by Σπ = 1.
func SSU(ctx context.Context, q *linalg.CSR, sp *state.Space, opts linalg.SolveOptions) (SSUResult, error) {
	n := q.Dim()
	if n != sp.Length || n == 0 {
		return SSUResult{}, fmt.Errorf("reliability: ssu: generator is %d×%d for %d states: %w", n, n, sp.Length, linalg.ErrNotSquare)
	}
	if err := ctx.Err(); err != nil {
		return SSUResult{}, err
	}

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	a := q.Transpose().WithRow(n-1, ones)
	b := make([]float64, n)
	b[n-1] = 1

	pi, stats, err := linalg.BiCGSTAB(a, b, opts)
	if err != nil {
		return SSUResult{}, fmt.Errorf("reliability: ssu: %w", err)
	}

	var ssu float64
	for i, up := range sp.Up {
		if !up {
			ssu += pi[i]
		}
	}
	ssu = math.Min(1, math.Max(0, ssu))
	return SSUResult{
		SSU:          ssu,
		Availability: 1 - ssu,
		Distribution: pi,
		Stats:        stats,
	}, nil
}
