package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/decaf-reliability/decaf/internal/cascade"
	"github.com/decaf-reliability/decaf/internal/linalg"
	"github.com/decaf-reliability/decaf/internal/model"
	"github.com/decaf-reliability/decaf/internal/state"
)

// DiagonalMode selects how diagonal entries are produced.
type DiagonalMode string

const (
	DiagonalAuto        DiagonalMode = "auto"
	DiagonalIncremental DiagonalMode = "incremental"
	DiagonalFinal       DiagonalMode = "final"
)

// DensityThreshold is the cascading link density at and above which
// DiagonalAuto accumulates the diagonal incrementally.
const DensityThreshold = 0.5

// rowSumTolerance bounds |Σ_j Q[i][j]| relative to the row's outflow.
const rowSumTolerance = 1e-9

// ErrInconsistent reports a generator that violates its structural
// invariants. It indicates a bug, not bad input.
var ErrInconsistent = errors.New("generator: internal consistency violated")

// Options controls Build.
type Options struct {
	Diagonal DiagonalMode
	Workers  int // 0 → GOMAXPROCS
}

// Stats describes a finished build.
type Stats struct {
	Patterns     int    // cached power-set patterns across all types
	Trees        uint64 // failure trees emitted
	AvoidedTrees uint64 // branches pruned by the enumerator
	Absorbed     uint64 // induced failures on types with no unit left
	Transitions  uint64 // failure edges written
	Incremental  bool   // diagonal accumulated during construction
	NonZeros     int

	CacheTime   time.Duration
	EnvRepair   time.Duration
	TreeGen     time.Duration
	Compression time.Duration
}

// Generator is a built Q-matrix. It is read-only.
type Generator struct {
	Q     *linalg.CSR
	Stats Stats
}

// sink writes rate contributions, optionally mirroring each one onto the
// diagonal of its source row.
type sink struct {
	acc         *linalg.Triplets
	incremental bool
}

func (s sink) add(i, j int, rate float64) {
	if rate == 0 {
		return
	}
	s.acc.Add(i, j, rate)
	if s.incremental {
		s.acc.Add(i, i, -rate)
	}
}

// Build assembles the generator of m over sp.
func Build(ctx context.Context, m *model.Model, sp *state.Space, opts Options) (*Generator, error) {
	if m == nil || sp == nil {
		return nil, fmt.Errorf("generator: model and state space are required: %w", ErrInconsistent)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var st Stats
	st.Incremental = useIncremental(opts.Diagonal, m)

	start := time.Now()
	cache, err := cascade.NewCache(ctx, m, workers)
	if err != nil {
		return nil, fmt.Errorf("generator: build cascade cache: %w", err)
	}
	st.Patterns = cache.Size()
	st.CacheTime = time.Since(start)

	start = time.Now()
	envAcc := linalg.NewTriplets(sp.Length)
	repAcc := linalg.NewTriplets(sp.Length)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fillEnvironment(m, sp, sink{acc: envAcc, incremental: st.Incremental})
		return gctx.Err()
	})
	g.Go(func() error {
		fillRepair(m, sp, sink{acc: repAcc, incremental: st.Incremental})
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("generator: env/repair pass: %w", err)
	}
	st.EnvRepair = time.Since(start)

	start = time.Now()
	failAccs, err := fillFailures(ctx, m, sp, cache, workers, st.Incremental, &st)
	if err != nil {
		return nil, fmt.Errorf("generator: failure pass: %w", err)
	}
	st.TreeGen = time.Since(start)

	start = time.Now()
	all := linalg.NewTriplets(sp.Length)
	all.Append(envAcc)
	all.Append(repAcc)
	for _, acc := range failAccs {
		all.Append(acc)
	}
	q := all.Compress()
	if !st.Incremental {
		q = CloseDiagonal(q)
	}
	st.NonZeros = q.NNZ()
	st.Compression = time.Since(start)

	if err := Check(q, sp.Length); err != nil {
		return nil, err
	}

	slog.Debug("generator: built",
		"states", sp.Length,
		"nonzeros", st.NonZeros,
		"trees", st.Trees,
		"avoided_trees", st.AvoidedTrees,
		"absorbed", st.Absorbed,
		"incremental_diagonal", st.Incremental,
	)
	return &Generator{Q: q, Stats: st}, nil
}

// useIncremental resolves mode against the density heuristic.
func useIncremental(mode DiagonalMode, m *model.Model) bool {
	switch mode {
	case DiagonalIncremental:
		return true
	case DiagonalFinal:
		return false
	default:
		return m.LinkDensity() >= DensityThreshold
	}
}

// fillEnvironment block-copies the environment-change matrix onto every
// block of envCount states sharing a failure-count vector.
func fillEnvironment(m *model.Model, sp *state.Space, s sink) {
	e := m.EnvCount()
	for base := 0; base < sp.Length; base += e {
		for i := 0; i < e; i++ {
			for j := 0; j < e; j++ {
				if i != j {
					s.add(base+i, base+j, m.EnvRate(i, j))
				}
			}
		}
	}
}

// fillRepair adds one repair edge per failed type of every state.
func fillRepair(m *model.Model, sp *state.Space, s sink) {
	codec := sp.Codec
	counts := make([]int, m.NumTypes())
	for i := 0; i < sp.Length; i++ {
		env := codec.DecodeInto(i, counts)
		total := 0
		for _, c := range counts {
			total += c
		}
		if total == 0 {
			continue
		}
		for t, c := range counts {
			if c == 0 {
				continue
			}
			s.add(i, i-codec.Stride(t), RepairRateOf(m.Component(t), m.RepairPolicy(), c, total, env))
		}
	}
}

// RepairRateOf is the rate at which one failed unit of a type with failed
// units is repaired in env, given totalFailed failed units system-wide.
func RepairRateOf(c *model.Component, policy model.RepairPolicy, failed, totalFailed, env int) float64 {
	if failed == 0 || totalFailed == 0 {
		return 0
	}
	if policy == model.RepairPerType {
		return c.Repair[env]
	}
	return float64(failed) * c.Repair[env] / float64(totalFailed)
}

// fillFailures enumerates failure trees per root type on a bounded worker
// pool and returns one accumulator per root, in root order.
func fillFailures(ctx context.Context, m *model.Model, sp *state.Space, cache *cascade.Cache, workers int, incremental bool, st *Stats) ([]*linalg.Triplets, error) {
	blocks := blockCounts(sp)
	n := m.NumTypes()
	accs := make([]*linalg.Triplets, n)
	stats := make([]cascade.Stats, n)
	transitions := make([]uint64, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for root := 0; root < n; root++ {
		g.Go(func() error {
			acc := linalg.NewTriplets(sp.Length)
			p := &rateProcessor{
				model: m,
				space: sp,
				out:   sink{acc: acc, incremental: incremental},
			}
			en := cascade.NewEnumerator(cache, m.Redundancies())
			if err := p.run(gctx, en, root, blocks); err != nil {
				return err
			}
			accs[root] = acc
			stats[root] = en.Stats()
			transitions[root] = p.transitions
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for root := 0; root < n; root++ {
		st.Trees += stats[root].Trees
		st.AvoidedTrees += stats[root].AvoidedTrees
		st.Absorbed += stats[root].Absorbed
		st.Transitions += transitions[root]
	}
	return accs, nil
}

// blockCounts decodes the failure-count vector of every env block once.
func blockCounts(sp *state.Space) [][]int {
	e := sp.Codec.EnvCount()
	out := make([][]int, sp.Length/e)
	for b := range out {
		counts := make([]int, sp.Codec.NumTypes())
		sp.Codec.DecodeInto(b*e, counts)
		out[b] = counts
	}
	return out
}

// rateProcessor turns the failure trees of one root into generator edges.
// Trees depend on which units are already down, so they are enumerated once
// per env block and reused for every environment of that block.
type rateProcessor struct {
	model       *model.Model
	space       *state.Space
	out         sink
	transitions uint64

	counts    []int   // failure counts of the current block
	from      int     // first state index of the current block
	available float64 // units of the root still up in the current block
}

// run enumerates the trees of root from every block where root has a unit
// left to fail.
func (p *rateProcessor) run(ctx context.Context, en *cascade.Enumerator, root int, blocks [][]int) error {
	e := p.space.Codec.EnvCount()
	red := int(p.model.Component(root).Redundancy)
	for b, counts := range blocks {
		if counts[root] >= red {
			continue
		}
		p.counts = counts
		p.from = b * e
		p.available = float64(red - counts[root])
		if err := en.EnumerateFrom(ctx, root, counts, p.ProcessRates); err != nil {
			return err
		}
	}
	return nil
}

// ProcessRates adds the contribution of tr to every environment of the
// current block.
func (p *rateProcessor) ProcessRates(tr cascade.Tree) error {
	codec := p.space.Codec
	if !codec.Fits(p.counts, tr.Delta) {
		return fmt.Errorf("%w: tree %v overflows state %v", ErrInconsistent, tr.Delta, p.counts)
	}
	root := p.model.Component(tr.Root)
	to := p.from + codec.Offset(tr.Delta)
	weight := tr.Weight()
	for env := 0; env < codec.EnvCount(); env++ {
		rate := p.available * root.Failure[env] * weight
		if rate == 0 {
			continue
		}
		p.out.add(p.from+env, to+env, rate)
		p.transitions++
	}
	return nil
}

// CloseDiagonal returns q with every diagonal entry set to the negated sum
// of the row's off-diagonal entries.
func CloseDiagonal(q *linalg.CSR) *linalg.CSR {
	n := q.Dim()
	tr := linalg.NewTriplets(n)
	for i := 0; i < n; i++ {
		cols, vals := q.Row(i)
		for k, j := range cols {
			if j != i {
				tr.Add(i, j, vals[k])
			}
		}
		tr.Add(i, i, -q.OffDiagRowSum(i))
	}
	return tr.Compress()
}

// Check verifies that q is an n×n generator: non-negative off-diagonal
// entries and rows summing to zero.
func Check(q *linalg.CSR, n int) error {
	if q.Dim() != n {
		return fmt.Errorf("%w: generator is %d×%d, state space has %d states", ErrInconsistent, q.Dim(), q.Dim(), n)
	}
	for i := 0; i < n; i++ {
		cols, vals := q.Row(i)
		for k, j := range cols {
			if j != i && vals[k] < 0 {
				return fmt.Errorf("%w: negative rate %g at (%d, %d)", ErrInconsistent, vals[k], i, j)
			}
		}
		out := q.OffDiagRowSum(i)
		if sum := q.RowSum(i); math.Abs(sum) > rowSumTolerance*math.Max(1, out) {
			return fmt.Errorf("%w: row %d sums to %g", ErrInconsistent, i, sum)
		}
	}
	return nil
}
