package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/decaf-reliability/decaf/internal/generator"
	"github.com/decaf-reliability/decaf/internal/linalg"
	"github.com/decaf-reliability/decaf/internal/model"
	"github.com/decaf-reliability/decaf/internal/reliability"
	"github.com/decaf-reliability/decaf/internal/state"
)

var (
	// ErrSequence reports a stage invoked before its predecessor completed.
	ErrSequence = errors.New("engine: stage invoked out of order")

	// ErrInternal reports a broken structural invariant in derived data.
	ErrInternal = errors.New("engine: internal consistency error")
)

// Stage is the last completed step of an Engine.
type Stage int

const (
	StageNew Stage = iota
	StageSetup
	StageStates
	StageGenerator
	StageSolved
)

func (s Stage) String() string {
	switch s {
	case StageNew:
		return "new"
	case StageSetup:
		return "setup"
	case StageStates:
		return "states"
	case StageGenerator:
		return "generator"
	case StageSolved:
		return "solved"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Options tunes generator construction and the linear solves.
type Options struct {
	Generator generator.Options
	Solver    linalg.SolveOptions
}

// Phase is the wall-clock duration of one named step.
type Phase struct {
	Name     string
	Duration time.Duration
}

// Diagnostics summarises the work done by a run.
type Diagnostics struct {
	States       int
	UpStates     int
	NonZeros     int
	Patterns     int
	Trees        uint64
	AvoidedTrees uint64
	Transitions  uint64
	Incremental  bool

	MTTFTransient  int
	MTTFIterations int
	MTTFResidual   float64
	SSUIterations  int
	SSUResidual    float64
	SSURestarts    int

	Phases []Phase
}

// Result is the outcome of a solved run.
type Result struct {
	RunID     uuid.UUID
	StartedAt time.Time

	MTTF              float64
	MTTFByEnvironment []float64
	SSU               float64
	Availability      float64
	Distribution      []float64

	Diagnostics Diagnostics
}

// Engine runs the stages of one analysis. All exported methods are safe for
// concurrent use; stages themselves execute one at a time.
type Engine struct {
	mu    sync.Mutex
	opts  Options
	now   func() time.Time
	stage Stage

	runID   uuid.UUID
	started time.Time
	model   *model.Model
	space   *state.Space
	gen     *generator.Generator
	diag    Diagnostics
	result  *Result
}

// New returns an unconfigured Engine.
func New(opts Options) *Engine {
	return &Engine{opts: opts, now: time.Now}
}

// Stage returns the last completed stage.
func (e *Engine) Stage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stage
}

// RunID returns the identifier of the current run, or uuid.Nil before Setup.
func (e *Engine) RunID() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// Space returns the enumerated state space, or nil before GenerateStates.
func (e *Engine) Space() *state.Space {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.space
}

// Generator returns the built generator, or nil before BuildGenerator.
func (e *Engine) Generator() *generator.Generator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

// Configure validates spec and, when it is accepted, calls Setup with the
// resulting model. A rejected spec resets the Engine to StageNew.
func (e *Engine) Configure(spec model.Spec) error {
	m, err := model.Build(spec)
	if err != nil {
		e.mu.Lock()
		e.reset()
		e.mu.Unlock()
		return err
	}
	return e.Setup(m)
}

// Setup starts a new run for m, discarding any previous run.
func (e *Engine) Setup(m *model.Model) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reset()
	if m == nil || m.NumTypes() == 0 || m.EnvCount() == 0 {
		return fmt.Errorf("engine: setup: no component model: %w", model.ErrConfiguration)
	}
	e.model = m
	e.runID = uuid.New()
	e.started = e.now()
	e.stage = StageSetup

	slog.Debug("engine: setup",
		"run_id", e.runID,
		"types", m.NumTypes(),
		"environments", m.EnvCount(),
		"links", m.LinkCount(),
	)
	return nil
}

func (e *Engine) reset() {
	e.stage = StageNew
	e.runID = uuid.Nil
	e.model = nil
	e.space = nil
	e.gen = nil
	e.diag = Diagnostics{}
	e.result = nil
}

// require checks that the previous stage is complete.
func (e *Engine) require(prev Stage, op string) error {
	if e.stage != prev {
		return fmt.Errorf("%w: %s requires stage %s, engine is at %s", ErrSequence, op, prev, e.stage)
	}
	return nil
}

// GenerateStates enumerates the state space of the configured model.
func (e *Engine) GenerateStates() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.require(StageSetup, "generate states"); err != nil {
		return err
	}

	start := e.now()
	sp, err := state.Build(e.model)
	if err != nil {
		return fmt.Errorf("engine: generate states: %w", err)
	}
	e.phase("states", start)

	e.space = sp
	e.diag.States = sp.Length
	e.diag.UpStates = len(sp.UpStates)
	e.stage = StageStates

	slog.Debug("engine: states generated",
		"run_id", e.runID,
		"states", sp.Length,
		"up_states", len(sp.UpStates),
	)
	return nil
}

// BuildGenerator assembles the Q-matrix over the generated state space.
func (e *Engine) BuildGenerator(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.require(StageStates, "build generator"); err != nil {
		return err
	}

	start := e.now()
	g, err := generator.Build(ctx, e.model, e.space, e.opts.Generator)
	if err != nil {
		if errors.Is(err, generator.ErrInconsistent) {
			return fmt.Errorf("%w: %w", ErrInternal, err)
		}
		return fmt.Errorf("engine: build generator: %w", err)
	}
	e.phase("generator", start)

	st := g.Stats
	e.gen = g
	e.diag.NonZeros = st.NonZeros
	e.diag.Patterns = st.Patterns
	e.diag.Trees = st.Trees
	e.diag.AvoidedTrees = st.AvoidedTrees
	e.diag.Transitions = st.Transitions
	e.diag.Incremental = st.Incremental
	e.stage = StageGenerator

	slog.Debug("engine: generator built",
		"run_id", e.runID,
		"nonzeros", st.NonZeros,
		"trees", st.Trees,
		"avoided_trees", st.AvoidedTrees,
		"transitions", st.Transitions,
		"cache", st.CacheTime,
		"env_repair", st.EnvRepair,
		"tree_gen", st.TreeGen,
		"compression", st.Compression,
	)
	return nil
}

// Solve computes MTTF and SSU from the built generator. The two solves are
// independent and run concurrently.
func (e *Engine) Solve(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.require(StageGenerator, "solve"); err != nil {
		return nil, err
	}
	if e.gen.Q.Dim() != e.space.Length {
		return nil, fmt.Errorf("%w: generator is %d×%d for %d states", ErrInternal, e.gen.Q.Dim(), e.gen.Q.Dim(), e.space.Length)
	}

	var (
		mttf reliability.MTTFResult
		ssu  reliability.SSUResult
	)
	start := e.now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		mttf, err = reliability.MTTF(gctx, e.gen.Q, e.space, e.opts.Solver)
		return err
	})
	g.Go(func() error {
		var err error
		ssu, err = reliability.SSU(gctx, e.gen.Q, e.space, e.opts.Solver)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Warn("engine: solve failed", "run_id", e.runID, "err", err)
		return nil, fmt.Errorf("engine: solve: %w", err)
	}
	e.phase("solve", start)

	e.diag.MTTFTransient = mttf.Transient
	e.diag.MTTFIterations = mttf.Stats.Iterations
	e.diag.MTTFResidual = mttf.Stats.Residual
	e.diag.SSUIterations = ssu.Stats.Iterations
	e.diag.SSUResidual = ssu.Stats.Residual
	e.diag.SSURestarts = ssu.Stats.Restarts

	diag := e.diag
	diag.Phases = append([]Phase(nil), e.diag.Phases...)
	e.result = &Result{
		RunID:             e.runID,
		StartedAt:         e.started,
		MTTF:              mttf.MTTF,
		MTTFByEnvironment: mttf.ByEnvironment,
		SSU:               ssu.SSU,
		Availability:      ssu.Availability,
		Distribution:      ssu.Distribution,
		Diagnostics:       diag,
	}
	e.stage = StageSolved

	slog.Info("engine: solved",
		"run_id", e.runID,
		"states", diag.States,
		"mttf", mttf.MTTF,
		"ssu", ssu.SSU,
		"mttf_iterations", mttf.Stats.Iterations,
		"ssu_iterations", ssu.Stats.Iterations,
	)
	return e.result, nil
}

// Run executes every remaining stage after Setup.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.GenerateStates(); err != nil {
		return nil, err
	}
	if err := e.BuildGenerator(ctx); err != nil {
		return nil, err
	}
	return e.Solve(ctx)
}

func (e *Engine) phase(name string, start time.Time) {
	e.diag.Phases = append(e.diag.Phases, Phase{Name: name, Duration: e.now().Sub(start)})
}
