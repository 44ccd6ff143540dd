package decaf

import (
	"context"

	"github.com/decaf-reliability/decaf/internal/config"
	"github.com/decaf-reliability/decaf/internal/engine"
	"github.com/decaf-reliability/decaf/internal/generator"
	"github.com/decaf-reliability/decaf/internal/linalg"
	"github.com/decaf-reliability/decaf/internal/model"
)

type (
	// Config is a parsed model file.
	Config = config.Config

	// Spec is a name-addressed system description.
	Spec = model.Spec

	// ComponentSpec describes one component type of a Spec.
	ComponentSpec = model.ComponentSpec

	// CascadeSpec is one cascading edge of a ComponentSpec.
	CascadeSpec = model.CascadeSpec

	// Model is a validated system description.
	Model = model.Model

	// Options tunes generator construction and the linear solves.
	Options = engine.Options

	// GeneratorOptions tunes generator construction.
	GeneratorOptions = generator.Options

	// SolveOptions tunes BiCGSTAB.
	SolveOptions = linalg.SolveOptions

	// Result is the outcome of a solved run.
	Result = engine.Result

	// Diagnostics summarises the work done by a run.
	Diagnostics = engine.Diagnostics

	// ValidationError lists every violation found in a model.
	ValidationError = model.ValidationError

	// ConvergenceError reports a solve that stopped short of its tolerance.
	ConvergenceError = linalg.ConvergenceError
)

// Repair policies.
const (
	RepairShared  = model.RepairShared
	RepairPerType = model.RepairPerType
)

// Error sentinels.
var (
	ErrConfiguration = model.ErrConfiguration
	ErrSequence      = engine.ErrSequence
	ErrInternal      = engine.ErrInternal
)

// Load reads, defaults and validates the model file at path.
func Load(path string) (*Config, error) {
	return config.Load(path)
}

// Parse decodes, defaults and validates a YAML or JSON model document.
func Parse(data []byte) (*Config, error) {
	return config.Parse(data)
}

// Build validates spec and returns its Model.
func Build(spec Spec) (*Model, error) {
	return model.Build(spec)
}

// Solve runs a complete analysis of m.
func Solve(ctx context.Context, m *Model, opts Options) (*Result, error) {
	e := engine.New(opts)
	if err := e.Setup(m); err != nil {
		return nil, err
	}
	return e.Run(ctx)
}

// SolveConfig builds the model carried by cfg and solves it with the
// file's own generator and solver settings.
func SolveConfig(ctx context.Context, cfg *Config) (*Result, error) {
	m, err := cfg.Model()
	if err != nil {
		return nil, err
	}
	return Solve(ctx, m, cfg.Options())
}
