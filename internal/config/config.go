package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/decaf-reliability/decaf/internal/engine"
	"github.com/decaf-reliability/decaf/internal/generator"
	"github.com/decaf-reliability/decaf/internal/linalg"
	"github.com/decaf-reliability/decaf/internal/model"
	"github.com/decaf-reliability/decaf/internal/report"
)

// Default values applied when fields are absent from the model file.
const (
	DefaultRepairPolicy = string(model.RepairShared)
	DefaultDiagonal     = string(generator.DiagonalAuto)
	DefaultTolerance    = linalg.DefaultTolerance
)

// Config is the parsed model file.
type Config struct {
	// Environments is the environment-change rate matrix. Row i holds the
	// rates out of environment i; the diagonal must be zero.
	Environments [][]float64 `yaml:"environments"`

	// Components lists the component types in document order.
	Components Components `yaml:"components"`

	// RepairPolicy is one of: shared | per_type.
	RepairPolicy string `yaml:"repair_policy"`

	Generator GeneratorConfig `yaml:"generator"`
	Solver    SolverConfig    `yaml:"solver"`

	// Requirements are checked against every solved run, e.g.
	// "availability >= 0.999".
	Requirements []string `yaml:"requirements"`
}

// Component describes one redundant component type.
type Component struct {
	Name       string    `yaml:"name"`
	Redundancy int       `yaml:"redundancy"`
	Required   int       `yaml:"required"`
	Failure    []float64 `yaml:"failure"`
	Repair     []float64 `yaml:"repair"`
	Cascading  Cascading `yaml:"cascading"`
}

// Cascade is one cascading edge to another component type.
type Cascade struct {
	Target      string  `yaml:"target"`
	Probability float64 `yaml:"probability"`
}

// GeneratorConfig tunes generator construction.
type GeneratorConfig struct {
	// Diagonal is one of: auto | incremental | final.
	Diagonal string `yaml:"diagonal"`

	// Workers bounds the failure-tree worker pool. 0 uses GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// SolverConfig tunes the BiCGSTAB solves.
type SolverConfig struct {
	// Tolerance is the relative residual at which a solve stops.
	Tolerance float64 `yaml:"tolerance"`

	// MaxIterations caps each solve. 0 uses max(1000, 10·states).
	MaxIterations int `yaml:"max_iterations"`
}

// Components accepts either a mapping keyed by name or a list.
type Components []Component

// UnmarshalYAML decodes both component forms, keeping document order.
func (c *Components) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []Component
		if err := node.Decode(&list); err != nil {
			return err
		}
		*c = list
		return nil
	case yaml.MappingNode:
		out := make([]Component, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, body := node.Content[i], node.Content[i+1]
			var comp Component
			if err := body.Decode(&comp); err != nil {
				return fmt.Errorf("component %q: %w", key.Value, err)
			}
			comp.Name = key.Value
			out = append(out, comp)
		}
		*c = out
		return nil
	default:
		return fmt.Errorf("line %d: components must be a mapping or a list", node.Line)
	}
}

// Cascading accepts either a mapping from target to probability or a list.
type Cascading []Cascade

// UnmarshalYAML decodes both cascading forms, keeping document order.
func (c *Cascading) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []Cascade
		if err := node.Decode(&list); err != nil {
			return err
		}
		*c = list
		return nil
	case yaml.MappingNode:
		out := make([]Cascade, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			var p float64
			if err := val.Decode(&p); err != nil {
				return fmt.Errorf("cascading %q: %w", key.Value, err)
			}
			out = append(out, Cascade{Target: key.Value, Probability: p})
		}
		*c = out
		return nil
	default:
		return fmt.Errorf("line %d: cascading must be a mapping or a list", node.Line)
	}
}

// Load reads and parses the model file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a model document, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		RepairPolicy: DefaultRepairPolicy,
		Generator:    GeneratorConfig{Diagonal: DefaultDiagonal},
		Solver:       SolverConfig{Tolerance: DefaultTolerance},
	}
}

// validate checks the run settings, then the model as a whole.
func validate(cfg *Config) error {
	switch generator.DiagonalMode(cfg.Generator.Diagonal) {
	case generator.DiagonalAuto, generator.DiagonalIncremental, generator.DiagonalFinal:
	default:
		return fmt.Errorf("generator.diagonal: unknown mode %q: %w", cfg.Generator.Diagonal, model.ErrConfiguration)
	}
	if cfg.Generator.Workers < 0 {
		return fmt.Errorf("generator.workers must not be negative: %w", model.ErrConfiguration)
	}
	if !(cfg.Solver.Tolerance > 0 && cfg.Solver.Tolerance < 1) {
		return fmt.Errorf("solver.tolerance must be in (0, 1), got %g: %w", cfg.Solver.Tolerance, model.ErrConfiguration)
	}
	if cfg.Solver.MaxIterations < 0 {
		return fmt.Errorf("solver.max_iterations must not be negative: %w", model.ErrConfiguration)
	}
	if _, err := report.ParseConditions(cfg.Requirements); err != nil {
		return fmt.Errorf("requirements: %v: %w", err, model.ErrConfiguration)
	}
	if vs := model.Validate(cfg.Spec()); len(vs) > 0 {
		return &model.ValidationError{Violations: vs}
	}
	return nil
}

// Spec converts the file into the name-addressed model description.
func (c *Config) Spec() model.Spec {
	spec := model.Spec{
		Environments: c.Environments,
		RepairPolicy: model.RepairPolicy(c.RepairPolicy),
		Components:   make([]model.ComponentSpec, len(c.Components)),
	}
	for i, comp := range c.Components {
		cs := model.ComponentSpec{
			Name:       comp.Name,
			Redundancy: comp.Redundancy,
			Required:   comp.Required,
			Failure:    comp.Failure,
			Repair:     comp.Repair,
		}
		for _, cas := range comp.Cascading {
			cs.Cascading = append(cs.Cascading, model.CascadeSpec{Target: cas.Target, Probability: cas.Probability})
		}
		spec.Components[i] = cs
	}
	return spec
}

// Model builds the validated component model.
func (c *Config) Model() (*model.Model, error) {
	return model.Build(c.Spec())
}

// Conditions returns the parsed requirements. Parse has already validated
// them, so the error is nil for any Config it returned.
func (c *Config) Conditions() ([]report.Condition, error) {
	return report.ParseConditions(c.Requirements)
}

// Options returns the engine settings carried by the file.
func (c *Config) Options() engine.Options {
	return engine.Options{
		Generator: generator.Options{
			Diagonal: generator.DiagonalMode(c.Generator.Diagonal),
			Workers:  c.Generator.Workers,
		},
		Solver: linalg.SolveOptions{
			Tolerance:     c.Solver.Tolerance,
			MaxIterations: c.Solver.MaxIterations,
		},
	}
}
