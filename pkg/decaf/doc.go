// Package decaf is the embeddable entry point of the decaf dependability
// solver.
//
// Typical use:
//
//	cfg, err := decaf.Load("model.yaml")
//	if err != nil { ... }
//	res, err := decaf.SolveConfig(ctx, cfg)
//
// The types re-exported here are the canonical in-memory representations
// shared by the CLI and library callers. Errors can be classified with
// errors.Is against ErrConfiguration, ErrSequence and ErrInternal, or with
// errors.As against *ValidationError and *ConvergenceError.
package decaf
