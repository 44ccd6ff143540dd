// Package model holds the immutable reliability description of a system:
// the environment-change matrix and the per-type component parameters.
//
// Top-level types:
//   - Spec: the raw, name-addressed description produced by a loader
//     (environments, components, cascading edges by target name)
//   - Model: the validated, index-addressed form consumed by the solver
//   - Component, Link: one redundant component type and its cascading edges
//   - RepairPolicy: how repair capacity is shared between failed units
//
// Validate(spec) performs a single pass and returns every violation it finds.
// Build(spec) runs Validate and, when it reports no violations, resolves cascading
// targets to type indices. Nothing here allocates state-space structures, so
// a rejected configuration never reaches state generation.
package model
