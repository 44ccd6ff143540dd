// Package engine owns one dependability analysis from configuration to
// results.
//
// An Engine moves through four strictly ordered stages:
//
//	Setup → GenerateStates → BuildGenerator → Solve
//
// Calling a stage out of order returns ErrSequence. A Setup that fails
// validation leaves the Engine unconfigured, so no state space is ever built
// from a rejected model. Setup may be called again at any time to start over;
// everything derived from the previous model is discarded.
//
// Each run gets a RunID (google/uuid) that is attached to every log line and
// to the Result. Phase durations are measured with an injectable clock so
// tests stay deterministic.
package engine
