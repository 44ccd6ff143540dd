// Package generator assembles the CTMC generator matrix (Q-matrix) of a
// model over its enumerated state space.
//
// Build runs three passes:
//   - environment: the environment-change matrix is block-copied onto every
//     run of envCount consecutive states sharing a failure-count vector
//   - repair: each state with failed units of type t moves to the state with
//     one fewer failure of t, at the rate given by the model's RepairPolicy
//   - failure: for every state, each failure tree produced by package cascade
//     from that state's failure counts contributes
//     available(root)·failure(root, env)·subtreeRate·complementRate to the
//     edge it induces (ProcessRates)
//
// The environment and repair passes run concurrently; the failure pass fans
// out one goroutine per root type. Every pass writes into its own triplet
// accumulator and the accumulators are merged in a fixed order, so the
// generator is bit-for-bit reproducible whatever the worker count.
//
// The diagonal is either accumulated incrementally alongside every
// off-diagonal contribution, or closed in a final pass from the row sums.
// DiagonalAuto picks incremental accumulation when the cascading link
// density reaches DensityThreshold.
package generator
