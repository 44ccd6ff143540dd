// Package linalg is the linear-algebra boundary of the solver: a sparse
// triplet accumulator, a compressed sparse row (CSR) matrix, and a
// Jacobi-preconditioned BiCGSTAB iterative solver.
//
// Triplets collects (row, col, value) contributions in insertion order.
// Compress sums duplicates in that order, so the same sequence of Add calls
// always produces bit-identical matrices regardless of how work was split.
package linalg
