// Package reliability derives dependability measures from a generator
// matrix: mean time to failure (MTTF) from the transient up states and
// steady-state unavailability (SSU) from the stationary distribution.
package reliability
