package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrNotSquare reports a matrix/vector shape mismatch.
	ErrNotSquare = errors.New("linalg: matrix is not square or does not match the right-hand side")

	// ErrSingular reports a breakdown that indicates a singular system.
	ErrSingular = errors.New("linalg: singular system")
)

// ConvergenceError reports that the iterative solver stopped before reaching
// the requested tolerance.
type ConvergenceError struct {
	Iterations int
	Residual   float64 // relative residual ‖b − Ax‖ / ‖b‖ at exit
	Tolerance  float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("linalg: bicgstab did not converge after %d iterations: relative residual %.3e > tolerance %.3e",
		e.Iterations, e.Residual, e.Tolerance)
}

// Default solver settings.
const (
	DefaultTolerance     = 1e-12
	minDefaultIterations = 1000
)

// SolveOptions controls BiCGSTAB.
type SolveOptions struct {
	Tolerance     float64 // relative residual target; 0 → DefaultTolerance
	MaxIterations int     // 0 → max(1000, 10·n)
}

// SolveStats describes a finished solve.
type SolveStats struct {
	Iterations int
	Residual   float64
	Restarts   int
}

// BiCGSTAB solves a·x = b with the stabilised biconjugate gradient method,
// right-preconditioned by the inverse diagonal of a. On a Lanczos breakdown
// the shadow residual is reset to the current residual and iteration
// continues; two consecutive breakdowns are reported as ErrSingular.
func BiCGSTAB(a *CSR, b []float64, opts SolveOptions) ([]float64, SolveStats, error) {
	n := a.Dim()
	if len(b) != n {
		return nil, SolveStats{}, ErrNotSquare
	}
	tol := opts.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = max(minDefaultIterations, 10*n)
	}

	x := make([]float64, n)
	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		return x, SolveStats{}, nil
	}

	invDiag := a.Diag()
	for i, d := range invDiag {
		if d == 0 {
			invDiag[i] = 1
		} else {
			invDiag[i] = 1 / d
		}
	}

	r := append([]float64(nil), b...)
	rhat := append([]float64(nil), r...)
	p := make([]float64, n)
	v := make([]float64, n)
	s := make([]float64, n)
	t := make([]float64, n)
	phat := make([]float64, n)
	shat := make([]float64, n)

	var stats SolveStats
	rho, alpha, omega := 1.0, 1.0, 1.0
	fresh := true
	resid := 1.0

	for it := 1; it <= maxIter; it++ {
		stats.Iterations = it

		rhoNext := floats.Dot(rhat, r)
		if rhoNext == 0 || math.IsNaN(rhoNext) {
			if fresh {
				return x, stats, fmt.Errorf("%w: rho breakdown at iteration %d", ErrSingular, it)
			}
			copy(rhat, r)
			stats.Restarts++
			fresh = true
			rho, alpha, omega = 1, 1, 1
			rhoNext = floats.Dot(rhat, r)
		}

		if fresh {
			copy(p, r)
		} else {
			beta := (rhoNext / rho) * (alpha / omega)
			// p = r + beta·(p − omega·v)
			floats.AddScaled(p, -omega, v)
			floats.Scale(beta, p)
			floats.Add(p, r)
		}
		fresh = false

		floats.MulTo(phat, invDiag, p)
		a.MulVec(v, phat)
		den := floats.Dot(rhat, v)
		if den == 0 || math.IsNaN(den) {
			return x, stats, fmt.Errorf("%w: alpha breakdown at iteration %d", ErrSingular, it)
		}
		alpha = rhoNext / den

		floats.AddScaledTo(s, r, -alpha, v)
		if resid = floats.Norm(s, 2) / bnorm; resid <= tol {
			floats.AddScaled(x, alpha, phat)
			stats.Residual = resid
			return x, stats, nil
		}

		floats.MulTo(shat, invDiag, s)
		a.MulVec(t, shat)
		tt := floats.Dot(t, t)
		if tt == 0 {
			return x, stats, fmt.Errorf("%w: omega breakdown at iteration %d", ErrSingular, it)
		}
		omega = floats.Dot(t, s) / tt

		floats.AddScaled(x, alpha, phat)
		floats.AddScaled(x, omega, shat)
		floats.AddScaledTo(r, s, -omega, t)
		rho = rhoNext

		resid = floats.Norm(r, 2) / bnorm
		if math.IsNaN(resid) {
			return x, stats, fmt.Errorf("%w: residual became NaN at iteration %d", ErrSingular, it)
		}
		if resid <= tol {
			stats.Residual = resid
			return x, stats, nil
		}
		if omega == 0 {
			// Stagnation: restart from the current residual.
			copy(rhat, r)
			stats.Restarts++
			fresh = true
			rho, alpha, omega = 1, 1, 1
		}
	}

	stats.Residual = resid
	return x, stats, &ConvergenceError{Iterations: stats.Iterations, Residual: resid, Tolerance: tol}
}
