package sls

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/optimize"
)

//////
// Continuous optimizer shared by the regressor and the acquisition search.
//////

// nonFinitePenalty replaces NaN and infinite objective values so the
// underlying minimizers keep a total order over visited points.
const nonFinitePenalty = 1e100

// startMargin is the fraction of a box side that starting points keep from
// its faces. On a face the tanh map is flat and its gradient vanishes.
const startMargin = 1e-3

// Bound is the closed interval a coordinate is restricted to.
type Bound struct {
	Lower, Upper float64
}

// UnitBounds returns dim copies of [0, 1].
func UnitBounds(dim int) []Bound {
	b := make([]Bound, dim)
	for i := range b {
		b[i] = Bound{Lower: 0, Upper: 1}
	}

	return b
}

// Objective is a function to maximize. Grad is optional; when present it
// must write the gradient of Func at x into grad.
type Objective struct {
	Func func(x []float64) float64
	Grad func(grad, x []float64)
}

// MaximizeResult is the best point found by Maximize.
type MaximizeResult struct {
	// X is the argmax, inside the bounds.
	X []float64

	// F is the objective value at X.
	F float64

	// Start is the index of the start that produced X. Seeds come first,
	// then random restarts.
	Start int
}

// MultiStart maximizes an objective over a box by running a local optimizer
// from several starting points and keeping the best result. LBFGS is used
// when the objective has a gradient and Nelder-Mead otherwise.
//
// Box constraints are imposed by optimizing over z with
//
//	x = lower + (upper - lower) * (1 + tanh(z)) / 2
//
// so every visited point is feasible.
type MultiStart struct {
	// Restarts is the number of random starts run after the seeds.
	Restarts int

	// MaxIterations caps major iterations per start. Zero means unlimited.
	MaxIterations int

	// MaxEvaluations caps objective evaluations per start. Zero means
	// unlimited.
	MaxEvaluations int

	// SimplexSize is the initial Nelder-Mead simplex size in z space.
	SimplexSize float64

	// Rand draws the random starts.
	Rand *rand.Rand
}

// Maximize returns the best point found from the seeds followed by
// m.Restarts random starts.
//
// Parameters:
// - obj: Function to maximize, with an optional gradient
// - bounds: Box the search is restricted to, one Bound per coordinate
// - seeds: Starting points tried first, clamped into bounds
//
// Returns:
// - MaximizeResult: The best point, its value and the start it came from
// - error: Wraps ErrDimensionMismatch for a seed of the wrong length, or
// ErrOptimizerFailed when no start reached a finite value
//
// How it works:
// 1. Every start runs one local search (LBFGS with a gradient, Nelder-Mead
// without) in tanh space, so every visited point is feasible
// 2. A local search never returns a point worse than its start
// 3. The best result wins; ties keep the earliest start
//
// Important notes:
// - Starts on a face are moved startMargin inside before the local search;
// the start itself is still evaluated where it is
// - NaN and infinite values lose against any finite value
//
// Thread safety:
// - m.Rand is used without locking; do not share it across goroutines.
func (m MultiStart) Maximize(obj Objective, bounds []Bound, seeds ...[]float64) (MaximizeResult, error) {
	starts := make([][]float64, 0, len(seeds)+m.Restarts)
	for _, s := range seeds {
		if len(s) != len(bounds) {
			return MaximizeResult{}, fmt.Errorf("%w: seed has %d coordinates, want %d", ErrDimensionMismatch, len(s), len(bounds))
		}

		starts = append(starts, clampToBounds(s, bounds))
	}

	for i := 0; i < m.Restarts; i++ {
		starts = append(starts, randomInBounds(m.Rand, bounds))
	}

	if len(starts) == 0 {
		return MaximizeResult{}, fmt.Errorf("%w: no starting point", ErrOptimizerFailed)
	}

	best := MaximizeResult{F: math.Inf(-1), Start: -1}

	for i, s := range starts {
		x, f, ok := m.localMaximize(obj, bounds, s)
		if ok && f > best.F {
			best = MaximizeResult{X: x, F: f, Start: i}
		}
	}

	if best.Start < 0 {
		return MaximizeResult{X: starts[0], F: math.Inf(-1), Start: -1}, fmt.Errorf("%w: %d starts", ErrOptimizerFailed, len(starts))
	}

	return best, nil
}

// localMaximize runs one local optimization from start. It never returns a
// point worse than start itself.
func (m MultiStart) localMaximize(obj Objective, bounds []Bound, start []float64) ([]float64, float64, bool) {
	bestX := append([]float64(nil), start...)
	bestF := obj.Func(bestX)
	ok := isFinite(bestF)

	if !ok {
		bestF = math.Inf(-1)
	}

	dim := len(bounds)
	x := make([]float64, dim)
	gx := make([]float64, dim)

	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			fromUnbounded(x, z, bounds)

			return -penalize(obj.Func(x))
		},
	}

	var method optimize.Method = &optimize.NelderMead{SimplexSize: m.SimplexSize}

	if obj.Grad != nil {
		problem.Grad = func(grad, z []float64) {
			fromUnbounded(x, z, bounds)
			obj.Grad(gx, x)

			for d := range z {
				t := math.Tanh(z[d])
				jac := (bounds[d].Upper - bounds[d].Lower) * (1 - t*t) / 2

				g := gx[d]
				if !isFinite(g) {
					g = 0
				}

				grad[d] = -g * jac
			}
		}
		method = &optimize.LBFGS{}
	}

	settings := &optimize.Settings{
		MajorIterations: m.MaxIterations,
		FuncEvaluations: m.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 20,
		},
	}

	// A failed line search is reported as an error but the result still
	// holds the best location visited.
	result, _ := optimize.Minimize(problem, toUnbounded(start, bounds), settings, method)
	if result == nil {
		return bestX, bestF, ok
	}

	if f := -result.F; result.F < nonFinitePenalty && f > bestF {
		cand := make([]float64, dim)
		fromUnbounded(cand, result.X, bounds)

		bestX, bestF, ok = cand, f, true
	}

	return bestX, bestF, ok
}

func penalize(f float64) float64 {
	if !isFinite(f) {
		return -nonFinitePenalty
	}

	return f
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// toUnbounded maps a feasible x to z space, pulling coordinates on or near a
// face startMargin of the width inside.
func toUnbounded(x []float64, bounds []Bound) []float64 {
	z := make([]float64, len(x))

	for d, b := range bounds {
		width := b.Upper - b.Lower
		if width <= 0 {
			continue
		}

		// u in [-1, 1]; a margin m of the width is 2m in u.
		u := 2*(x[d]-b.Lower)/width - 1
		u = math.Max(-1+2*startMargin, math.Min(1-2*startMargin, u))
		z[d] = math.Atanh(u)
	}

	return z
}

// fromUnbounded maps z back into the box, writing into dst.
func fromUnbounded(dst, z []float64, bounds []Bound) {
	for d, b := range bounds {
		dst[d] = b.Lower + (b.Upper-b.Lower)*(1+math.Tanh(z[d]))/2
		dst[d] = math.Max(b.Lower, math.Min(b.Upper, dst[d]))
	}
}

func clampToBounds(x []float64, bounds []Bound) []float64 {
	c := make([]float64, len(x))
	for d, b := range bounds {
		c[d] = math.Max(b.Lower, math.Min(b.Upper, x[d]))
	}

	return c
}

func randomInBounds(rng *rand.Rand, bounds []Bound) []float64 {
	x := make([]float64, len(bounds))
	for d, b := range bounds {
		x[d] = b.Lower + rng.Float64()*(b.Upper-b.Lower)
	}

	return x
}
