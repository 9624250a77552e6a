package sls

import (
	"fmt"
	"math"
	"sort"
)

//////
// Available acquisition functions.
// Each function scores how promising a point is from the posterior mean and
// standard deviation there, balancing exploration (high uncertainty) against
// exploitation (high mean). Higher values are more promising.
//////

// minStdDev is the standard deviation under which a prediction is treated
// as certain.
const minStdDev = 1e-9

// AcquisitionFunc scores a point from its posterior mean and standard
// deviation and returns the partial derivatives of the score with respect to
// both, which drive the gradient based search in NextPoint.
//
// Built-in acquisition functions:
// - ExpectedImprovement (default)
// - UCB: Upper Confidence Bound
// - ProbabilityOfImprovement
//
// Usage example:
//
//	custom := func(mean, stddev float64, params AcquisitionParams) (float64, float64, float64) {
//	    return mean + params.Beta*stddev, 1, params.Beta
//	}
type AcquisitionFunc func(mean, stddev float64, params AcquisitionParams) (value, dMean, dStd float64)

// AcquisitionParams holds the parameters of the acquisition functions.
type AcquisitionParams struct {
	// Beta is the UCB exploration weight. Higher values favour uncertain
	// regions.
	Beta float64

	// Xi is the minimum improvement over BestSoFar that EI and PI reward.
	Xi float64

	// BestSoFar is the best posterior mean observed. NextPoint fills it in
	// from the regressor.
	BestSoFar float64
}

// UCB implements the Upper Confidence Bound acquisition function.
//
// How it works:
// - Starts from the predicted utility (mean)
// - Adds a bonus proportional to the uncertainty (stddev)
// - Beta controls how much the bonus weighs
//
// Parameters:
// - mean: Posterior mean of the latent utility
// - stddev: Posterior standard deviation
// - params.Beta: Exploration weight (typical values 1 to 3)
//
// Returns:
// - value: mean + Beta * stddev
// - dMean, dStd: 1 and Beta
//
// Example:
//
//	params := AcquisitionParams{Beta: 2.0}
//	score, _, _ := UCB(0.4, 0.1, params) // 0.6
func UCB(mean, stddev float64, params AcquisitionParams) (float64, float64, float64) {
	return mean + params.Beta*stddev, 1, params.Beta
}

// ProbabilityOfImprovement is the probability that the utility at a point
// exceeds BestSoFar + Xi.
//
// Parameters:
// - mean: Posterior mean of the latent utility
// - stddev: Posterior standard deviation
// - params.BestSoFar: Utility to beat
// - params.Xi: Minimum improvement worth counting
//
// Returns:
// - value: Phi(z), z = (mean - BestSoFar - Xi) / stddev
// - dMean, dStd: Partial derivatives of value
//
// Important notes:
// - With stddev under 1e-9 the prediction is treated as certain: value is 1
// when mean improves on the target and 0 otherwise, with zero derivatives
// - Favours small sure improvements; prefer EI when their size matters
func ProbabilityOfImprovement(mean, stddev float64, params AcquisitionParams) (float64, float64, float64) {
	imp := mean - params.BestSoFar - params.Xi

	if stddev <= minStdDev {
		if imp > 0 {
			return 1, 0, 0
		}

		return 0, 0, 0
	}

	z := imp / stddev
	pdf := normalPDF(z)

	return normalCDF(z), pdf / stddev, -pdf * z / stddev
}

// ExpectedImprovement is the expected amount by which the utility at a
// point exceeds BestSoFar + Xi. It is the default acquisition function of a
// Session.
//
// Parameters:
// - mean: Posterior mean of the latent utility
// - stddev: Posterior standard deviation
// - params.BestSoFar: Utility to beat
// - params.Xi: Minimum improvement worth counting
//
// Returns:
// - value: imp * Phi(z) + stddev * phi(z), with imp = mean - BestSoFar - Xi
// and z = imp / stddev
// - dMean: Phi(z)
// - dStd: phi(z)
//
// Important notes:
// - Always >= 0
// - With stddev under 1e-9 the value is max(imp, 0)
//
// Example:
//
//	params := AcquisitionParams{BestSoFar: 1.2, Xi: 0.01}
//	ei, _, _ := ExpectedImprovement(1.1, 0.3, params)
func ExpectedImprovement(mean, stddev float64, params AcquisitionParams) (float64, float64, float64) {
	imp := mean - params.BestSoFar - params.Xi

	if stddev <= minStdDev {
		if imp > 0 {
			return imp, 1, 0
		}

		return 0, 0, 0
	}

	z := imp / stddev
	cdf := normalCDF(z)
	pdf := normalPDF(z)

	return imp*cdf + stddev*pdf, cdf, pdf
}

// AcquisitionFuncByName resolves "ei", "ucb" or "pi".
func AcquisitionFuncByName(name string) (AcquisitionFunc, error) {
	switch name {
	case "ei", "":
		return ExpectedImprovement, nil
	case "ucb":
		return UCB, nil
	case "pi":
		return ProbabilityOfImprovement, nil
	default:
		return nil, fmt.Errorf("%w: unknown acquisition function %q", ErrInvalidConfig, name)
	}
}

//////
// Acquisition search.
//////

// NextPoint returns the point of bounds maximizing acq under reg, and its
// score.
//
// Parameters:
// - reg: Fitted regressor
// - acq: Acquisition function, e.g. ExpectedImprovement
// - params: Acquisition parameters. BestSoFar is replaced by the best latent
// value of reg
// - bounds: Search box, one Bound per dimension of reg
// - numCandidates: Random points screened before the local search
// - optimizer: Local search settings. optimizer.Restarts is the number of
// screened candidates the search starts from, optimizer.Rand draws them
//
// Returns:
// - Point: The maximizer, inside bounds
// - float64: Its acquisition value
// - error: Wraps ErrDimensionMismatch or ErrOptimizerFailed
//
// How it works:
// 1. Scores numCandidates random points drawn from optimizer.Rand
// 2. Runs optimizer's gradient based local search from the best training
// point and from the optimizer.Restarts best scoring candidates
// 3. Returns the best local optimum; ties keep the earliest start
//
// Important notes:
// - The result never scores below the best training point, which is always
// the first start
// - Deterministic for a given optimizer.Rand state
func NextPoint(reg *Regressor, acq AcquisitionFunc, params AcquisitionParams, bounds []Bound, numCandidates int, optimizer MultiStart) (Point, float64, error) {
	if len(bounds) != reg.Dim() {
		return nil, 0, fmt.Errorf("%w: %d bounds for dimension %d", ErrDimensionMismatch, len(bounds), reg.Dim())
	}

	bestPoint, bestValue := reg.BestTrainingPoint()
	params.BestSoFar = bestValue

	dim := reg.Dim()
	dMean := make([]float64, dim)
	dVar := make([]float64, dim)

	score := func(x []float64) float64 {
		mean, variance := reg.Predict(x)
		value, _, _ := acq(mean, math.Sqrt(variance), params)

		return value
	}

	grad := func(g, x []float64) {
		mean, variance := reg.predict(x, dMean, dVar)
		stddev := math.Sqrt(variance)
		_, aMean, aStd := acq(mean, stddev, params)

		for d := range g {
			g[d] = aMean * dMean[d]
			if stddev > minStdDev {
				g[d] += aStd * dVar[d] / (2 * stddev)
			}
		}
	}

	type candidate struct {
		x     []float64
		value float64
	}

	candidates := make([]candidate, numCandidates)
	for i := range candidates {
		x := randomInBounds(optimizer.Rand, bounds)
		candidates[i] = candidate{x: x, value: score(x)}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].value > candidates[j].value
	})

	seeds := [][]float64{bestPoint}
	for i := 0; i < optimizer.Restarts && i < len(candidates); i++ {
		seeds = append(seeds, candidates[i].x)
	}

	local := optimizer
	local.Restarts = 0

	res, err := local.Maximize(Objective{Func: score, Grad: grad}, bounds, seeds...)
	if err != nil {
		return nil, 0, fmt.Errorf("acquisition search: %w", err)
	}

	return Point(clampToBounds(res.X, bounds)), res.F, nil
}
