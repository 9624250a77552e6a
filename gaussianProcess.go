package sls

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

//////
// Const, vars, types.
//////

// maxHalvings bounds the step halving of one Newton iteration.
const maxHalvings = 30

// logPrior is a log-normal prior over one hyperparameter, together with the
// box its logarithm is searched in.
type logPrior struct {
	Median float64
	LogSD  float64
	Lower  float64
	Upper  float64
}

// logDensity is the unnormalized log density at log value v.
func (p logPrior) logDensity(v float64) float64 {
	d := (v - math.Log(p.Median)) / p.LogSD

	return -0.5 * d * d
}

func (p logPrior) bound() Bound {
	return Bound{Lower: math.Log(p.Lower), Upper: math.Log(p.Upper)}
}

var (
	signalVariancePrior = logPrior{Median: 0.5, LogSD: 0.5, Lower: 1e-2, Upper: 1e1}
	slipPrior           = logPrior{Median: 0.1, LogSD: 0.5, Lower: 1e-3, Upper: 1}
	lengthScalePrior    = logPrior{Median: 0.5, LogSD: 0.5, Lower: 1e-2, Upper: 1e1}
)

// defaultHyperparameters returns the prior medians with m length scales.
func defaultHyperparameters(m int) Hyperparameters {
	h := Hyperparameters{
		SignalVariance: signalVariancePrior.Median,
		Slip:           slipPrior.Median,
		LengthScales:   make([]float64, m),
	}

	for i := range h.LengthScales {
		h.LengthScales[i] = lengthScalePrior.Median
	}

	return h
}

// hyperparameterBounds is the log-space search box for m length scales.
func hyperparameterBounds(m int) []Bound {
	b := []Bound{signalVariancePrior.bound(), slipPrior.bound()}
	for i := 0; i < m; i++ {
		b = append(b, lengthScalePrior.bound())
	}

	return b
}

// hyperparameterLogPrior evaluates the prior at a logVector.
func hyperparameterLogPrior(v []float64) float64 {
	lp := signalVariancePrior.logDensity(v[0]) + slipPrior.logDensity(v[1])
	for _, l := range v[2:] {
		lp += lengthScalePrior.logDensity(l)
	}

	return lp
}

// Regressor is a Gaussian process over a latent utility, fitted to pairwise
// preferences with a probit likelihood
//
//	P(w beats l) = Phi((f_w - f_l) / (sqrt(2) * slip))
//
// and a Laplace approximation of the posterior. A Regressor never changes
// after it is fitted; every refit builds a new one, so concurrent reads are
// safe.
type Regressor struct {
	dim    int
	points []Point
	kernel Kernel

	// latent is the posterior mode of f at the training points.
	latent []float64

	// alpha solves K alpha = latent.
	alpha []float64

	// predCov is (K + W^-1)^-1, the term subtracted from the prior variance.
	predCov *mat.SymDense

	jitter      float64
	logEvidence float64
	best        int
}

//////
// Fitting.
//////

// FitRegressor estimates hyperparameters and latent values for ds.
//
// Parameters:
// - ds: Points and preferences to fit (not modified)
// - cfg: Iteration budgets, jitter policy and ARD switch
// - warm: Hyperparameters to start the search from, typically the previous
// fit. Nil (or a different number of length scales) starts from the prior
// medians
// - rng: Source of the cfg.HyperparameterRestarts random restarts
//
// Returns:
// - *Regressor: A new, immutable fit
// - error: Wraps ErrEmptyDataset, ErrIllConditionedCovariance or
// ErrRegressionDidNotConverge
//
// How it works:
// 1. Every candidate hyperparameter vector gets its own latent mode search
// (Newton on the Laplace approximation)
// 2. Its score is the Laplace log evidence plus the log-normal prior
// 3. Nelder-Mead maximizes the score in log space, within the prior box
// 4. The winning hyperparameters are fitted once more from scratch
//
// Important notes:
// - Candidates that fail to fit score -Inf instead of aborting the search
// - Cost is dominated by O(n^3) factorizations, n = ds.Len()
//
// Thread safety:
// - rng is used without locking; do not share it across goroutines.
func FitRegressor(ds *Dataset, cfg Config, warm *Hyperparameters, rng *rand.Rand) (*Regressor, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}

	points := ds.Points()
	prefs := ds.Constraints()

	m := 1
	if cfg.ARD {
		m = ds.Dim()
	}

	start := defaultHyperparameters(m)
	if warm != nil && len(warm.LengthScales) == m {
		start = warm.clone()
	}

	bounds := hyperparameterBounds(m)
	seed := clampToBounds(start.logVector(), bounds)

	// Newton starts from the latest mode between evaluations.
	var alphaWarm []float64

	objective := func(v []float64) float64 {
		r, err := fitLaplace(points, prefs, hyperparametersFromLog(v), cfg, alphaWarm)
		if err != nil {
			return math.Inf(-1)
		}

		alphaWarm = r.alpha

		return r.logEvidence + hyperparameterLogPrior(v)
	}

	optimizer := MultiStart{
		Restarts:       cfg.HyperparameterRestarts,
		MaxEvaluations: cfg.HyperparameterEvaluations,
		SimplexSize:    0.5,
		Rand:           rng,
	}

	// With no finite start the final fit reproduces the error at the seed.
	best := seed
	if res, err := optimizer.Maximize(Objective{Func: objective}, bounds, seed); err == nil {
		best = res.X
	}

	r, err := fitLaplace(points, prefs, hyperparametersFromLog(best), cfg, nil)
	if err != nil {
		return nil, err
	}

	r.logEvidence += hyperparameterLogPrior(best)

	return r, nil
}

// fitLaplace finds the posterior mode of the latent values for fixed
// hyperparameters and assembles the predictive state.
//
// With W = R^T R the negative Hessian of the log likelihood (one row of R
// per compared pair) and B = I + R K R^T, the Newton step is
//
//	b = W f + grad log p(y|f)
//	a = b - R^T B^-1 R K b
//	f = K a
//
// so K is never inverted, and log|I + K W| = log|B|.
func fitLaplace(points []Point, prefs []Preference, h Hyperparameters, cfg Config, alphaInit []float64) (*Regressor, error) {
	n := len(points)
	kern := NewKernel(h)
	lik := newPreferenceLikelihood(prefs, h.Slip)

	_, k, jitter, err := factorizeWithJitter(kern.Gram(points), h.SignalVariance*cfg.JitterInitial, h.SignalVariance*cfg.JitterCeiling)
	if err != nil {
		return nil, fmt.Errorf("gram matrix: %w", err)
	}

	a := make([]float64, n)
	if len(alphaInit) == n {
		copy(a, alphaInit)
	}

	f := mulSym(k, a)

	psi := func(f, a []float64) float64 {
		return lik.logLikelihood(f) - 0.5*floats.Dot(a, f)
	}

	cur := psi(f, a)
	converged := false

	for it := 0; it < cfg.NewtonIterations; it++ {
		lf, err := newLaplaceFactors(k, lik, f, cfg)
		if err != nil {
			return nil, err
		}

		target, err := lf.newtonTarget(k, lik, f)
		if err != nil {
			return nil, err
		}

		diff := floats.SubTo(make([]float64, n), target, a)

		nextA, nextF, val, ok := halveStep(a, diff, cur, func(a []float64) ([]float64, float64) {
			f := mulSym(k, a)

			return f, psi(f, a)
		})
		if !ok {
			// At the mode rounding alone can keep psi from rising.
			if floats.Norm(mulSym(k, diff), math.Inf(1)) < cfg.NewtonTolerance {
				converged = true

				break
			}

			return nil, fmt.Errorf("%w: no newton step increases the latent objective", ErrRegressionDidNotConverge)
		}

		delta := floats.Distance(nextF, f, math.Inf(1))
		a, f, cur = nextA, nextF, val

		if delta < cfg.NewtonTolerance {
			converged = true

			break
		}
	}

	if !converged {
		return nil, fmt.Errorf("%w: no latent mode after %d newton iterations", ErrRegressionDidNotConverge, cfg.NewtonIterations)
	}

	lf, err := newLaplaceFactors(k, lik, f, cfg)
	if err != nil {
		return nil, err
	}

	predCov, err := lf.predictiveCovariance(n)
	if err != nil {
		return nil, err
	}

	r := &Regressor{
		dim:         len(points[0]),
		points:      points,
		kernel:      kern,
		latent:      f,
		alpha:       a,
		predCov:     predCov,
		jitter:      jitter,
		logEvidence: cur - 0.5*lf.logDetB,
		best:        floats.MaxIdx(f),
	}

	return r, nil
}

// halveStep tries a + scale*diff for scale = 1, 1/2, 1/4, ... and returns
// the first candidate whose objective is at least cur, with its latent values
// and objective. ok is false when maxHalvings halvings never reach cur; the
// caller then keeps a unchanged.
func halveStep(a, diff []float64, cur float64, eval func(a []float64) ([]float64, float64)) (nextA, nextF []float64, val float64, ok bool) {
	scale := 1.0

	for halving := 0; halving < maxHalvings; halving++ {
		nextA = floats.AddScaledTo(make([]float64, len(a)), a, scale, diff)
		nextF, val = eval(nextA)

		if val >= cur {
			return nextA, nextF, val, true
		}

		scale /= 2
	}

	return nil, nil, 0, false
}

// laplaceFactors holds R and the factorization of B = I + R K R^T at one f.
type laplaceFactors struct {
	r       *mat.Dense
	bChol   *mat.Cholesky
	logDetB float64
}

func newLaplaceFactors(k *mat.SymDense, lik preferenceLikelihood, f []float64, cfg Config) (*laplaceFactors, error) {
	r := lik.hessianFactor(f, len(f))
	if r == nil {
		return &laplaceFactors{}, nil
	}

	p, _ := r.Dims()

	var rk, rkr mat.Dense
	rk.Mul(r, k)
	rkr.Mul(&rk, r.T())

	b := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		b.SetSym(i, i, 1+rkr.At(i, i))

		for j := i + 1; j < p; j++ {
			b.SetSym(i, j, 0.5*(rkr.At(i, j)+rkr.At(j, i)))
		}
	}

	// B has every eigenvalue >= 1; jitter only absorbs rounding.
	chol, _, _, err := factorizeWithJitter(b, cfg.JitterInitial, cfg.JitterCeiling)
	if err != nil {
		return nil, fmt.Errorf("laplace matrix: %w", err)
	}

	return &laplaceFactors{r: r, bChol: chol, logDetB: chol.LogDet()}, nil
}

// newtonTarget returns a = b - R^T B^-1 R K b with b = W f + grad log p(y|f).
func (lf *laplaceFactors) newtonTarget(k *mat.SymDense, lik preferenceLikelihood, f []float64) ([]float64, error) {
	n := len(f)

	b := make([]float64, n)
	lik.gradient(b, f)

	if lf.r == nil {
		return b, nil
	}

	var rf, wf mat.VecDense
	rf.MulVec(lf.r, mat.NewVecDense(n, f))
	wf.MulVec(lf.r.T(), &rf)
	floats.Add(b, wf.RawVector().Data)

	kb := mulSym(k, b)

	var rkb, y, rty mat.VecDense
	rkb.MulVec(lf.r, mat.NewVecDense(n, kb))

	if err := tolerateCondition(lf.bChol.SolveVecTo(&y, &rkb)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIllConditionedCovariance, err)
	}

	rty.MulVec(lf.r.T(), &y)
	floats.Sub(b, rty.RawVector().Data)

	return b, nil
}

// predictiveCovariance returns R^T B^-1 R = (K + W^-1)^-1.
func (lf *laplaceFactors) predictiveCovariance(n int) (*mat.SymDense, error) {
	m := mat.NewSymDense(n, nil)
	if lf.r == nil {
		return m, nil
	}

	var x, rtx mat.Dense
	if err := tolerateCondition(lf.bChol.SolveTo(&x, lf.r)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIllConditionedCovariance, err)
	}

	rtx.Mul(lf.r.T(), &x)

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			m.SetSym(i, j, 0.5*(rtx.At(i, j)+rtx.At(j, i)))
		}
	}

	return m, nil
}

//////
// Prediction.
//////

// PredictMean returns the posterior mean of the latent utility at x.
// Panics if x does not have the regressor's dimension.
func (r *Regressor) PredictMean(x Point) float64 {
	mean, _ := r.predict(x, nil, nil)

	return mean
}

// PredictVariance returns the posterior variance of the latent utility at
// x. Panics if x does not have the regressor's dimension.
func (r *Regressor) PredictVariance(x Point) float64 {
	_, variance := r.predict(x, nil, nil)

	return variance
}

// Predict returns both the posterior mean and variance at x.
func (r *Regressor) Predict(x Point) (mean, variance float64) {
	return r.predict(x, nil, nil)
}

// predict computes
//
//	mean     = k . alpha
//	variance = k(x, x) - k^T (K + W^-1)^-1 k
//
// and, when dMean and dVar are non-nil, their gradients with respect to x.
func (r *Regressor) predict(x Point, dMean, dVar []float64) (mean, variance float64) {
	if len(x) != r.dim {
		panic("input vectors must have the same length")
	}

	n := len(r.points)
	kx := make([]float64, n)
	r.kernel.CrossVector(kx, x, r.points)

	mk := mulSym(r.predCov, kx)

	mean = floats.Dot(kx, r.alpha)
	variance = math.Max(0, r.kernel.SignalVariance-floats.Dot(kx, mk))

	if dMean == nil || dVar == nil {
		return mean, variance
	}

	for d := range dMean {
		dMean[d], dVar[d] = 0, 0
	}

	g := make([]float64, r.dim)
	for i, p := range r.points {
		r.kernel.Gradient(g, x, p)
		floats.AddScaled(dMean, r.alpha[i], g)
		floats.AddScaled(dVar, -2*mk[i], g)
	}

	return mean, variance
}

// BestTrainingPoint returns the training point with the largest latent
// value and that value. Ties go to the earliest point.
func (r *Regressor) BestTrainingPoint() (Point, float64) {
	return r.points[r.best].Clone(), r.latent[r.best]
}

// TrainingPoints returns copies of the points the regressor was fitted on.
func (r *Regressor) TrainingPoints() []Point {
	out := make([]Point, len(r.points))
	for i, p := range r.points {
		out[i] = p.Clone()
	}

	return out
}

// Latent returns the posterior mode at the training points.
func (r *Regressor) Latent() []float64 {
	return append([]float64(nil), r.latent...)
}

// LogEvidence is the Laplace log evidence plus the hyperparameter log prior
// at the fitted hyperparameters, up to a constant.
func (r *Regressor) LogEvidence() float64 { return r.logEvidence }

// Jitter is the diagonal regularization the Gram matrix needed.
func (r *Regressor) Jitter() float64 { return r.jitter }

// Dim is the dimension of the parameter space.
func (r *Regressor) Dim() int { return r.dim }

// hyperparameters returns a copy of the fitted hyperparameters.
func (r *Regressor) hyperparameters() Hyperparameters {
	return r.kernel.Hyperparameters.clone()
}

//////
// Linear algebra helpers.
//////

// factorizeWithJitter returns the Cholesky factorization of a, adding
// diagonal jitter (initial, x10 each attempt, up to ceiling) when a is not
// numerically positive definite. It returns the matrix actually factorized
// and the jitter used.
func factorizeWithJitter(a *mat.SymDense, initial, ceiling float64) (*mat.Cholesky, *mat.SymDense, float64, error) {
	var chol mat.Cholesky
	if chol.Factorize(a) && chol.Cond() < mat.ConditionTolerance {
		return &chol, a, 0, nil
	}

	n := a.SymmetricDim()
	aj := mat.NewSymDense(n, nil)

	for jitter := initial; jitter <= ceiling*(1+1e-9); jitter *= 10 {
		aj.CopySym(a)

		for i := 0; i < n; i++ {
			aj.SetSym(i, i, aj.At(i, i)+jitter)
		}

		if chol.Factorize(aj) && chol.Cond() < mat.ConditionTolerance {
			return &chol, aj, jitter, nil
		}
	}

	return nil, nil, 0, fmt.Errorf("%w: not positive definite with jitter up to %g", ErrIllConditionedCovariance, ceiling)
}

// tolerateCondition drops mat.Condition warnings; the result of the solve
// is still usable.
func tolerateCondition(err error) error {
	var cond mat.Condition
	if errors.As(err, &cond) {
		return nil
	}

	return err
}

// mulSym returns a x.
func mulSym(a *mat.SymDense, x []float64) []float64 {
	var v mat.VecDense
	v.MulVec(a, mat.NewVecDense(len(x), x))

	return v.RawVector().Data
}
