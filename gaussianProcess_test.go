package sls

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// chainDataset records 0.9 > 0.5 > 0.1 on the unit interval.
func chainDataset(t *testing.T) *Dataset {
	t.Helper()

	ds, err := NewDataset(1, 1e-8)
	require.NoError(t, err)

	_, err = ds.AddConstraint(Point{0.9}, Point{0.5})
	require.NoError(t, err)

	_, err = ds.AddConstraint(Point{0.5}, Point{0.1})
	require.NoError(t, err)

	return ds
}

func fitTestRegressor(t *testing.T, ds *Dataset, cfg Config) *Regressor {
	t.Helper()

	reg, err := FitRegressor(ds, cfg, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	return reg
}

func TestFitRegressorEmptyDataset(t *testing.T) {
	ds, err := NewDataset(2, 1e-8)
	require.NoError(t, err)

	_, err = FitRegressor(ds, testConfig(), nil, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrEmptyDataset)

	_, err = FitRegressor(nil, testConfig(), nil, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestFitRegressorOrdersPreferences(t *testing.T) {
	reg := fitTestRegressor(t, chainDataset(t), testConfig())

	latent := reg.Latent()
	require.Len(t, latent, 3)

	// Points are registered as 0.9, 0.5, 0.1.
	assert.Greater(t, latent[0], latent[1])
	assert.Greater(t, latent[1], latent[2])

	best, value := reg.BestTrainingPoint()
	assert.Equal(t, Point{0.9}, best)
	assert.InDelta(t, latent[0], value, 1e-15)

	assert.Greater(t, reg.PredictMean(Point{0.9}), reg.PredictMean(Point{0.1}))
	assert.False(t, math.IsNaN(reg.LogEvidence()))
	assert.Equal(t, 1, reg.Dim())
}

func TestFitRegressorWithoutLosers(t *testing.T) {
	ds, err := NewDataset(2, 1e-8)
	require.NoError(t, err)

	_, err = ds.AddConstraint(Point{0.3, 0.3}, Point{0.3, 0.3})
	require.NoError(t, err)

	reg := fitTestRegressor(t, ds, testConfig())

	// Without comparisons the posterior is the prior.
	mean, variance := reg.Predict(Point{0.6, 0.2})
	assert.InDelta(t, 0, mean, 1e-9)
	assert.InDelta(t, reg.hyperparameters().SignalVariance, variance, 1e-9)
}

func TestFitRegressorARD(t *testing.T) {
	ds, err := NewDataset(3, 1e-8)
	require.NoError(t, err)

	_, err = ds.AddConstraint(Point{0.8, 0.5, 0.5}, Point{0.2, 0.5, 0.5}, Point{0.5, 0.1, 0.9})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.ARD = true

	reg := fitTestRegressor(t, ds, cfg)
	h := reg.hyperparameters()
	assert.Len(t, h.LengthScales, 3)

	for _, b := range []float64{h.SignalVariance, h.Slip} {
		assert.Greater(t, b, 0.0)
	}

	// A warm start of the wrong shape falls back to the prior medians.
	warm := Hyperparameters{SignalVariance: 1, Slip: 0.1, LengthScales: []float64{0.5}}
	_, err = FitRegressor(ds, cfg, &warm, rand.New(rand.NewSource(2)))
	assert.NoError(t, err)
}

func TestRegressorPredictionIsPure(t *testing.T) {
	reg := fitTestRegressor(t, chainDataset(t), testConfig())
	x := Point{0.37}

	m1, v1 := reg.Predict(x)
	m2, v2 := reg.Predict(x)

	assert.Equal(t, m1, m2)
	assert.Equal(t, v1, v2)
	assert.Equal(t, m1, reg.PredictMean(x))
	assert.Equal(t, v1, reg.PredictVariance(x))
	assert.Equal(t, Point{0.37}, x)
}

func TestRegressorVariance(t *testing.T) {
	reg := fitTestRegressor(t, chainDataset(t), testConfig())
	a := reg.hyperparameters().SignalVariance

	for _, x := range []float64{0, 0.1, 0.3, 0.5, 0.7, 0.9, 1} {
		v := reg.PredictVariance(Point{x})
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, a+1e-12)
	}

	// Far from the data the prior takes over.
	far := Point{1000}
	assert.InDelta(t, 0, reg.PredictMean(far), 1e-12)
	assert.InDelta(t, a, reg.PredictVariance(far), 1e-12)
	assert.Less(t, reg.PredictVariance(Point{0.5}), reg.PredictVariance(far))
}

func TestRegressorPredictPanicsOnMismatch(t *testing.T) {
	reg := fitTestRegressor(t, chainDataset(t), testConfig())

	assert.Panics(t, func() { reg.PredictMean(Point{0.1, 0.2}) })
}

func TestRegressorPredictGradient(t *testing.T) {
	ds, err := NewDataset(2, 1e-8)
	require.NoError(t, err)

	_, err = ds.AddConstraint(Point{0.6, 0.4}, Point{0.2, 0.2}, Point{0.9, 0.9})
	require.NoError(t, err)

	_, err = ds.AddConstraint(Point{0.55, 0.5}, Point{0.6, 0.4}, Point{0.1, 0.8})
	require.NoError(t, err)

	reg := fitTestRegressor(t, ds, testConfig())

	x := Point{0.42, 0.63}
	dMean := make([]float64, 2)
	dVar := make([]float64, 2)
	reg.predict(x, dMean, dVar)

	const h = 1e-6
	for d := range x {
		up, down := x.Clone(), x.Clone()
		up[d] += h
		down[d] -= h

		mUp, vUp := reg.Predict(up)
		mDown, vDown := reg.Predict(down)

		assert.InDelta(t, (mUp-mDown)/(2*h), dMean[d], 1e-5)
		assert.InDelta(t, (vUp-vDown)/(2*h), dVar[d], 1e-5)
	}
}

func TestRegressorReturnsCopies(t *testing.T) {
	reg := fitTestRegressor(t, chainDataset(t), testConfig())

	reg.TrainingPoints()[0][0] = 42
	reg.Latent()[0] = 42

	best, _ := reg.BestTrainingPoint()
	best[0] = 42

	assert.Equal(t, Point{0.9}, reg.TrainingPoints()[0])
	assert.NotEqual(t, 42.0, reg.Latent()[0])
}

func TestFitLaplaceDidNotConverge(t *testing.T) {
	ds := chainDataset(t)

	cfg := testConfig()
	cfg.NewtonIterations = 1
	cfg.NewtonTolerance = 1e-300

	_, err := fitLaplace(ds.Points(), ds.Constraints(), defaultHyperparameters(1), cfg, nil)
	assert.ErrorIs(t, err, ErrRegressionDidNotConverge)

	_, err = FitRegressor(ds, cfg, nil, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrRegressionDidNotConverge)
}

func TestFactorizeWithJitter(t *testing.T) {
	t.Run("positive definite", func(t *testing.T) {
		a := mat.NewSymDense(2, []float64{2, 1, 1, 2})

		chol, used, jitter, err := factorizeWithJitter(a, 1e-10, 1e-2)
		require.NoError(t, err)
		assert.NotNil(t, chol)
		assert.Equal(t, 0.0, jitter)
		assert.Same(t, a, used)
	})

	t.Run("singular", func(t *testing.T) {
		// Two coincident points.
		a := mat.NewSymDense(2, []float64{1, 1, 1, 1})

		_, used, jitter, err := factorizeWithJitter(a, 1e-10, 1e-2)
		require.NoError(t, err)
		assert.Greater(t, jitter, 0.0)
		assert.LessOrEqual(t, jitter, 1e-2)
		assert.InDelta(t, 1+jitter, used.At(0, 0), 1e-15)

		// The input is left untouched.
		assert.Equal(t, 1.0, a.At(0, 0))
	})

	t.Run("indefinite", func(t *testing.T) {
		a := mat.NewSymDense(2, []float64{1, 0, 0, -1})

		_, _, _, err := factorizeWithJitter(a, 1e-10, 1e-2)
		assert.ErrorIs(t, err, ErrIllConditionedCovariance)
	})
}

func TestHyperparameterPrior(t *testing.T) {
	h := defaultHyperparameters(2)
	assert.Len(t, h.LengthScales, 2)

	// The medians are the mode of the prior.
	at := hyperparameterLogPrior(h.logVector())
	assert.InDelta(t, 0, at, 1e-12)

	off := h.clone()
	off.Slip *= 3
	assert.Less(t, hyperparameterLogPrior(off.logVector()), at)

	bounds := hyperparameterBounds(2)
	require.Len(t, bounds, 4)

	for i, v := range h.logVector() {
		assert.True(t, v > bounds[i].Lower && v < bounds[i].Upper)
	}
}

func TestHalveStep(t *testing.T) {
	a := []float64{0, 0}
	diff := []float64{4, -2}

	// The peak lies at 0.3 of the full step, so only the halved step rises.
	eval := func(x []float64) ([]float64, float64) {
		d0, d1 := x[0]-1.2, x[1]+0.6

		return x, -(d0*d0 + d1*d1)
	}

	_, cur := eval(a)

	nextA, nextF, val, ok := halveStep(a, diff, cur, eval)
	require.True(t, ok)
	assert.Equal(t, []float64{2, -1}, nextA)
	assert.Equal(t, nextA, nextF)
	assert.InDelta(t, -0.8, val, 1e-12)
	assert.Greater(t, val, cur)
	assert.Equal(t, []float64{0, 0}, a)
}

func TestHalveStepRejectsDecrease(t *testing.T) {
	a := []float64{0.3}
	calls := 0

	// Every candidate is worse than the current point.
	eval := func(x []float64) ([]float64, float64) {
		calls++

		return x, -1 - x[0]*x[0]
	}

	nextA, nextF, _, ok := halveStep(a, []float64{1}, 0, eval)
	assert.False(t, ok)
	assert.Nil(t, nextA)
	assert.Nil(t, nextF)
	assert.Equal(t, maxHalvings, calls)
	assert.Equal(t, []float64{0.3}, a)

	nan := func(x []float64) ([]float64, float64) { return x, math.NaN() }

	_, _, _, ok = halveStep(a, []float64{1}, 0, nan)
	assert.False(t, ok)
}
