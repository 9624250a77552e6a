package sls

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bowl peaks at (0.3, 0.7).
var bowl = Objective{
	Func: func(x []float64) float64 {
		return -(x[0]-0.3)*(x[0]-0.3) - (x[1]-0.7)*(x[1]-0.7)
	},
	Grad: func(grad, x []float64) {
		grad[0] = -2 * (x[0] - 0.3)
		grad[1] = -2 * (x[1] - 0.7)
	},
}

func TestMaximizeWithGradient(t *testing.T) {
	m := MultiStart{Restarts: 2, MaxIterations: 200, Rand: rand.New(rand.NewSource(1))}

	res, err := m.Maximize(bowl, UnitBounds(2), []float64{0.9, 0.1})
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0.3, 0.7}, res.X, 1e-3)
	assert.InDelta(t, 0, res.F, 1e-5)
}

func TestMaximizeDerivativeFree(t *testing.T) {
	m := MultiStart{Restarts: 1, MaxEvaluations: 2000, SimplexSize: 0.5, Rand: rand.New(rand.NewSource(2))}

	res, err := m.Maximize(Objective{Func: bowl.Func}, UnitBounds(2), []float64{0.5, 0.5})
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0.3, 0.7}, res.X, 1e-2)
}

func TestMaximizeStaysInBounds(t *testing.T) {
	bounds := []Bound{{Lower: -1, Upper: 2}, {Lower: 0, Upper: 1}}

	// Increasing in both coordinates: the optimum is the upper corner.
	obj := Objective{
		Func: func(x []float64) float64 { return x[0] + x[1] },
		Grad: func(grad, x []float64) { grad[0], grad[1] = 1, 1 },
	}

	m := MultiStart{Restarts: 3, MaxIterations: 200, Rand: rand.New(rand.NewSource(3))}

	res, err := m.Maximize(obj, bounds, []float64{0, 0.5})
	require.NoError(t, err)

	for d, b := range bounds {
		assert.GreaterOrEqual(t, res.X[d], b.Lower)
		assert.LessOrEqual(t, res.X[d], b.Upper)
	}

	assert.Greater(t, res.X[0], 1.9)
	assert.Greater(t, res.X[1], 0.9)
}

func TestMaximizeClampsSeeds(t *testing.T) {
	m := MultiStart{MaxIterations: 1, Rand: rand.New(rand.NewSource(4))}

	flat := Objective{Func: func(x []float64) float64 { return 1 }}

	res, err := m.Maximize(flat, UnitBounds(2), []float64{-5, 5})
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1}, res.X)
}

func TestMaximizeKeepsFirstStartOnTies(t *testing.T) {
	m := MultiStart{Restarts: 4, MaxIterations: 10, Rand: rand.New(rand.NewSource(5))}

	flat := Objective{Func: func(x []float64) float64 { return 3 }}

	res, err := m.Maximize(flat, UnitBounds(3), []float64{0.2, 0.4, 0.6}, []float64{0.1, 0.1, 0.1})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Start)
	assert.Equal(t, 3.0, res.F)
	assert.Equal(t, []float64{0.2, 0.4, 0.6}, res.X)
}

func TestMaximizeSkipsNonFiniteStarts(t *testing.T) {
	// Finite only on the right half.
	obj := Objective{Func: func(x []float64) float64 {
		if x[0] < 0.5 {
			return math.NaN()
		}

		return -x[0]
	}}

	m := MultiStart{MaxEvaluations: 200, SimplexSize: 0.5, Rand: rand.New(rand.NewSource(6))}

	res, err := m.Maximize(obj, UnitBounds(1), []float64{0.1}, []float64{0.9})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.X[0], 0.5)
	assert.GreaterOrEqual(t, res.F, -0.9)
	assert.True(t, isFinite(res.F))
}

func TestMaximizeFailsWithoutFiniteValue(t *testing.T) {
	m := MultiStart{Restarts: 2, MaxEvaluations: 50, Rand: rand.New(rand.NewSource(7))}

	obj := Objective{Func: func(x []float64) float64 { return math.Inf(-1) }}

	_, err := m.Maximize(obj, UnitBounds(2), []float64{0.5, 0.5})
	assert.ErrorIs(t, err, ErrOptimizerFailed)

	_, err = MultiStart{}.Maximize(obj, UnitBounds(2))
	assert.ErrorIs(t, err, ErrOptimizerFailed)
}

func TestMaximizeSeedDimensionMismatch(t *testing.T) {
	m := MultiStart{Rand: rand.New(rand.NewSource(8))}

	_, err := m.Maximize(bowl, UnitBounds(2), []float64{0.5})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestUnboundedRoundTrip(t *testing.T) {
	bounds := []Bound{{Lower: -2, Upper: 3}, {Lower: 0, Upper: 1}}
	x := []float64{0.5, 0.25}

	got := make([]float64, 2)
	fromUnbounded(got, toUnbounded(x, bounds), bounds)

	assert.InDeltaSlice(t, x, got, 1e-12)
}

func TestMaximizeLeavesSeedOnFace(t *testing.T) {
	// Peak in the middle, single start on the lower face.
	obj := Objective{
		Func: func(x []float64) float64 { return -(x[0] - 0.5) * (x[0] - 0.5) },
		Grad: func(grad, x []float64) { grad[0] = -2 * (x[0] - 0.5) },
	}

	m := MultiStart{MaxIterations: 100, Rand: rand.New(rand.NewSource(9))}

	for _, seed := range []float64{0, 1} {
		res, err := m.Maximize(obj, UnitBounds(1), []float64{seed})
		require.NoError(t, err)

		assert.Equal(t, 0, res.Start)
		assert.InDelta(t, 0.5, res.X[0], 1e-3, "seed %v", seed)
	}
}

func TestToUnboundedKeepsStartsOffFaces(t *testing.T) {
	bounds := []Bound{{Lower: -2, Upper: 2}, {Lower: 0, Upper: 1}}

	got := make([]float64, 2)
	fromUnbounded(got, toUnbounded([]float64{-2, 1}, bounds), bounds)

	assert.InDelta(t, -2+4*startMargin, got[0], 1e-9)
	assert.InDelta(t, 1-startMargin, got[1], 1e-9)
}
