package sls

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testKernel() Kernel {
	return NewKernel(Hyperparameters{SignalVariance: 0.7, Slip: 0.1, LengthScales: []float64{0.3, 0.8}})
}

func TestKernelCovariance(t *testing.T) {
	k := testKernel()
	p := Point{0.2, 0.4}
	q := Point{0.5, 0.1}

	assert.InDelta(t, 0.7, k.Covariance(p, p), 1e-15)
	assert.InDelta(t, k.Covariance(p, q), k.Covariance(q, p), 1e-15)

	want := 0.7 * math.Exp(-0.5*(0.3*0.3/(0.3*0.3)+0.3*0.3/(0.8*0.8)))
	assert.InDelta(t, want, k.Covariance(p, q), 1e-12)

	near := k.Covariance(p, Point{0.25, 0.4})
	far := k.Covariance(p, Point{0.9, 0.4})
	assert.Greater(t, near, far)
}

func TestKernelSharedLengthScale(t *testing.T) {
	k := NewKernel(Hyperparameters{SignalVariance: 1, Slip: 0.1, LengthScales: []float64{0.5}})

	// One length scale applies to every dimension.
	assert.InDelta(t, math.Exp(-0.5*(0.04+0.16)/0.25), k.Covariance(Point{0, 0, 0}, Point{0.2, 0.4, 0}), 1e-12)
}

func TestKernelCovariancePanicsOnMismatch(t *testing.T) {
	k := testKernel()

	assert.PanicsWithValue(t, "input vectors must have the same length", func() {
		k.Covariance(Point{0.1}, Point{0.1, 0.2})
	})
}

func TestKernelGradient(t *testing.T) {
	k := testKernel()
	p := Point{0.3, 0.6}
	q := Point{0.55, 0.2}

	grad := make([]float64, 2)
	c := k.Gradient(grad, p, q)
	assert.InDelta(t, k.Covariance(p, q), c, 1e-15)

	const h = 1e-6
	for d := range p {
		up, down := p.Clone(), p.Clone()
		up[d] += h
		down[d] -= h

		fd := (k.Covariance(up, q) - k.Covariance(down, q)) / (2 * h)
		assert.InDelta(t, fd, grad[d], 1e-7)
	}
}

func TestKernelGramIsPositiveDefinite(t *testing.T) {
	k := testKernel()
	points := []Point{{0.1, 0.1}, {0.4, 0.9}, {0.8, 0.3}, {0.5, 0.5}}

	g := k.Gram(points)
	require.Equal(t, 4, g.SymmetricDim())

	for i := range points {
		for j := range points {
			assert.InDelta(t, k.Covariance(points[i], points[j]), g.At(i, j), 1e-15)
		}
	}

	var chol mat.Cholesky
	assert.True(t, chol.Factorize(g))

	cross := make([]float64, len(points))
	k.CrossVector(cross, points[2], points)

	for i := range points {
		assert.InDelta(t, g.At(2, i), cross[i], 1e-15)
	}
}

func TestHyperparametersLogVector(t *testing.T) {
	h := Hyperparameters{SignalVariance: 0.7, Slip: 0.05, LengthScales: []float64{0.3, 2}}

	v := h.logVector()
	require.Len(t, v, 4)
	assert.InDelta(t, math.Log(0.05), v[1], 1e-15)

	back := hyperparametersFromLog(v)
	assert.InDelta(t, h.SignalVariance, back.SignalVariance, 1e-12)
	assert.InDelta(t, h.Slip, back.Slip, 1e-12)
	assert.InDeltaSlice(t, h.LengthScales, back.LengthScales, 1e-12)
}
