package sls

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Hyperparameters of the squared exponential kernel and of the preference
// likelihood.
type Hyperparameters struct {
	// SignalVariance is the prior variance of the latent utility.
	SignalVariance float64

	// Slip is the scale of the comparison noise. Larger values tolerate more
	// inconsistent answers.
	Slip float64

	// LengthScales holds one entry per dimension, or a single shared entry.
	LengthScales []float64
}

// lengthScale returns the length scale of dimension d.
func (h Hyperparameters) lengthScale(d int) float64 {
	if len(h.LengthScales) == 1 {
		return h.LengthScales[0]
	}

	return h.LengthScales[d]
}

func (h Hyperparameters) clone() Hyperparameters {
	c := h
	c.LengthScales = append([]float64(nil), h.LengthScales...)

	return c
}

// logVector packs h as [log a, log slip, log l_1, ..., log l_m].
func (h Hyperparameters) logVector() []float64 {
	v := make([]float64, 2+len(h.LengthScales))
	v[0] = math.Log(h.SignalVariance)
	v[1] = math.Log(h.Slip)

	for i, l := range h.LengthScales {
		v[2+i] = math.Log(l)
	}

	return v
}

// hyperparametersFromLog is the inverse of logVector.
func hyperparametersFromLog(v []float64) Hyperparameters {
	h := Hyperparameters{
		SignalVariance: math.Exp(v[0]),
		Slip:           math.Exp(v[1]),
		LengthScales:   make([]float64, len(v)-2),
	}

	for i := range h.LengthScales {
		h.LengthScales[i] = math.Exp(v[2+i])
	}

	return h
}

// Kernel is the automatic relevance determination squared exponential
// covariance
//
//	k(p, q) = a * exp(-1/2 * sum_d (p_d - q_d)^2 / l_d^2)
//
// It is positive definite over any finite set of distinct points.
type Kernel struct {
	Hyperparameters
}

// NewKernel returns a kernel over the given hyperparameters.
func NewKernel(h Hyperparameters) Kernel {
	return Kernel{Hyperparameters: h}
}

// Covariance returns the kernel value k(p, q).
//
// Parameters:
// - p, q: Points to compare (must have the same length)
//
// Returns:
// - float64: Covariance in (0, SignalVariance]
//
// Mathematical formula:
//
//	k(p, q) = a * exp(-1/2 * sum_d ((p_d - q_d) / l_d)^2)
//
// Important notes:
// - Panics if the points have different lengths
// - Symmetric, and equal to SignalVariance for identical points
// - A single length scale applies to every dimension
func (k Kernel) Covariance(p, q Point) float64 {
	if len(p) != len(q) {
		panic("input vectors must have the same length")
	}

	var sum float64

	for d := range p {
		diff := (p[d] - q[d]) / k.lengthScale(d)
		sum += diff * diff
	}

	return k.SignalVariance * math.Exp(-0.5*sum)
}

// Gradient writes the derivative of k(p, q) with respect to p into dst and
// returns k(p, q).
func (k Kernel) Gradient(dst []float64, p, q Point) float64 {
	c := k.Covariance(p, q)

	for d := range p {
		l := k.lengthScale(d)
		dst[d] = -c * (p[d] - q[d]) / (l * l)
	}

	return c
}

// Gram returns the covariance matrix of points.
//
// Parameters:
// - points: Points of equal length
//
// Returns:
// - *mat.SymDense: n x n matrix with entry (i, j) = k(points[i], points[j])
//
// Important notes:
// - Positive definite for distinct points, but numerically singular when
// points nearly coincide; factorize it with jitter
// - O(n^2 * D) time
func (k Kernel) Gram(points []Point) *mat.SymDense {
	n := len(points)
	g := mat.NewSymDense(n, nil)

	for i := 0; i < n; i++ {
		g.SetSym(i, i, k.SignalVariance)

		for j := i + 1; j < n; j++ {
			g.SetSym(i, j, k.Covariance(points[i], points[j]))
		}
	}

	return g
}

// CrossVector fills dst with k(x, points[i]).
func (k Kernel) CrossVector(dst []float64, x Point, points []Point) {
	for i, p := range points {
		dst[i] = k.Covariance(x, p)
	}
}
