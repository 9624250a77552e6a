package sls

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// preferenceLikelihood is the Thurstone-style probit likelihood of a set of
// preferences. Every (winner, loser) pair contributes log Phi(z) with
//
//	z = (f_winner - f_loser) / (sqrt(2) * slip)
type preferenceLikelihood struct {
	pairs [][2]int
	scale float64
}

func newPreferenceLikelihood(prefs []Preference, slip float64) preferenceLikelihood {
	l := preferenceLikelihood{scale: 1 / (math.Sqrt2 * slip)}

	for _, p := range prefs {
		for _, loser := range p.Losers {
			l.pairs = append(l.pairs, [2]int{p.Winner, loser})
		}
	}

	return l
}

func (l preferenceLikelihood) z(f []float64, pair [2]int) float64 {
	return l.scale * (f[pair[0]] - f[pair[1]])
}

func (l preferenceLikelihood) logLikelihood(f []float64) float64 {
	var sum float64
	for _, pair := range l.pairs {
		sum += logNormalCDF(l.z(f, pair))
	}

	return sum
}

// gradient writes d log p(y|f) / df into dst.
func (l preferenceLikelihood) gradient(dst, f []float64) {
	for i := range dst {
		dst[i] = 0
	}

	for _, pair := range l.pairs {
		g := inverseMills(l.z(f, pair)) * l.scale
		dst[pair[0]] += g
		dst[pair[1]] -= g
	}
}

// hessianFactor returns R with W = R^T R, where W is the negative Hessian of
// the log likelihood at f. Row p holds sqrt(c_p) at the winner and
// -sqrt(c_p) at the loser, c_p = r(z)(z + r(z)) scale^2 >= 0. It returns nil
// when there is no pair.
func (l preferenceLikelihood) hessianFactor(f []float64, n int) *mat.Dense {
	if len(l.pairs) == 0 {
		return nil
	}

	r := mat.NewDense(len(l.pairs), n, nil)

	for p, pair := range l.pairs {
		z := l.z(f, pair)
		m := inverseMills(z)
		c := math.Max(0, m*(z+m)) * l.scale * l.scale
		s := math.Sqrt(c)

		r.Set(p, pair[0], s)
		r.Set(p, pair[1], -s)
	}

	return r
}
