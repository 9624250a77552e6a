package sls

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

//////
// Helper functions.
//////

// tailCutoff is where logNormalCDF and inverseMills switch to the asymptotic
// expansion of the lower tail.
const tailCutoff = -20

// normalCDF is the cumulative distribution function of the standard normal
// distribution.
func normalCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// normalPDF is the probability density function of the standard normal
// distribution.
func normalPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}

// logNormalCDF returns log Phi(z) without underflow in the lower tail.
func logNormalCDF(z float64) float64 {
	if z < tailCutoff {
		z2 := z * z

		return -0.5*z2 - math.Log(-z) - 0.5*math.Log(2*math.Pi) + math.Log(1-1/z2+3/(z2*z2))
	}

	return math.Log(0.5 * math.Erfc(-z/math.Sqrt2))
}

// inverseMills returns phi(z) / Phi(z).
func inverseMills(z float64) float64 {
	if z < tailCutoff {
		z2 := z * z

		return -z / (1 - 1/z2 + 3/(z2*z2))
	}

	return math.Exp(distuv.UnitNormal.LogProb(z) - logNormalCDF(z))
}

// interpolate returns a*(1-t) + b*t.
func interpolate(a, b Point, t float64) Point {
	out := make(Point, len(a))
	for i := range a {
		out[i] = a[i]*(1-t) + b[i]*t
	}

	return out
}

// ProjectOntoSlider returns the slider value in [0, 1] whose point is
// closest to target on the segment from a to b. It stands in for a user who
// always prefers points near target, which is how sessions are exercised
// without a human.
func ProjectOntoSlider(a, b, target Point) float64 {
	ab := floats.SubTo(make([]float64, len(a)), b, a)
	at := floats.SubTo(make([]float64, len(a)), target, a)

	den := floats.Dot(ab, ab)
	if den == 0 {
		return 0
	}

	return math.Max(0, math.Min(1, floats.Dot(ab, at)/den))
}
