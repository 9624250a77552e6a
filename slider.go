package sls

import "math"

// Slider is the one dimensional search space shown to the user in a round.
//
// End0 and End1 are the ends the slider value interpolates between. Orig0
// and Orig1 are the points the slider was built from; they differ from the
// ends only when the slider is enlarged, and they are what preferences are
// recorded against.
type Slider struct {
	End0, End1   Point
	Orig0, Orig1 Point
}

// NewSlider returns a slider through orig0 and orig1. With enlargement > 1
// each end is pushed away from the midpoint by up to that factor, stopping
// at the bounds.
func NewSlider(orig0, orig1 Point, enlargement float64, bounds []Bound) Slider {
	s := Slider{
		End0:  orig0.Clone(),
		End1:  orig1.Clone(),
		Orig0: orig0.Clone(),
		Orig1: orig1.Clone(),
	}

	if enlargement <= 1 {
		return s
	}

	dim := len(orig0)
	mid := make(Point, dim)
	half := make(Point, dim)

	for d := 0; d < dim; d++ {
		mid[d] = (orig0[d] + orig1[d]) / 2
		half[d] = (orig1[d] - orig0[d]) / 2
	}

	t0, t1 := enlargement, enlargement

	for d, b := range bounds {
		switch {
		case half[d] > 0:
			t1 = math.Min(t1, (b.Upper-mid[d])/half[d])
			t0 = math.Min(t0, (mid[d]-b.Lower)/half[d])
		case half[d] < 0:
			t1 = math.Min(t1, (b.Lower-mid[d])/half[d])
			t0 = math.Min(t0, (mid[d]-b.Upper)/half[d])
		}
	}

	t0, t1 = math.Max(1, t0), math.Max(1, t1)

	for d := 0; d < dim; d++ {
		s.End0[d] = mid[d] - t0*half[d]
		s.End1[d] = mid[d] + t1*half[d]
	}

	s.End0 = clampToBounds(s.End0, bounds)
	s.End1 = clampToBounds(s.End1, bounds)

	return s
}

// At returns End0*(1-v) + End1*v.
func (s Slider) At(v float64) Point {
	return interpolate(s.End0, s.End1, v)
}

func (s Slider) clone() Slider {
	return Slider{
		End0:  s.End0.Clone(),
		End1:  s.End1.Clone(),
		Orig0: s.Orig0.Clone(),
		Orig1: s.Orig1.Clone(),
	}
}
