package sls

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// ParameterRange is the host-side range one coordinate of the unit cube
// stands for. Sessions always search [0, 1]^D; Scale maps their points onto
// the ranges a host actually applies.
//
// Type Parameter:
//   - T: The numeric type of the parameter (any integer or float)
//
// Usage:
//
//	ranges := []ParameterRange[float64]{
//	    {Min: 0.0001, Max: 0.1}, // Learning rate
//	    {Min: 0.0, Max: 1.0},    // Momentum
//	}
//
//	best, _ := session.CurrentBest()
//	params, err := Scale(best, ranges...)
//
// Validation:
// - Min must be less than or equal to Max
// - The range is inclusive of both Min and Max values
type ParameterRange[T constraints.Integer | constraints.Float] struct {
	// Min defines the value coordinate 0 maps to (inclusive).
	Min T

	// Max defines the value coordinate 1 maps to (inclusive).
	Max T
}

// Scale maps a unit-cube point onto ranges, one range per coordinate.
// Coordinates are clamped to [0, 1] first; integer results are rounded to
// the nearest value in range.
func Scale[T constraints.Integer | constraints.Float](p Point, ranges ...ParameterRange[T]) ([]T, error) {
	if len(p) != len(ranges) {
		return nil, fmt.Errorf("%w: point has %d coordinates, got %d ranges", ErrDimensionMismatch, len(p), len(ranges))
	}

	out := make([]T, len(p))

	for i, r := range ranges {
		if r.Min > r.Max {
			return nil, fmt.Errorf("range %d: min %v is greater than max %v", i, r.Min, r.Max)
		}

		u := math.Max(0, math.Min(1, p[i]))
		v := float64(r.Min) + u*(float64(r.Max)-float64(r.Min))

		switch any(r.Min).(type) {
		case float32, float64:
			out[i] = T(v)
		default:
			out[i] = T(math.Max(float64(r.Min), math.Min(float64(r.Max), math.Round(v))))
		}
	}

	return out, nil
}
