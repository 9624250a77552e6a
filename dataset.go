package sls

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Dataset accumulates the distinct points seen so far and the preferences
// recorded between them. Points are merged when they lie within the
// tolerance of an already registered point, so an index always names one
// location. Nothing is ever removed.
type Dataset struct {
	dim         int
	tolerance   float64
	points      []Point
	constraints []Preference
}

// NewDataset returns an empty dataset for points of the given dimension.
func NewDataset(dim int, tolerance float64) (*Dataset, error) {
	if dim < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}

	return &Dataset{dim: dim, tolerance: tolerance}, nil
}

// AddConstraint records that preferred beats every point in others and
// registers the points that are new.
//
// Parameters:
// - preferred: The winning point
// - others: The points it beats
//
// Returns:
// - Preference: The recorded preference, as indices into Points
// - error: Wraps ErrDimensionMismatch when any point has the wrong length
//
// Important notes:
// - Nothing is changed when an error is returned
// - Points within the tolerance of a registered point reuse its index
// - A point of others that merges into preferred is dropped from the
// preference rather than recorded as a self comparison; the preference
// itself is always appended
// - Points are copied; callers may reuse their slices
func (d *Dataset) AddConstraint(preferred Point, others ...Point) (Preference, error) {
	if len(preferred) != d.dim {
		return Preference{}, fmt.Errorf("%w: preferred point has %d coordinates, want %d", ErrDimensionMismatch, len(preferred), d.dim)
	}

	for i, o := range others {
		if len(o) != d.dim {
			return Preference{}, fmt.Errorf("%w: point %d has %d coordinates, want %d", ErrDimensionMismatch, i, len(o), d.dim)
		}
	}

	pref := Preference{Winner: d.register(preferred)}

	for _, o := range others {
		idx := d.register(o)
		if idx == pref.Winner || containsIndex(pref.Losers, idx) {
			continue
		}

		pref.Losers = append(pref.Losers, idx)
	}

	d.constraints = append(d.constraints, pref)

	return clonePreference(pref), nil
}

// register returns the index of p, appending it when no registered point is
// within tolerance.
func (d *Dataset) register(p Point) int {
	if idx := d.indexOf(p); idx >= 0 {
		return idx
	}

	d.points = append(d.points, p.Clone())

	return len(d.points) - 1
}

// indexOf returns the first registered point within tolerance of p, or -1.
func (d *Dataset) indexOf(p Point) int {
	for i, q := range d.points {
		if floats.Distance(p, q, 2) <= d.tolerance {
			return i
		}
	}

	return -1
}

// Dim is the dimension of every point.
func (d *Dataset) Dim() int { return d.dim }

// Len is the number of distinct points.
func (d *Dataset) Len() int { return len(d.points) }

// NumConstraints is the number of recorded preferences.
func (d *Dataset) NumConstraints() int { return len(d.constraints) }

// Point returns a copy of the i-th point.
func (d *Dataset) Point(i int) Point { return d.points[i].Clone() }

// Points returns copies of all points in insertion order.
func (d *Dataset) Points() []Point {
	out := make([]Point, len(d.points))
	for i, p := range d.points {
		out[i] = p.Clone()
	}

	return out
}

// Constraints returns copies of all preferences in insertion order.
func (d *Dataset) Constraints() []Preference {
	out := make([]Preference, len(d.constraints))
	for i, c := range d.constraints {
		out[i] = clonePreference(c)
	}

	return out
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	return &Dataset{
		dim:         d.dim,
		tolerance:   d.tolerance,
		points:      d.Points(),
		constraints: d.Constraints(),
	}
}

func clonePreference(p Preference) Preference {
	losers := make([]int, len(p.Losers))
	copy(losers, p.Losers)

	return Preference{Winner: p.Winner, Losers: losers}
}

func containsIndex(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}

	return false
}
