package sls

import "fmt"

// Point is one location of the parameter space. Every coordinate of a point
// proposed by a session lies in [0, 1].
type Point []float64

// Clone returns a copy of p.
func (p Point) Clone() Point {
	if p == nil {
		return nil
	}

	c := make(Point, len(p))
	copy(c, p)

	return c
}

// Preference records one slider round: the point at Winner (an index into
// the dataset points) was preferred over every point in Losers.
type Preference struct {
	Winner int
	Losers []int
}

// State is the lifecycle stage of a Session.
type State int

const (
	// StateEmpty is a session that has not received any feedback yet.
	StateEmpty State = iota

	// StateActive is a session with one or more completed rounds.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ProgressUpdate describes the outcome of one ReportSliderPosition call.
// It is returned to the caller and, when a progress channel is configured,
// also sent on it without blocking.
type ProgressUpdate struct {
	// SessionID identifies the session that produced the update.
	SessionID string

	// Round is the 1-based number of the completed round.
	Round int

	// SliderValue is the reported slider position.
	SliderValue float64

	// Chosen is the point the reported position maps to.
	Chosen Point

	// BestPoint and BestValue are the best known point and its latent value
	// after the round.
	BestPoint Point
	BestValue float64

	// NextSlider holds the ends of the slider for the next round.
	NextSlider Slider

	// NumPoints and NumConstraints describe the dataset after the round.
	NumPoints      int
	NumConstraints int

	// Warning is non-nil when the round recovered from a failure. It wraps
	// one or more *FitWarning values.
	Warning error
}
