package sls

import (
	"errors"
	"fmt"
)

//////
// Errors.
//////

var (
	// ErrInvalidDimension is returned when a session or dataset is created
	// with a dimension lower than one.
	ErrInvalidDimension = errors.New("dimension must be a positive integer")

	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch is returned when a point's length differs from the
	// dimension of the session (or dataset) it is handed to.
	ErrDimensionMismatch = errors.New("point dimension mismatch")

	// ErrOutOfRangeInput is returned when a slider value falls outside [0, 1].
	ErrOutOfRangeInput = errors.New("slider value out of range [0, 1]")

	// ErrRegressionDidNotConverge is returned when the latent mode search
	// does not settle within its iteration budget.
	ErrRegressionDidNotConverge = errors.New("regression did not converge")

	// ErrIllConditionedCovariance is returned when a Gram matrix cannot be
	// factorized even at the jitter ceiling.
	ErrIllConditionedCovariance = errors.New("covariance matrix is ill-conditioned")

	// ErrUndefinedBestPoint is returned by CurrentBest before the first round.
	ErrUndefinedBestPoint = errors.New("best point is undefined before the first round")

	// ErrEmptyDataset is returned when fitting a regressor without data.
	ErrEmptyDataset = errors.New("dataset is empty")

	// ErrOptimizerFailed is returned when no start of a continuous
	// optimization produced a finite objective value.
	ErrOptimizerFailed = errors.New("optimizer found no finite optimum")
)

// FitWarning is a recovered, non-fatal failure of a round. The session state
// was still updated; the regressor and/or slider fell back to older or random
// values.
type FitWarning struct {
	// Round in which the failure happened (1-based).
	Round int

	// Err is the underlying cause.
	Err error

	// Consecutive counts rounds in a row that ended with a failed fit.
	Consecutive int

	// Prominent is set when ill-conditioning keeps repeating across rounds,
	// which usually means the kernel configuration is degenerate.
	Prominent bool
}

// Error implements the error interface.
func (w *FitWarning) Error() string {
	return fmt.Sprintf("round %d: %v (consecutive failures: %d)", w.Round, w.Err, w.Consecutive)
}

// Unwrap returns the underlying cause.
func (w *FitWarning) Unwrap() error {
	return w.Err
}
