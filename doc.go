// Package sls implements sequential line search, a human-in-the-loop
// Bayesian optimization method. It finds the point of a continuous
// parameter space a person likes most without asking them for scores: every
// round the person only picks their favourite position on a slider.
//
// # Features
//
// The package includes the following key features:
//
//   - Preference Gaussian Process: a latent utility is fitted to the slider
//     picks with a probit pairwise likelihood and a Laplace approximation
//   - Hyperparameter Estimation: kernel and likelihood hyperparameters are
//     re-estimated every round by maximizing the approximate evidence
//   - Acquisition Search: Expected Improvement (default), Upper Confidence
//     Bound or Probability of Improvement, maximized with multi-start L-BFGS
//   - Robust Rounds: a failed refit keeps the previous model and is reported
//     as a warning instead of aborting the session
//   - Progress Monitoring: optional non-blocking updates via channels
//   - Flexible Configuration: defaults, environment variables (SLS_*) and
//     functional options
//
// # How it works
//
// A session starts with a slider between two random points of [0, 1]^D.
//
//  1. QueryParameters(v) maps a slider value v in [0, 1] to a point, so a
//     host can render candidates along the slider
//  2. ReportSliderPosition(v) records the point at v as preferred over both
//     points the slider was built from
//  3. The regressor is refitted from scratch on all preferences
//  4. The next slider joins the best known point (exploitation) and the
//     point maximizing the acquisition function (exploration)
//
// CurrentBest returns the best known point at any time after the first
// round.
//
// # Usage
//
//	session, err := sls.New(5, sls.WithSeed(1))
//	if err != nil {
//	    return err
//	}
//
//	for i := 0; i < 20; i++ {
//	    a, _ := session.QueryParameters(0)
//	    b, _ := session.QueryParameters(1)
//
//	    update, err := session.ReportSliderPosition(pick(a, b))
//	    if err != nil {
//	        return err
//	    }
//
//	    if update.Warning != nil {
//	        log.Println(update.Warning)
//	    }
//	}
//
//	best, _ := session.CurrentBest()
//
// Points live in the unit cube; Scale maps them onto the ranges a host
// actually applies:
//
//	params, err := sls.Scale(best, sls.ParameterRange[int]{Min: 1, Max: 32})
//
// # Configuration
//
// DefaultConfig returns sensible defaults. LoadConfig reads overrides from
// the environment:
//
//	SLS_SEED                 fixed random seed
//	SLS_ARD                  per-dimension length scales (default true)
//	SLS_ACQUISITION          ei | ucb | pi
//	SLS_HYPER_RESTARTS       random restarts of the hyperparameter search
//	SLS_ACQ_RESTARTS         local searches of the acquisition function
//	SLS_SLIDER_ENLARGEMENT   stretch factor of slider ends (>= 1)
//	SLS_LOG_LEVEL            OFF | ERROR | WARN | INFO | DEBUG
//
// # Errors
//
// Invalid input (ErrOutOfRangeInput, ErrDimensionMismatch) is rejected and
// leaves a session untouched. Numerical failures of a round
// (ErrRegressionDidNotConverge, ErrIllConditionedCovariance) are recovered
// and surfaced as *FitWarning values in ProgressUpdate.Warning.
//
// # Concurrency
//
// A Session is single-writer: every call runs to completion on the calling
// goroutine and there is no internal locking. Run ReportSliderPosition off a
// UI thread when latency matters; its cost grows with the number of rounds.
package sls
