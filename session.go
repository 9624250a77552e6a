package sls

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
)

//////
// Exported functionalities.
//////

// Option configures a Session. Options apply in order.
type Option func(*Session)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(s *Session) {
		s.cfg = cfg
	}
}

// WithSeed fixes the random seed, overriding Config.Seed.
func WithSeed(seed int64) Option {
	return func(s *Session) {
		s.cfg.Seed = &seed
	}
}

// WithLogger replaces the default stderr logger.
func WithLogger(logger Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithProgress sets a channel that receives a ProgressUpdate after every
// round. Sends never block; updates are dropped when the channel is full.
func WithProgress(ch chan<- ProgressUpdate) Option {
	return func(s *Session) {
		s.progress = ch
	}
}

// Session runs sequential line search: every round the user picks the best
// point on a slider, the pick is recorded as a preference, the regressor is
// refitted and the next slider is built from the best known point and the
// point maximizing the acquisition function.
//
// A Session is not safe for concurrent use; callers that share one across
// goroutines must serialize access.
//
// Usage example:
//
//	session, err := New(3, WithSeed(42))
//	if err != nil {
//	    return err
//	}
//
//	for round := 0; round < 20; round++ {
//	    a, _ := session.QueryParameters(0)
//	    b, _ := session.QueryParameters(1)
//
//	    v := askUser(a, b) // slider position in [0, 1]
//
//	    update, err := session.ReportSliderPosition(v)
//	    if err != nil {
//	        return err
//	    }
//
//	    if update.Warning != nil {
//	        log.Println("round recovered:", update.Warning)
//	    }
//	}
//
//	best, _ := session.CurrentBest()
type Session struct {
	id       string
	dim      int
	cfg      Config
	bounds   []Bound
	acq      AcquisitionFunc
	rng      *rand.Rand
	logger   Logger
	progress chan<- ProgressUpdate

	data      *Dataset
	regressor *Regressor
	slider    Slider

	best      Point
	bestValue float64
	round     int

	// consecutive failed fits, and consecutive ill-conditioned ones
	fitFailures    int
	illConditioned int
}

// New returns a session over [0, 1]^dimension whose first slider joins two
// random points.
//
// Parameters:
// - dimension: Number of parameters to optimize (>= 1)
// - opts: Options applied in order over DefaultConfig
//
// Returns:
// - *Session: A session in StateEmpty
// - error: Wraps ErrInvalidDimension or ErrInvalidConfig
//
// Usage example:
//
//	progress := make(chan ProgressUpdate, 10)
//
//	session, err := New(4,
//	    WithSeed(7),
//	    WithProgress(progress),
//	)
//
// Important notes:
// - Without a seed (WithSeed or Config.Seed) the session seeds itself from
// the clock and is not reproducible
func New(dimension int, opts ...Option) (*Session, error) {
	if dimension < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dimension)
	}

	s := &Session{
		id:     uuid.New().String(),
		dim:    dimension,
		cfg:    DefaultConfig(),
		bounds: UnitBounds(dimension),
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	acq, err := AcquisitionFuncByName(s.cfg.AcquisitionFunc)
	if err != nil {
		return nil, err
	}

	s.acq = acq

	seed := time.Now().UnixNano()
	if s.cfg.Seed != nil {
		seed = *s.cfg.Seed
	}

	s.rng = rand.New(rand.NewSource(seed))

	if s.logger == nil {
		s.logger = NewLogger(s.cfg.LogLevel)
	}

	s.data, err = NewDataset(dimension, s.cfg.DedupTolerance)
	if err != nil {
		return nil, err
	}

	s.slider = NewSlider(s.randomPoint(), s.randomPoint(), s.cfg.SliderEnlargement, s.bounds)

	s.logger.Debug("session created", "session", s.id, "dimension", dimension, "seed", seed)

	return s, nil
}

// QueryParameters returns the point at slider value v of the current
// slider, End0*(1-v) + End1*v. It does not change the session.
func (s *Session) QueryParameters(v float64) (Point, error) {
	if !inUnitInterval(v) {
		return nil, fmt.Errorf("%w: %v", ErrOutOfRangeInput, v)
	}

	return s.slider.At(v), nil
}

// ReportSliderPosition completes a round with the user's chosen slider
// value v.
//
// How it works:
// 1. The point at v is recorded as preferred over both slider points
// 2. The regressor is refitted from scratch on the whole dataset
// 3. The best known point is updated from the regressor
// 4. The next slider joins the best known point and the acquisition optimum
//
// Parameters:
// - v: Slider position in [0, 1] the user liked best
//
// Returns:
// - ProgressUpdate: Outcome of the round, also sent to the progress channel
// - error: Wraps ErrOutOfRangeInput for v outside [0, 1]
//
// Important notes:
// - Invalid input returns an error and leaves the session untouched
// - A failed refit or acquisition search does not: the session keeps the
// previous regressor (or falls back to random exploration), completes the
// round and reports the failure in the returned update's Warning
// - Cost grows with the number of rounds, dominated by refitting
//
// Thread safety:
// - Not safe for concurrent use with any other Session method.
func (s *Session) ReportSliderPosition(v float64) (ProgressUpdate, error) {
	if !inUnitInterval(v) {
		return ProgressUpdate{}, fmt.Errorf("%w: %v", ErrOutOfRangeInput, v)
	}

	chosen := s.slider.At(v)
	if _, err := s.data.AddConstraint(chosen, s.slider.Orig0, s.slider.Orig1); err != nil {
		return ProgressUpdate{}, err
	}

	s.round++

	var warnings []error

	startTime := time.Now()

	if err := s.refit(); err != nil {
		warnings = append(warnings, s.recordFitFailure(err))
	}

	if s.regressor != nil {
		s.best, s.bestValue = s.regressor.BestTrainingPoint()
	} else {
		// Nothing was ever fitted; the latest pick is the only evidence.
		s.best, s.bestValue = chosen.Clone(), 0
	}

	explore, err := s.explorePoint()
	if err != nil {
		s.logger.Warn("acquisition search failed, exploring at random", "session", s.id, "round", s.round, "error", err)
		warnings = append(warnings, &FitWarning{Round: s.round, Err: err, Consecutive: s.fitFailures})
	}

	if floats.Distance(explore, s.best, 2) <= s.cfg.DedupTolerance {
		explore = s.randomPoint()
	}

	s.slider = NewSlider(s.best, explore, s.cfg.SliderEnlargement, s.bounds)

	update := ProgressUpdate{
		SessionID:      s.id,
		Round:          s.round,
		SliderValue:    v,
		Chosen:         chosen,
		BestPoint:      s.best.Clone(),
		BestValue:      s.bestValue,
		NextSlider:     s.slider.clone(),
		NumPoints:      s.data.Len(),
		NumConstraints: s.data.NumConstraints(),
		Warning:        errors.Join(warnings...),
	}

	s.logger.Info("round completed",
		"session", s.id,
		"round", s.round,
		"slider", v,
		"points", update.NumPoints,
		"best_value", s.bestValue,
		"elapsed", time.Since(startTime),
	)

	s.sendProgress(update)

	return update, nil
}

// CurrentBest returns the best known point. It fails with
// ErrUndefinedBestPoint before the first round.
func (s *Session) CurrentBest() (Point, error) {
	if s.round == 0 {
		return nil, ErrUndefinedBestPoint
	}

	return s.best.Clone(), nil
}

// CurrentBestValue returns the latent value of the best known point.
func (s *Session) CurrentBestValue() (float64, error) {
	if s.round == 0 {
		return 0, ErrUndefinedBestPoint
	}

	return s.bestValue, nil
}

// Slider returns a copy of the current slider.
func (s *Session) Slider() Slider { return s.slider.clone() }

// State reports whether any round has completed.
func (s *Session) State() State {
	if s.round == 0 {
		return StateEmpty
	}

	return StateActive
}

// Round is the number of completed rounds.
func (s *Session) Round() int { return s.round }

// ID identifies the session in logs and progress updates.
func (s *Session) ID() string { return s.id }

// Dimension is the dimension of the parameter space.
func (s *Session) Dimension() int { return s.dim }

// Data returns a snapshot of the dataset.
func (s *Session) Data() *Dataset { return s.data.Clone() }

// Regressor returns the latest successfully fitted regressor, or nil. A
// Regressor is immutable, so the returned value stays valid after later
// rounds.
func (s *Session) Regressor() *Regressor { return s.regressor }

//////
// Internals.
//////

// refit replaces the regressor with a fit on the current dataset, warm
// started from the previous hyperparameters. On error the previous
// regressor is kept.
func (s *Session) refit() error {
	var warm *Hyperparameters
	if s.regressor != nil {
		h := s.regressor.hyperparameters()
		warm = &h
	}

	startTime := time.Now()

	reg, err := FitRegressor(s.data, s.cfg, warm, s.rng)
	if err != nil {
		return err
	}

	s.regressor = reg
	s.fitFailures = 0
	s.illConditioned = 0

	h := reg.hyperparameters()
	s.logger.Debug("regressor fitted",
		"session", s.id,
		"round", s.round,
		"points", s.data.Len(),
		"log_evidence", reg.LogEvidence(),
		"signal_variance", h.SignalVariance,
		"slip", h.Slip,
		"length_scales", h.LengthScales,
		"jitter", reg.Jitter(),
		"elapsed", time.Since(startTime),
	)

	return nil
}

// recordFitFailure updates the failure counters and logs err.
func (s *Session) recordFitFailure(err error) *FitWarning {
	s.fitFailures++

	if errors.Is(err, ErrIllConditionedCovariance) {
		s.illConditioned++
	} else {
		s.illConditioned = 0
	}

	w := &FitWarning{
		Round:       s.round,
		Err:         err,
		Consecutive: s.fitFailures,
		Prominent:   s.illConditioned >= s.cfg.IllConditionedAlert,
	}

	if w.Prominent {
		s.logger.Error("covariance keeps failing to factorize, kernel configuration looks degenerate",
			"session", s.id, "round", s.round, "consecutive", s.illConditioned, "error", err)
	} else {
		s.logger.Warn("regression failed, keeping previous state",
			"session", s.id, "round", s.round, "consecutive", s.fitFailures, "error", err)
	}

	return w
}

// explorePoint returns the acquisition optimum, or a random point when
// there is no regressor or the search fails.
func (s *Session) explorePoint() (Point, error) {
	if s.regressor == nil {
		return s.randomPoint(), nil
	}

	params := AcquisitionParams{Beta: s.cfg.Beta, Xi: s.cfg.Xi}
	optimizer := MultiStart{
		Restarts:      s.cfg.AcquisitionRestarts,
		MaxIterations: s.cfg.AcquisitionIterations,
		Rand:          s.rng,
	}

	x, _, err := NextPoint(s.regressor, s.acq, params, s.bounds, s.cfg.NumCandidates, optimizer)
	if err != nil {
		return s.randomPoint(), err
	}

	return x, nil
}

// sendProgress delivers update without blocking.
func (s *Session) sendProgress(update ProgressUpdate) {
	if s.progress == nil {
		return
	}

	select {
	case s.progress <- update:
	default:
		// Skip update if channel is full.
	}
}

func (s *Session) randomPoint() Point {
	return Point(randomInBounds(s.rng, s.bounds))
}

func inUnitInterval(v float64) bool {
	return v >= 0 && v <= 1
}
