package sls

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance used across the package.
var validate = validator.New()

// Config holds every tunable of a Session. Zero values are not meaningful;
// start from DefaultConfig or LoadConfig.
//
// Usage example:
//
//	cfg := DefaultConfig()
//	cfg.AcquisitionFunc = "ucb"
//	cfg.Beta = 3.0
//
//	session, err := New(5, WithConfig(cfg))
type Config struct {
	// Seed fixes every random draw of a session (initial slider, restarts,
	// candidate screening). Nil means a time based seed.
	Seed *int64 `env:"SLS_SEED"`

	// ARD gives every dimension its own kernel length scale. When off a
	// single length scale is shared, which makes hyperparameter fitting
	// cheaper.
	ARD bool `env:"SLS_ARD" envDefault:"true"`

	// HyperparameterRestarts is the number of random restarts of the
	// hyperparameter search, on top of the warm start.
	HyperparameterRestarts int `env:"SLS_HYPER_RESTARTS" envDefault:"2" validate:"gte=0,lte=64"`

	// HyperparameterEvaluations caps objective evaluations per restart.
	HyperparameterEvaluations int `env:"SLS_HYPER_EVALUATIONS" envDefault:"200" validate:"gte=10"`

	// NewtonIterations caps the latent mode search.
	NewtonIterations int `env:"SLS_NEWTON_ITERATIONS" envDefault:"100" validate:"gte=1"`

	// NewtonTolerance is the largest latent value change accepted as
	// converged.
	NewtonTolerance float64 `env:"SLS_NEWTON_TOLERANCE" envDefault:"1e-6" validate:"gt=0"`

	// AcquisitionFunc selects the acquisition criterion: "ei", "ucb" or "pi".
	AcquisitionFunc string `env:"SLS_ACQUISITION" envDefault:"ei" validate:"oneof=ei ucb pi"`

	// Beta is the UCB exploration weight.
	Beta float64 `env:"SLS_BETA" envDefault:"2.0" validate:"gte=0"`

	// Xi is the minimum improvement asked for by EI and PI.
	Xi float64 `env:"SLS_XI" envDefault:"0.0" validate:"gte=0"`

	// NumCandidates is the number of random points screened before the
	// gradient based acquisition search.
	NumCandidates int `env:"SLS_NUM_CANDIDATES" envDefault:"200" validate:"gte=1"`

	// AcquisitionRestarts is the number of screened candidates the local
	// acquisition search is started from.
	AcquisitionRestarts int `env:"SLS_ACQ_RESTARTS" envDefault:"5" validate:"gte=1,lte=256"`

	// AcquisitionIterations caps iterations per acquisition restart.
	AcquisitionIterations int `env:"SLS_ACQ_ITERATIONS" envDefault:"100" validate:"gte=1"`

	// SliderEnlargement stretches slider ends about their midpoint (clipped
	// to the unit box). 1 disables it.
	SliderEnlargement float64 `env:"SLS_SLIDER_ENLARGEMENT" envDefault:"1.0" validate:"gte=1"`

	// DedupTolerance is the distance under which two points are the same.
	DedupTolerance float64 `env:"SLS_DEDUP_TOLERANCE" envDefault:"1e-8" validate:"gt=0"`

	// JitterInitial and JitterCeiling bound the diagonal regularization,
	// relative to the signal variance.
	JitterInitial float64 `env:"SLS_JITTER_INITIAL" envDefault:"1e-10" validate:"gt=0"`
	JitterCeiling float64 `env:"SLS_JITTER_CEILING" envDefault:"1e-2" validate:"gtfield=JitterInitial"`

	// IllConditionedAlert is the number of consecutive ill-conditioned fits
	// after which failures are reported as prominent.
	IllConditionedAlert int `env:"SLS_ILL_CONDITIONED_ALERT" envDefault:"3" validate:"gte=1"`

	// LogLevel of the default logger.
	LogLevel LogLevel `env:"SLS_LOG_LEVEL" envDefault:"WARN" validate:"gte=0,lte=4"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ARD:                       true,
		HyperparameterRestarts:    2,
		HyperparameterEvaluations: 200,
		NewtonIterations:          100,
		NewtonTolerance:           1e-6,
		AcquisitionFunc:           "ei",
		Beta:                      2.0,
		Xi:                        0.0,
		NumCandidates:             200,
		AcquisitionRestarts:       5,
		AcquisitionIterations:     100,
		SliderEnlargement:         1.0,
		DedupTolerance:            1e-8,
		JitterInitial:             1e-10,
		JitterCeiling:             1e-2,
		IllConditionedAlert:       3,
		LogLevel:                  LogLevelWarn,
	}
}

// LoadConfig reads SLS_* environment variables on top of the defaults and
// validates the result.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}
