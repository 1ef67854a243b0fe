package portfolio

import "errors"

// Error kinds returned by the analytics pipeline. Callers match them with
// errors.Is; the wrapped message names the asset or row involved.
var (
	ErrEmptyInput                    = errors.New("empty input")
	ErrDuplicateAsset                = errors.New("duplicate asset")
	ErrDuplicateObservation          = errors.New("duplicate observation")
	ErrInvalidPrice                  = errors.New("invalid price")
	ErrInsufficientRows              = errors.New("insufficient rows")
	ErrInsufficientSamples           = errors.New("insufficient samples")
	ErrDivisionByZero                = errors.New("division by zero")
	ErrMissingObservation            = errors.New("missing observation")
	ErrDegenerateInput               = errors.New("degenerate input")
	ErrEmptyFrontier                 = errors.New("empty frontier")
	ErrZeroVolatility                = errors.New("zero volatility")
	ErrNonPositiveDefiniteCovariance = errors.New("covariance is not positive definite")
	ErrConvergenceFailure            = errors.New("convergence failure")

	// errInfeasibleTarget marks a frontier return level no long-only portfolio
	// can reach. It never leaves Frontier.
	errInfeasibleTarget = errors.New("infeasible target return")
)
