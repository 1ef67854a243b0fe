package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultTotalAmount is the notional both weight vectors are scaled to.
const DefaultTotalAmount = 1_000_000

// Params are the per-run analytics settings. A zero FrontierPoints or
// Solver field takes its default; TotalAmount must be positive.
type Params struct {
	RiskFreeRate   float64       `json:"risk_free_rate"`
	TotalAmount    float64       `json:"total_amount"`
	FrontierPoints int           `json:"frontier_points"`
	Solver         SolverOptions `json:"solver"`
}

// DefaultParams returns a zero risk-free rate, a 1,000,000 notional and a
// 100 point frontier.
func DefaultParams() Params {
	return Params{
		RiskFreeRate:   0,
		TotalAmount:    DefaultTotalAmount,
		FrontierPoints: DefaultFrontierPoints,
		Solver:         DefaultSolverOptions(),
	}
}

// AllocationResult is the complete output of one analytics run. Every vector
// is indexed like Assets; weight vectors are in currency units summing to
// the run's total amount.
type AllocationResult struct {
	Assets           []string            `json:"assets"`
	StartDate        time.Time           `json:"start_date"`
	EndDate          time.Time           `json:"end_date"`
	Periods          int                 `json:"periods"`
	MeanReturns      []float64           `json:"mean_returns"`
	Covariance       [][]float64         `json:"covariance"`
	AssetStats       []AssetStats        `json:"asset_stats"`
	Frontier         []FrontierPortfolio `json:"frontier"`
	MaxSharpe        Selection           `json:"max_sharpe"`
	MaxSharpeWeights []float64           `json:"max_sharpe_weights"`
	ERCWeights       []float64           `json:"erc_weights"`
	Params           Params              `json:"params"`
}

// StageObserver receives the outcome of each pipeline stage.
type StageObserver interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
}

// Pipeline stage names reported to a StageObserver.
const (
	StagePriceTable = "price_table"
	StageReturns    = "returns"
	StageMoments    = "moments"
	StageFrontier   = "frontier"
	StageMaxSharpe  = "max_sharpe"
	StageRiskParity = "risk_parity"
)

// Engine runs the analytics pipeline. A nil *Engine runs silently.
type Engine struct {
	log      zerolog.Logger
	observer StageObserver
}

// NewEngine returns an engine that logs stage timings at debug level and
// reports them to observer when it is non-nil.
func NewEngine(logger zerolog.Logger, observer StageObserver) *Engine {
	return &Engine{log: logger.With().Str("component", "portfolio").Logger(), observer: observer}
}

// Run turns per-asset price series into an AllocationResult. The max-Sharpe
// branch and the risk-parity branch share the covariance estimate and run
// concurrently. Any stage failure aborts the run; no partial result is
// returned. When both branches fail the frontier branch's error is reported.
func (e *Engine) Run(series []Series, p Params) (*AllocationResult, error) {
	if e == nil {
		e = &Engine{log: zerolog.Nop()}
	}
	if p.FrontierPoints == 0 {
		p.FrontierPoints = DefaultFrontierPoints
	}
	if !(p.TotalAmount > 0) || math.IsInf(p.TotalAmount, 0) {
		return nil, fmt.Errorf("%w: total amount must be positive, got %v", ErrDegenerateInput, p.TotalAmount)
	}
	p.Solver = p.Solver.withDefaults()

	var table *PriceTable
	if err := e.stage(StagePriceTable, func() (err error) {
		table, err = BuildPriceTable(series)
		return err
	}); err != nil {
		return nil, err
	}

	var returns *ReturnMatrix
	if err := e.stage(StageReturns, func() (err error) {
		returns, err = table.Returns()
		return err
	}); err != nil {
		return nil, err
	}

	var moments *Moments
	if err := e.stage(StageMoments, func() (err error) {
		moments, err = EstimateMoments(returns)
		return err
	}); err != nil {
		return nil, err
	}

	var (
		frontier []FrontierPortfolio
		best     *Selection
		erc      []float64

		sharpeErr, ercErr error
	)
	// Branch errors are kept apart so the reported one does not depend on
	// which goroutine finishes first.
	var eg errgroup.Group
	eg.Go(func() error {
		sharpeErr = e.stage(StageFrontier, func() (err error) {
			frontier, err = Frontier(moments, p.FrontierPoints, p.Solver)
			return err
		})
		if sharpeErr == nil {
			sharpeErr = e.stage(StageMaxSharpe, func() (err error) {
				best, err = MaxSharpe(frontier, p.RiskFreeRate, p.TotalAmount)
				return err
			})
		}
		return nil
	})
	eg.Go(func() error {
		ercErr = e.stage(StageRiskParity, func() (err error) {
			erc, err = RiskParity(moments.Covariance, p.Solver)
			return err
		})
		return nil
	})
	_ = eg.Wait()
	if sharpeErr != nil {
		return nil, sharpeErr
	}
	if ercErr != nil {
		return nil, ercErr
	}

	result := &AllocationResult{
		Assets:           moments.Assets,
		StartDate:        table.Dates[0],
		EndDate:          table.Dates[len(table.Dates)-1],
		Periods:          returns.Rows(),
		MeanReturns:      moments.Mean,
		Covariance:       moments.CovarianceRows(),
		AssetStats:       moments.Stats(),
		Frontier:         frontier,
		MaxSharpe:        *best,
		MaxSharpeWeights: best.Amounts,
		ERCWeights:       Scale(erc, p.TotalAmount),
		Params:           p,
	}
	e.log.Debug().
		Strs("assets", result.Assets).
		Int("frontier_points", len(frontier)).
		Float64("sharpe", best.Sharpe).
		Msg("allocation complete")
	return result, nil
}

func (e *Engine) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	if e.observer != nil {
		e.observer.ObserveStage(name, elapsed, err)
	}
	if err != nil {
		e.log.Debug().Err(err).Str("stage", name).Dur("elapsed", elapsed).Msg("stage failed")
		return fmt.Errorf("%s: %w", name, err)
	}
	e.log.Debug().Str("stage", name).Dur("elapsed", elapsed).Msg("stage done")
	return nil
}
