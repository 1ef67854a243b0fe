package portfolio

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// DefaultFrontierPoints is the number of target returns swept by default.
const DefaultFrontierPoints = 100

// FrontierPortfolio is one long-only, fully invested minimum-variance
// portfolio on the discretized frontier.
type FrontierPortfolio struct {
	Weights        []float64 `json:"weights"`
	TargetReturn   float64   `json:"target_return"`
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
}

// Frontier sweeps k evenly spaced target returns from the global minimum
// variance portfolio's return up to the highest asset mean and solves the
// minimum-variance portfolio for each. Unreachable targets are omitted; the
// result is ordered by ascending target return. When the return range is
// empty a single portfolio is returned.
func Frontier(m *Moments, k int, opts SolverOptions) ([]FrontierPortfolio, error) {
	n := len(m.Assets)
	if n == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrEmptyInput)
	}
	if k < 2 {
		return nil, fmt.Errorf("%w: frontier needs at least 2 points, got %d", ErrDegenerateInput, k)
	}
	for j, mu := range m.Mean {
		if math.IsNaN(mu) || math.IsInf(mu, 0) {
			return nil, fmt.Errorf("%w: mean return of %s is %v", ErrDegenerateInput, m.Assets[j], mu)
		}
	}
	opts = opts.withDefaults()

	g, _, err := regularize(m.Covariance, opts.Ridge)
	if err != nil {
		return nil, err
	}

	gmv, err := minVariance(g, opts)
	if err != nil {
		return nil, err
	}

	lo := dot(gmv, m.Mean)
	hi := m.Mean[argmax(m.Mean)]
	if hi-lo <= opts.Tolerance*(1+math.Abs(hi)) {
		return []FrontierPortfolio{m.point(gmv, lo)}, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	points := make([]*FrontierPortfolio, k)
	var eg errgroup.Group
	eg.SetLimit(workers)
	for i := 0; i < k; i++ {
		target := lo + (hi-lo)*float64(i)/float64(k-1)
		eg.Go(func() error {
			var w []float64
			if i == 0 {
				w = gmv
			} else {
				var err error
				w, err = minVarForReturn(m.Mean, g, target, opts)
				if errors.Is(err, errInfeasibleTarget) {
					return nil
				}
				if err != nil {
					return fmt.Errorf("frontier point %d (target %.6g): %w", i, target, err)
				}
			}
			p := m.point(w, target)
			points[i] = &p
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]FrontierPortfolio, 0, k)
	for _, p := range points {
		if p != nil {
			out = append(out, *p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no target return in [%.6g, %.6g] is feasible", ErrEmptyFrontier, lo, hi)
	}
	return out, nil
}

func (m *Moments) point(w []float64, target float64) FrontierPortfolio {
	ret, vol, _ := PortfolioStats(w, m.Mean, m.Covariance, 0)
	return FrontierPortfolio{
		Weights:        w,
		TargetReturn:   target,
		ExpectedReturn: ret,
		Volatility:     vol,
	}
}

// minVariance solves the long-only global minimum variance portfolio.
func minVariance(g *mat.SymDense, opts SolverOptions) ([]float64, error) {
	n := g.SymmetricDim()
	a := mat.NewDense(1, n, nil)
	x0 := make([]float64, n)
	for i := range x0 {
		a.Set(0, i, 1)
		x0[i] = 1 / float64(n)
	}
	qp := &longOnlyQP{g: g, a: a, tol: opts.Tolerance, maxIter: opts.MaxIterations}
	w, err := qp.solve(x0)
	if err != nil {
		return nil, fmt.Errorf("minimum variance portfolio: %w", err)
	}
	return cleanWeights(w), nil
}

// minVarForReturn finds the minimum variance long-only portfolio whose
// expected return equals target. It starts from the feasible mix of the
// lowest and highest returning assets.
func minVarForReturn(meanReturns []float64, g *mat.SymDense, target float64, opts SolverOptions) ([]float64, error) {
	n := len(meanReturns)
	lo, hi := argmin(meanReturns), argmax(meanReturns)
	muLo, muHi := meanReturns[lo], meanReturns[hi]
	slack := opts.Tolerance * (1 + math.Max(math.Abs(muLo), math.Abs(muHi)))
	if target < muLo-slack || target > muHi+slack {
		return nil, fmt.Errorf("%w: %.6g outside [%.6g, %.6g]", errInfeasibleTarget, target, muLo, muHi)
	}

	x0 := make([]float64, n)
	if muHi-muLo <= slack {
		for i := range x0 {
			x0[i] = 1 / float64(n)
		}
	} else {
		theta := math.Min(1, math.Max(0, (target-muLo)/(muHi-muLo)))
		x0[lo] = 1 - theta
		x0[hi] += theta
	}

	a := mat.NewDense(2, n, nil)
	for i, mu := range meanReturns {
		a.Set(0, i, 1)
		a.Set(1, i, mu)
	}
	qp := &longOnlyQP{g: g, a: a, tol: opts.Tolerance, maxIter: opts.MaxIterations}
	w, err := qp.solve(x0)
	if err != nil {
		return nil, err
	}
	return cleanWeights(w), nil
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func argmax(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}

func argmin(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x < xs[best] {
			best = i
		}
	}
	return best
}
