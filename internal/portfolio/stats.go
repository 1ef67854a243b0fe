package portfolio

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// PortfolioStats computes the expected return, volatility and Sharpe ratio of
// a weight vector. Sharpe is 0 when volatility is 0.
func PortfolioStats(weights, meanReturns []float64, cov mat.Symmetric, riskFreeRate float64) (ret, vol, sharpe float64) {
	for i, w := range weights {
		ret += w * meanReturns[i]
	}

	wv := mat.NewVecDense(len(weights), append([]float64(nil), weights...))
	variance := mat.Inner(wv, cov, wv)
	if variance < 0 {
		// rounding on a singular matrix
		variance = 0
	}
	vol = math.Sqrt(variance)
	if vol > 0 {
		sharpe = (ret - riskFreeRate) / vol
	}
	return
}

// RiskContributions returns w_j * (Σw)_j for every asset and their sum, the
// portfolio variance.
func RiskContributions(weights []float64, cov mat.Symmetric) (contrib []float64, variance float64) {
	n := len(weights)
	wv := mat.NewVecDense(n, append([]float64(nil), weights...))
	var sw mat.VecDense
	sw.MulVec(cov, wv)
	contrib = make([]float64, n)
	for j := range contrib {
		contrib[j] = weights[j] * sw.AtVec(j)
		variance += contrib[j]
	}
	return contrib, variance
}

// Scale multiplies every weight by the target notional.
func Scale(weights []float64, total float64) []float64 {
	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = w * total
	}
	return out
}
