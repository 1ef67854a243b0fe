package portfolio

import (
	"fmt"
	"math"
)

// Selection is the frontier portfolio with the highest Sharpe ratio.
type Selection struct {
	Index     int               `json:"index"`
	Portfolio FrontierPortfolio `json:"portfolio"`
	Sharpe    float64           `json:"sharpe"`
	Amounts   []float64         `json:"amounts"`
}

// MaxSharpe picks the candidate with the strictly greatest Sharpe ratio, the
// first one winning ties, and scales its weights to total. Candidates with
// zero volatility have no Sharpe ratio and are skipped.
func MaxSharpe(frontier []FrontierPortfolio, riskFreeRate, total float64) (*Selection, error) {
	if len(frontier) == 0 {
		return nil, fmt.Errorf("%w: no candidates to select from", ErrEmptyFrontier)
	}

	best := -1
	bestSharpe := math.Inf(-1)
	for i, p := range frontier {
		if !(p.Volatility > 0) {
			continue
		}
		sharpe := (p.ExpectedReturn - riskFreeRate) / p.Volatility
		if sharpe > bestSharpe {
			bestSharpe = sharpe
			best = i
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("%w: all %d candidates have zero volatility", ErrZeroVolatility, len(frontier))
	}

	p := frontier[best]
	return &Selection{
		Index:     best,
		Portfolio: p,
		Sharpe:    bestSharpe,
		Amounts:   Scale(p.Weights, total),
	}, nil
}
