package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxSharpe(t *testing.T) {
	frontier := []FrontierPortfolio{
		{Weights: []float64{1, 0}, ExpectedReturn: 1, Volatility: 2},   // 0.5
		{Weights: []float64{0.5, 0.5}, ExpectedReturn: 3, Volatility: 2}, // 1.5
		{Weights: []float64{0, 1}, ExpectedReturn: 4, Volatility: 4},   // 1.0
	}

	sel, err := MaxSharpe(frontier, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, sel.Index)
	assert.InDelta(t, 1.5, sel.Sharpe, 1e-12)
	assert.Equal(t, []float64{500, 500}, sel.Amounts)

	again, err := MaxSharpe(frontier, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, sel, again)
}

func TestMaxSharpeRiskFreeRate(t *testing.T) {
	frontier := []FrontierPortfolio{
		{Weights: []float64{1, 0}, ExpectedReturn: 2, Volatility: 1},
		{Weights: []float64{0, 1}, ExpectedReturn: 5, Volatility: 2.5},
	}

	sel, err := MaxSharpe(frontier, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, sel.Index) // 2.0 vs 2.0: first wins

	sel, err = MaxSharpe(frontier, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sel.Index) // 1.0 vs 1.6
}

func TestMaxSharpeSkipsZeroVolatility(t *testing.T) {
	frontier := []FrontierPortfolio{
		{Weights: []float64{1, 0}, ExpectedReturn: 10, Volatility: 0},
		{Weights: []float64{0, 1}, ExpectedReturn: 1, Volatility: 1},
	}
	sel, err := MaxSharpe(frontier, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sel.Index)

	_, err = MaxSharpe(frontier[:1], 0, 1)
	assert.ErrorIs(t, err, ErrZeroVolatility)
}

func TestMaxSharpeEmpty(t *testing.T) {
	_, err := MaxSharpe(nil, 0, 1)
	assert.ErrorIs(t, err, ErrEmptyFrontier)
}

func TestMaxSharpeScalesToTotal(t *testing.T) {
	points, err := Frontier(testMoments(t), 30, DefaultSolverOptions())
	require.NoError(t, err)

	sel, err := MaxSharpe(points, 0.01, 250_000)
	require.NoError(t, err)

	sum := 0.0
	for _, a := range sel.Amounts {
		sum += a
	}
	assert.InDelta(t, 250_000, sum, 1e-6)

	for _, p := range points {
		sharpe := (p.ExpectedReturn - 0.01) / p.Volatility
		assert.LessOrEqual(t, sharpe, sel.Sharpe)
	}
}
