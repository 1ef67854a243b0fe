package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/philp97/frontier/internal/portfolio"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCentsSumsExactly(t *testing.T) {
	third := 1000.0 / 3
	got := Cents([]float64{third, third, third}, 1000)
	require.Len(t, got, 3)

	assert.Equal(t, "333.34", got[0].StringFixed(2), "residual goes to the first largest position")
	assert.Equal(t, "333.33", got[1].StringFixed(2))
	assert.Equal(t, "333.33", got[2].StringFixed(2))
	assert.True(t, sumOf(got).Equal(decimal.NewFromInt(1000)))
}

func TestCentsLargestAbsorbsResidual(t *testing.T) {
	got := Cents([]float64{0.004, 600.004, 399.994}, 1000)
	assert.Equal(t, []string{"0.00", "600.01", "399.99"},
		[]string{got[0].StringFixed(2), got[1].StringFixed(2), got[2].StringFixed(2)})
	assert.True(t, sumOf(got).Equal(decimal.NewFromInt(1000)))
}

func TestCentsEmpty(t *testing.T) {
	assert.Nil(t, Cents(nil, 100))
}

func TestWrite(t *testing.T) {
	third := 1000.0 / 3
	res := &portfolio.AllocationResult{
		Assets:    []string{"AAA", "BBB", "CCC"},
		StartDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Periods:   21,
		AssetStats: []portfolio.AssetStats{
			{Asset: "AAA", MeanReturn: 0.1, Volatility: 1.2},
			{Asset: "BBB", MeanReturn: 0.05, Volatility: 0.8},
			{Asset: "CCC", MeanReturn: 0.02, Volatility: 0.3},
		},
		Frontier: make([]portfolio.FrontierPortfolio, 7),
		MaxSharpe: portfolio.Selection{
			Portfolio: portfolio.FrontierPortfolio{ExpectedReturn: 0.06, Volatility: 0.5},
			Sharpe:    0.12,
		},
		MaxSharpeWeights: []float64{500, 500, 0},
		ERCWeights:       []float64{third, third, third},
		Params:           portfolio.Params{TotalAmount: 1000},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, res))
	out := buf.String()

	assert.Contains(t, out, "2024-01-02 .. 2024-02-01")
	assert.Contains(t, out, "0.1000")
	assert.Contains(t, out, "sharpe 0.1200")
	assert.Contains(t, out, "333.34")
	assert.Equal(t, 2, strings.Count(out, "1000.00"))
}
