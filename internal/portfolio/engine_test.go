package portfolio

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pricesFromReturns compounds percentage returns from a starting price.
func pricesFromReturns(start float64, returns ...float64) []float64 {
	prices := []float64{start}
	for _, r := range returns {
		prices = append(prices, prices[len(prices)-1]*(1+r/100))
	}
	return prices
}

func threeAssetUniverse() []Series {
	return []Series{
		series("AAA", pricesFromReturns(100, 1.0, -0.5, 2.0, 0.3, -1.0, 1.5, 0.7, -0.2)...),
		series("BBB", pricesFromReturns(40, -0.3, 0.8, 0.1, -0.6, 1.2, 0.4, -0.9, 0.5)...),
		series("CCC", pricesFromReturns(250, 0.2, 0.1, -0.1, 0.3, 0.2, -0.2, 0.1, 0.15)...),
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	stages []string
	failed map[string]error
}

func (r *recordingObserver) ObserveStage(stage string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
	if err != nil {
		if r.failed == nil {
			r.failed = make(map[string]error)
		}
		r.failed[stage] = err
	}
}

func TestEngineRun(t *testing.T) {
	obs := &recordingObserver{}
	engine := NewEngine(zerolog.Nop(), obs)

	params := DefaultParams()
	params.TotalAmount = 1000
	params.FrontierPoints = 50

	res, err := engine.Run(threeAssetUniverse(), params)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, res.Assets)
	assert.Equal(t, 8, res.Periods)
	assert.Equal(t, day(0), res.StartDate)
	assert.Equal(t, day(8), res.EndDate)
	require.Len(t, res.MeanReturns, 3)
	require.Len(t, res.MaxSharpeWeights, 3)
	require.Len(t, res.ERCWeights, 3)
	assert.NotEmpty(t, res.Frontier)

	msSum, ercSum := 0.0, 0.0
	for j := range res.Assets {
		assert.GreaterOrEqual(t, res.MaxSharpeWeights[j], 0.0)
		assert.Greater(t, res.ERCWeights[j], 0.0)
		msSum += res.MaxSharpeWeights[j]
		ercSum += res.ERCWeights[j]
		for k := range res.Assets {
			assert.Equal(t, res.Covariance[j][k], res.Covariance[k][j])
		}
	}
	assert.InDelta(t, 1000, msSum, 1e-6)
	assert.InDelta(t, 1000, ercSum, 1e-6)

	assert.ElementsMatch(t,
		[]string{StagePriceTable, StageReturns, StageMoments, StageFrontier, StageMaxSharpe, StageRiskParity},
		obs.stages)
	assert.Empty(t, obs.failed)
}

func TestEngineRunIsRepeatable(t *testing.T) {
	var engine *Engine
	first, err := engine.Run(threeAssetUniverse(), DefaultParams())
	require.NoError(t, err)
	second, err := engine.Run(threeAssetUniverse(), DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.InDelta(t, float64(DefaultTotalAmount), sum(first.ERCWeights), 1e-3)
}

func TestEngineSingleAsset(t *testing.T) {
	res, err := NewEngine(zerolog.Nop(), nil).Run(
		[]Series{series("SOLO", 100, 110, 99, 105)},
		Params{TotalAmount: 500},
	)
	require.NoError(t, err)

	assert.Equal(t, []float64{500}, res.ERCWeights)
	assert.Equal(t, []float64{500}, res.MaxSharpeWeights)
	assert.Len(t, res.Frontier, 1)
}

func TestEngineFailsFast(t *testing.T) {
	obs := &recordingObserver{}
	engine := NewEngine(zerolog.Nop(), obs)

	_, err := engine.Run([]Series{series("A", 100), series("B", 50)}, DefaultParams())
	assert.ErrorIs(t, err, ErrInsufficientRows)
	assert.Contains(t, obs.failed, StageReturns)
	assert.NotContains(t, obs.stages, StageMoments)

}

func TestEngineReportsFrontierBranchFirst(t *testing.T) {
	// A's return never varies, so the covariance is singular. The frontier
	// collapses to the zero-volatility portfolio and risk parity cannot
	// factorize; the frontier branch's error wins every time.
	for range 50 {
		obs := &recordingObserver{}
		_, err := NewEngine(zerolog.Nop(), obs).Run([]Series{
			series("A", 100, 110, 121),
			series("B", 50, 45, 49.5),
		}, Params{TotalAmount: 1000})
		require.ErrorIs(t, err, ErrZeroVolatility)
		assert.NotErrorIs(t, err, ErrNonPositiveDefiniteCovariance)
		assert.ErrorIs(t, obs.failed[StageRiskParity], ErrNonPositiveDefiniteCovariance)
	}
}

func TestEngineRejectsNonPositiveTotal(t *testing.T) {
	for _, total := range []float64{0, -1000} {
		obs := &recordingObserver{}
		_, err := NewEngine(zerolog.Nop(), obs).Run(threeAssetUniverse(), Params{TotalAmount: total})
		assert.ErrorIs(t, err, ErrDegenerateInput, "total %v", total)
		assert.Empty(t, obs.stages)
	}
}

func TestEngineLogsStages(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	_, err := NewEngine(logger, nil).Run(threeAssetUniverse(), DefaultParams())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"stage":"frontier"`)
	assert.Contains(t, buf.String(), `"component":"portfolio"`)
}

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}
