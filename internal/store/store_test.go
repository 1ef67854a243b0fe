package store

import (
	"context"
	"testing"
	"time"

	"github.com/philp97/frontier/internal/portfolio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(assets ...string) *portfolio.AllocationResult {
	n := len(assets)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1000 / float64(n)
	}
	return &portfolio.AllocationResult{
		Assets:           assets,
		StartDate:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC),
		Periods:          60,
		MeanReturns:      weights,
		MaxSharpeWeights: weights,
		ERCWeights:       weights,
		Params:           portfolio.Params{RiskFreeRate: 0.01, TotalAmount: 1000, FrontierPoints: 10},
	}
}

func TestSaveAndGet(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	res := sampleResult("AAPL", "MSFT")
	sum, err := s.Save(ctx, res)
	require.NoError(t, err)
	assert.Len(t, sum.ID, 36)
	assert.Equal(t, []string{"AAPL", "MSFT"}, sum.Assets)

	run, err := s.Get(ctx, sum.ID)
	require.NoError(t, err)
	assert.Equal(t, *sum, run.Summary)
	assert.Equal(t, res.Params, run.Params)
	assert.Equal(t, res.ERCWeights, run.Result.ERCWeights)
	assert.Equal(t, res.StartDate, run.StartDate)
	assert.True(t, res.EndDate.Equal(run.Result.EndDate))
}

func TestGetUnknown(t *testing.T) {
	_, err := openTest(t).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	var ids []string
	for _, asset := range []string{"A", "B", "C"} {
		sum, err := s.Save(ctx, sampleResult(asset))
		require.NoError(t, err)
		ids = append(ids, sum.ID)
		clock = clock.Add(time.Minute)
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Equal(t, []string{"C"}, runs[0].Assets)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x")
	assert.Error(t, err)
}
