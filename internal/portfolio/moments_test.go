package portfolio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateMomentsWorkedExample(t *testing.T) {
	table, err := BuildPriceTable([]Series{
		series("A", 100, 110, 121),
		series("B", 50, 45, 49.5),
	})
	require.NoError(t, err)
	r, err := table.Returns()
	require.NoError(t, err)

	m, err := EstimateMoments(r)
	require.NoError(t, err)

	assert.InDelta(t, 10, m.Mean[0], 1e-12)
	assert.InDelta(t, 0, m.Mean[1], 1e-12)

	// A is flat at +10%, B swings -10/+10: var(B) = (100+100)/(2-1).
	want := [][]float64{{0, 0}, {0, 200}}
	got := m.CovarianceRows()
	for i := range want {
		for k := range want[i] {
			assert.InDelta(t, want[i][k], got[i][k], 1e-9, "cov[%d][%d]", i, k)
		}
	}

	stats := m.Stats()
	assert.Equal(t, "B", stats[1].Asset)
	assert.InDelta(t, math.Sqrt(200), stats[1].Volatility, 1e-9)
}

func TestEstimateMomentsMatchesTwoPass(t *testing.T) {
	r := &ReturnMatrix{
		Assets: []string{"X", "Y", "Z"},
		Values: [][]float64{
			{1.2, -0.4, 0.3},
			{-0.7, 0.9, 0.1},
			{0.5, 0.2, -1.1},
			{2.1, -1.3, 0.8},
			{-0.2, 0.7, 0.4},
		},
	}
	m, err := EstimateMoments(r)
	require.NoError(t, err)

	n := float64(len(r.Values))
	for j := range r.Assets {
		sum := 0.0
		for _, row := range r.Values {
			sum += row[j]
		}
		assert.InEpsilon(t, sum/n, m.Mean[j], 1e-9)
	}

	for i := range r.Assets {
		for k := range r.Assets {
			s := 0.0
			for _, row := range r.Values {
				s += (row[i] - m.Mean[i]) * (row[k] - m.Mean[k])
			}
			assert.InDelta(t, s/(n-1), m.Covariance.At(i, k), 1e-12)
			assert.Equal(t, m.Covariance.At(i, k), m.Covariance.At(k, i))
		}
	}
}

func TestEstimateMomentsInsufficientSamples(t *testing.T) {
	r := &ReturnMatrix{Assets: []string{"A"}, Values: [][]float64{{1}}}
	_, err := EstimateMoments(r)
	assert.ErrorIs(t, err, ErrInsufficientSamples)
}

func TestNewMoments(t *testing.T) {
	_, err := NewMoments([]string{"A", "B"}, []float64{1, 2}, [][]float64{{1, 0.1}, {0.2, 1}})
	assert.ErrorIs(t, err, ErrDegenerateInput)

	m, err := NewMoments([]string{"A", "B"}, []float64{1, 2}, [][]float64{{1, 0.1}, {0.1, 1}})
	require.NoError(t, err)
	assert.Equal(t, 0.1, m.Covariance.At(1, 0))
}
