package portfolio

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// AssetStats is the per-period risk/return profile of one asset, in percent.
type AssetStats struct {
	Asset      string  `json:"asset"`
	MeanReturn float64 `json:"mean_return"`
	Volatility float64 `json:"volatility"`
}

// Moments is the sample mean vector and sample covariance matrix of a
// ReturnMatrix, indexed like Assets.
type Moments struct {
	Assets     []string
	Mean       []float64
	Covariance *mat.SymDense
	Samples    int
}

// EstimateMoments computes column means and the n-1 sample covariance.
// Covariance is computed two-pass: columns are centred on their mean before
// the cross products are summed.
func EstimateMoments(r *ReturnMatrix) (*Moments, error) {
	n := r.Rows()
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 return rows, got %d", ErrInsufficientSamples, n)
	}

	c := len(r.Assets)
	means := make([]float64, c)
	col := make([]float64, n)
	for j := 0; j < c; j++ {
		for i := 0; i < n; i++ {
			col[i] = r.Values[i][j]
		}
		means[j] = mean(col)
	}

	cov := mat.NewSymDense(c, nil)
	stat.CovarianceMatrix(cov, r.Dense(), nil)

	return &Moments{
		Assets:     append([]string(nil), r.Assets...),
		Mean:       means,
		Covariance: cov,
		Samples:    n,
	}, nil
}

// Stats returns each asset's mean return and volatility.
func (m *Moments) Stats() []AssetStats {
	stats := make([]AssetStats, len(m.Assets))
	for j, a := range m.Assets {
		stats[j] = AssetStats{
			Asset:      a,
			MeanReturn: m.Mean[j],
			Volatility: math.Sqrt(m.Covariance.At(j, j)),
		}
	}
	return stats
}

// CovarianceRows copies the covariance matrix into nested slices.
func (m *Moments) CovarianceRows() [][]float64 {
	return symRows(m.Covariance)
}

func symRows(s mat.Symmetric) [][]float64 {
	n := s.SymmetricDim()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for k := range rows[i] {
			rows[i][k] = s.At(i, k)
		}
	}
	return rows
}

// NewMoments builds Moments from plain slices, for callers that already hold
// estimates. cov must be square and symmetric.
func NewMoments(assets []string, means []float64, cov [][]float64) (*Moments, error) {
	c := len(assets)
	if c == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrEmptyInput)
	}
	if len(means) != c || len(cov) != c {
		return nil, fmt.Errorf("%w: %d assets, %d means, %d covariance rows", ErrDegenerateInput, c, len(means), len(cov))
	}
	sym := mat.NewSymDense(c, nil)
	for i := 0; i < c; i++ {
		if len(cov[i]) != c {
			return nil, fmt.Errorf("%w: covariance row %d has %d columns", ErrDegenerateInput, i, len(cov[i]))
		}
		for k := i; k < c; k++ {
			if cov[i][k] != cov[k][i] {
				return nil, fmt.Errorf("%w: covariance not symmetric at (%d,%d)", ErrDegenerateInput, i, k)
			}
			sym.SetSym(i, k, cov[i][k])
		}
	}
	return &Moments{
		Assets:     append([]string(nil), assets...),
		Mean:       append([]float64(nil), means...),
		Covariance: sym,
	}, nil
}
