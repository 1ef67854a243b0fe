package portfolio

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ReturnMatrix holds period-over-period percentage returns. Row i is the
// change from Dates[i] to Dates[i+1]; 100 means a 100% increase.
type ReturnMatrix struct {
	Assets []string
	Dates  []time.Time
	Values [][]float64
}

// Returns converts the price table into percentage returns. A zero price in
// the denominator, including a cell with no observation, fails with
// ErrDivisionByZero; a missing price in the numerator fails with
// ErrMissingObservation.
func (t *PriceTable) Returns() (*ReturnMatrix, error) {
	r := t.Rows()
	if r < 2 {
		return nil, fmt.Errorf("%w: need at least 2 dated rows, got %d", ErrInsufficientRows, r)
	}

	c := len(t.Assets)
	values := make([][]float64, r-1)
	for i := 0; i < r-1; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			prev, curr := t.Prices[i][j], t.Prices[i+1][j]
			if prev == 0 {
				return nil, fmt.Errorf("%w: %s has zero price on %s", ErrDivisionByZero,
					t.Assets[j], t.Dates[i].Format(time.DateOnly))
			}
			if !t.Present[i+1][j] {
				return nil, fmt.Errorf("%w: %s has no price on %s", ErrMissingObservation,
					t.Assets[j], t.Dates[i+1].Format(time.DateOnly))
			}
			row[j] = (curr - prev) / prev * 100
		}
		values[i] = row
	}

	return &ReturnMatrix{
		Assets: append([]string(nil), t.Assets...),
		Dates:  append([]time.Time(nil), t.Dates...),
		Values: values,
	}, nil
}

// Rows returns the number of return periods.
func (m *ReturnMatrix) Rows() int { return len(m.Values) }

// Dense copies the returns into an observations-by-assets gonum matrix.
func (m *ReturnMatrix) Dense() *mat.Dense {
	d := mat.NewDense(len(m.Values), len(m.Assets), nil)
	for i, row := range m.Values {
		d.SetRow(i, row)
	}
	return d
}

// mean computes the arithmetic mean of a slice
func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
