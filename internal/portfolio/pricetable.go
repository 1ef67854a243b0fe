package portfolio

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// PricePoint is one dated price of a single asset.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// Observation is a raw (date, asset, price) sample.
type Observation struct {
	Date  time.Time `json:"date"`
	Asset string    `json:"asset"`
	Price float64   `json:"price"`
}

// Series holds every observation of one asset. Points need not be sorted.
type Series struct {
	Asset  string       `json:"asset"`
	Points []PricePoint `json:"points"`
}

// PriceTable is the date-aligned dense price table. Row i is Dates[i];
// column j is Assets[j]. A cell with no observation holds 0 and is false in
// Present.
type PriceTable struct {
	Assets  []string
	Dates   []time.Time
	Prices  [][]float64
	Present [][]bool
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GroupObservations splits flat observations into per-asset series. Assets
// are ordered as in order; when order is empty they are ordered by first
// appearance. Observations for assets outside a non-empty order are dropped.
func GroupObservations(obs []Observation, order []string) []Series {
	idx := make(map[string]int)
	var out []Series
	for _, a := range order {
		if _, ok := idx[a]; ok {
			continue
		}
		idx[a] = len(out)
		out = append(out, Series{Asset: a})
	}
	fixed := len(order) > 0
	for _, o := range obs {
		i, ok := idx[o.Asset]
		if !ok {
			if fixed {
				continue
			}
			i = len(out)
			idx[o.Asset] = i
			out = append(out, Series{Asset: o.Asset})
		}
		out[i].Points = append(out[i].Points, PricePoint{Date: o.Date, Price: o.Price})
	}
	return out
}

// BuildPriceTable aligns the series on the union of their dates. Output does
// not depend on the order of points within a series.
func BuildPriceTable(series []Series) (*PriceTable, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no assets requested", ErrEmptyInput)
	}

	assets := make([]string, len(series))
	byAsset := make([]map[time.Time]float64, len(series))
	seenAsset := make(map[string]bool, len(series))
	dateSet := make(map[time.Time]struct{})

	for j, s := range series {
		if seenAsset[s.Asset] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAsset, s.Asset)
		}
		seenAsset[s.Asset] = true
		assets[j] = s.Asset

		if len(s.Points) == 0 {
			return nil, fmt.Errorf("%w: no observations for %s", ErrEmptyInput, s.Asset)
		}

		prices := make(map[time.Time]float64, len(s.Points))
		for _, p := range s.Points {
			if p.Price < 0 || math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
				return nil, fmt.Errorf("%w: %s on %s: %v", ErrInvalidPrice, s.Asset, p.Date.Format(time.DateOnly), p.Price)
			}
			d := Day(p.Date)
			if _, dup := prices[d]; dup {
				return nil, fmt.Errorf("%w: %s on %s", ErrDuplicateObservation, s.Asset, d.Format(time.DateOnly))
			}
			prices[d] = p.Price
			dateSet[d] = struct{}{}
		}
		byAsset[j] = prices
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })

	table := &PriceTable{
		Assets:  assets,
		Dates:   dates,
		Prices:  make([][]float64, len(dates)),
		Present: make([][]bool, len(dates)),
	}
	for i, d := range dates {
		row := make([]float64, len(assets))
		present := make([]bool, len(assets))
		for j := range assets {
			row[j], present[j] = byAsset[j][d]
		}
		table.Prices[i] = row
		table.Present[i] = present
	}
	return table, nil
}

// Rows returns the number of dates in the table.
func (t *PriceTable) Rows() int { return len(t.Dates) }

// Column returns the price history of asset j.
func (t *PriceTable) Column(j int) []float64 {
	col := make([]float64, len(t.Prices))
	for i, row := range t.Prices {
		col[i] = row[j]
	}
	return col
}
