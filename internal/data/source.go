package data

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/philp97/frontier/internal/portfolio"
)

// ErrDataFetch matches every failure raised while retrieving prices.
var ErrDataFetch = errors.New("data fetch failed")

// ErrUnknownAsset is returned by sources that do not carry an asset.
var ErrUnknownAsset = errors.New("unknown asset")

// Source retrieves the daily price history of one asset over the closed
// interval [start, end].
type Source interface {
	Fetch(ctx context.Context, asset string, start, end time.Time) ([]portfolio.PricePoint, error)
}

// FetchError wraps a source failure for a single asset.
type FetchError struct {
	Asset string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Asset, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is makes every FetchError match ErrDataFetch.
func (e *FetchError) Is(target error) bool { return target == ErrDataFetch }

func fetchError(asset string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Asset: asset, Err: err}
}

// StaticSource serves prices held in memory.
type StaticSource map[string][]portfolio.PricePoint

// Fetch returns the asset's points that fall inside [start, end].
func (s StaticSource) Fetch(_ context.Context, asset string, start, end time.Time) ([]portfolio.PricePoint, error) {
	points, ok := s[asset]
	if !ok {
		return nil, &FetchError{Asset: asset, Err: ErrUnknownAsset}
	}
	return window(points, start, end), nil
}

// window keeps the points whose calendar day lies in [start, end], sorted by
// date.
func window(points []portfolio.PricePoint, start, end time.Time) []portfolio.PricePoint {
	lo, hi := portfolio.Day(start), portfolio.Day(end)
	out := make([]portfolio.PricePoint, 0, len(points))
	for _, p := range points {
		d := portfolio.Day(p.Date)
		if d.Before(lo) || d.After(hi) {
			continue
		}
		out = append(out, portfolio.PricePoint{Date: d, Price: p.Price})
	}
	slices.SortFunc(out, func(a, b portfolio.PricePoint) int { return a.Date.Compare(b.Date) })
	return out
}
