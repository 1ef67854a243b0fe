package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/philp97/frontier/internal/portfolio"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidWindow is returned when the requested window ends before it
// starts.
var ErrInvalidWindow = errors.New("invalid date window")

// Collect fetches every asset over [start, end] concurrently and returns the
// series in the order of assets. Any failure aborts the whole collection.
func Collect(ctx context.Context, src Source, assets []string, start, end time.Time) ([]portfolio.Series, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: no assets requested", portfolio.ErrEmptyInput)
	}
	start, end = portfolio.Day(start), portfolio.Day(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidWindow,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	out := make([]portfolio.Series, len(assets))
	eg, ctx := errgroup.WithContext(ctx)
	for i, asset := range assets {
		eg.Go(func() error {
			points, err := src.Fetch(ctx, asset, start, end)
			if err != nil {
				return fetchError(asset, err)
			}
			out[i] = portfolio.Series{Asset: asset, Points: window(points, start, end)}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
