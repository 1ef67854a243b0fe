package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/philp97/frontier/internal/portfolio"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Fetch outcomes reported to a FetchObserver.
const (
	OutcomeHit   = "cache_hit"
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// FetchObserver receives one call per Guarded.Fetch.
type FetchObserver interface {
	ObserveFetch(source, outcome string, elapsed time.Duration)
}

// GuardOptions configures a Guarded source. Zero values disable the
// corresponding guard.
type GuardOptions struct {
	Name             string
	RequestsPerSec   float64
	Burst            int
	FailureThreshold uint32
	OpenTimeout      time.Duration
	// Retries is the number of extra attempts after a failed fetch, spaced
	// by RetryBackoff doubling each time.
	Retries          int
	RetryBackoff     time.Duration
	Cache            Cache
	CacheTTL         time.Duration
	Observer         FetchObserver
}

// Guarded wraps a Source with a rate limiter, a circuit breaker, request
// coalescing and an optional cache.
type Guarded struct {
	name     string
	src      Source
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	group    singleflight.Group
	retries  int
	backoff  time.Duration
	cache    Cache
	ttl      time.Duration
	observer FetchObserver
	log      zerolog.Logger
}

// NewGuarded wraps src. The breaker trips after FailureThreshold consecutive
// failures, five when unset.
func NewGuarded(src Source, opts GuardOptions, logger zerolog.Logger) *Guarded {
	if opts.Name == "" {
		opts.Name = "prices"
	}
	g := &Guarded{
		name:     opts.Name,
		src:      src,
		retries:  opts.Retries,
		backoff:  opts.RetryBackoff,
		cache:    opts.Cache,
		ttl:      opts.CacheTTL,
		observer: opts.Observer,
		log:      logger.With().Str("component", "data").Str("source", opts.Name).Logger(),
	}
	if opts.RequestsPerSec > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), burst)
	}

	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	st := gobreaker.Settings{Name: opts.Name, Timeout: opts.OpenTimeout}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= threshold }
	st.IsSuccessful = func(err error) bool {
		// a caller giving up says nothing about the upstream
		return err == nil || errors.Is(err, context.Canceled)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		g.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
	}
	g.breaker = gobreaker.NewCircuitBreaker(st)
	return g
}

// State reports the circuit breaker state.
func (g *Guarded) State() gobreaker.State { return g.breaker.State() }

// Fetch serves the window from the cache when possible, otherwise fetches it
// once per key across concurrent callers and caches the result.
func (g *Guarded) Fetch(ctx context.Context, asset string, start, end time.Time) ([]portfolio.PricePoint, error) {
	began := time.Now()
	key := fmt.Sprintf("%s:%s:%s", asset, portfolio.Day(start).Format(time.DateOnly), portfolio.Day(end).Format(time.DateOnly))

	if points, ok := g.cached(ctx, key); ok {
		g.observe(OutcomeHit, began)
		return points, nil
	}

	v, err, shared := g.group.Do(key, func() (interface{}, error) {
		return g.attempt(ctx, asset, start, end)
	})
	if err != nil {
		g.observe(OutcomeError, began)
		g.log.Debug().Err(err).Str("asset", asset).Msg("fetch failed")
		return nil, fetchError(asset, err)
	}
	points := v.([]portfolio.PricePoint)
	g.observe(OutcomeOK, began)
	g.log.Debug().Str("asset", asset).Int("points", len(points)).Bool("shared", shared).Msg("fetched prices")

	if g.cache != nil && !shared {
		if raw, err := json.Marshal(points); err == nil {
			if err := g.cache.Set(ctx, key, raw, g.ttl); err != nil {
				g.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
			}
		}
	}
	return points, nil
}

// attempt fetches through the limiter and breaker, retrying failures that
// may be transient.
func (g *Guarded) attempt(ctx context.Context, asset string, start, end time.Time) (interface{}, error) {
	wait := g.backoff
	for try := 0; ; try++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		v, err := g.breaker.Execute(func() (interface{}, error) {
			return g.src.Fetch(ctx, asset, start, end)
		})
		if err == nil || try >= g.retries || !retryable(err) {
			return v, err
		}
		g.log.Debug().Err(err).Str("asset", asset).Int("attempt", try+1).Msg("retrying fetch")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrUnknownAsset):
		return false
	}
	return true
}

func (g *Guarded) cached(ctx context.Context, key string) ([]portfolio.PricePoint, bool) {
	if g.cache == nil {
		return nil, false
	}
	raw, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var points []portfolio.PricePoint
	if err := json.Unmarshal(raw, &points); err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("discarding corrupt cache entry")
		return nil, false
	}
	return points, true
}

func (g *Guarded) observe(outcome string, began time.Time) {
	if g.observer != nil {
		g.observer.ObserveFetch(g.name, outcome, time.Since(began))
	}
}
