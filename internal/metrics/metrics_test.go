package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/philp97/frontier/internal/data"
	"github.com/philp97/frontier/internal/portfolio"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ portfolio.StageObserver = (*Metrics)(nil)
	_ data.FetchObserver      = (*Metrics)(nil)
)

func TestObserveStage(t *testing.T) {
	m := New()
	m.ObserveStage(portfolio.StageFrontier, 20*time.Millisecond, nil)
	m.ObserveStage(portfolio.StageFrontier, 30*time.Millisecond, errors.New("boom"))
	m.ObserveStage(portfolio.StageMoments, time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageFailures.WithLabelValues(portfolio.StageFrontier)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.stageFailures.WithLabelValues(portfolio.StageMoments)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.stageDuration))
}

func TestObserveFetchAndRuns(t *testing.T) {
	m := New()
	m.ObserveFetch("yahoo", data.OutcomeOK, time.Second)
	m.ObserveFetch("yahoo", data.OutcomeHit, 0)
	m.ObserveFetch("yahoo", data.OutcomeHit, 0)
	m.ObserveRun("ok")
	m.ObserveRequest("/api/analyze", "200")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetches.WithLabelValues("yahoo", data.OutcomeHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("yahoo", data.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/analyze", "200")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRun("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `frontier_runs_total{result="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestEngineReportsToMetrics(t *testing.T) {
	m := New()
	_, err := portfolio.NewEngine(zerolog.Nop(), m).Run([]portfolio.Series{
		{Asset: "A", Points: []portfolio.PricePoint{{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Price: 1}}},
	}, portfolio.DefaultParams())
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageFailures.WithLabelValues(portfolio.StageReturns)))
}
