package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/philp97/frontier/internal/data"
	"github.com/philp97/frontier/internal/portfolio"
	"github.com/philp97/frontier/internal/store"
)

// errBadRequest marks request validation failures.
var errBadRequest = errors.New("bad request")

// AnalyzeRequest is the JSON body for the analyze endpoint. Start and End
// are YYYY-MM-DD; when Start is empty the window reaches Years back from End.
type AnalyzeRequest struct {
	Assets         []string `json:"assets"`
	Start          string   `json:"start"`
	End            string   `json:"end"`
	Years          int      `json:"years"`
	RiskFreeRate   *float64 `json:"risk_free_rate"`
	TotalAmount    *float64 `json:"total_amount"`
	FrontierPoints *int     `json:"frontier_points"`
	Save           bool     `json:"save"`
}

// AnalyzeResponse is the full JSON response
type AnalyzeResponse struct {
	RunID  string                      `json:"run_id,omitempty"`
	Result *portfolio.AllocationResult `json:"result"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("kind", kind).Msg("request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}

// classify maps an error to its HTTP status and a short kind label.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, data.ErrDataFetch):
		return http.StatusBadGateway, "data_fetch"
	case errors.Is(err, portfolio.ErrEmptyInput),
		errors.Is(err, portfolio.ErrDuplicateAsset),
		errors.Is(err, portfolio.ErrDuplicateObservation),
		errors.Is(err, portfolio.ErrInvalidPrice):
		return http.StatusUnprocessableEntity, "invalid_data"
	case errors.Is(err, portfolio.ErrInsufficientRows),
		errors.Is(err, portfolio.ErrInsufficientSamples):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case errors.Is(err, portfolio.ErrDivisionByZero),
		errors.Is(err, portfolio.ErrMissingObservation):
		return http.StatusUnprocessableEntity, "bad_observation"
	case errors.Is(err, portfolio.ErrDegenerateInput),
		errors.Is(err, portfolio.ErrEmptyFrontier),
		errors.Is(err, portfolio.ErrZeroVolatility),
		errors.Is(err, portfolio.ErrNonPositiveDefiniteCovariance),
		errors.Is(err, portfolio.ErrConvergenceFailure):
		return http.StatusUnprocessableEntity, "optimization"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// HealthHandler returns a simple health check
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AnalyzeHandler handles POST /api/analyze
func (s *Server) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err))
		return
	}

	assets, start, end, err := s.normalize(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	params := s.params
	if req.RiskFreeRate != nil {
		params.RiskFreeRate = *req.RiskFreeRate
	}
	if req.TotalAmount != nil {
		if *req.TotalAmount <= 0 {
			s.writeError(w, fmt.Errorf("%w: total_amount must be positive", errBadRequest))
			return
		}
		params.TotalAmount = *req.TotalAmount
	}
	if req.FrontierPoints != nil {
		if *req.FrontierPoints < 2 || *req.FrontierPoints > 1000 {
			s.writeError(w, fmt.Errorf("%w: frontier_points must be between 2 and 1000", errBadRequest))
			return
		}
		params.FrontierPoints = *req.FrontierPoints
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	// every series is in hand before the engine runs
	series, err := data.Collect(ctx, s.src, assets, start, end)
	if err != nil {
		s.observeRun(err)
		s.writeError(w, err)
		return
	}
	res, err := s.engine.Run(series, params)
	s.observeRun(err)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := AnalyzeResponse{Result: res}
	if req.Save && s.store != nil {
		sum, err := s.store.Save(ctx, res)
		if err != nil {
			s.writeError(w, fmt.Errorf("save run: %w", err))
			return
		}
		resp.RunID = sum.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// normalize deduplicates and uppercases tickers and resolves the window.
func (s *Server) normalize(req AnalyzeRequest) ([]string, time.Time, time.Time, error) {
	var zero time.Time
	seen := map[string]bool{}
	var assets []string
	for _, t := range req.Assets {
		up := strings.ToUpper(strings.TrimSpace(t))
		if up != "" && !seen[up] {
			seen[up] = true
			assets = append(assets, up)
		}
	}
	if len(assets) == 0 {
		return nil, zero, zero, fmt.Errorf("%w: please provide at least one asset", errBadRequest)
	}
	if len(assets) > s.maxAssets {
		return nil, zero, zero, fmt.Errorf("%w: maximum %d assets allowed", errBadRequest, s.maxAssets)
	}

	end := s.now().UTC()
	if req.End != "" {
		var err error
		if end, err = time.Parse(time.DateOnly, req.End); err != nil {
			return nil, zero, zero, fmt.Errorf("%w: end: %v", errBadRequest, err)
		}
	}
	end = portfolio.Day(end)

	years := req.Years
	if years < 1 {
		years = 2
	}
	if years > 100 {
		return nil, zero, zero, fmt.Errorf("%w: maximum 100 years of historical data allowed", errBadRequest)
	}
	start := end.AddDate(-years, 0, 0)
	if req.Start != "" {
		var err error
		if start, err = time.Parse(time.DateOnly, req.Start); err != nil {
			return nil, zero, zero, fmt.Errorf("%w: start: %v", errBadRequest, err)
		}
	}
	if end.Before(start) {
		return nil, zero, zero, fmt.Errorf("%w: start %s is after end %s", errBadRequest,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return assets, start, end, nil
}

// ListRunsHandler handles GET /api/runs
func (s *Server) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.writeError(w, fmt.Errorf("%w: limit must be between 1 and 500", errBadRequest))
			return
		}
		limit = n
	}
	runs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRunHandler handles GET /api/runs/{id}
func (s *Server) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		s.writeError(w, fmt.Errorf("%w: run id %q is not a uuid", errBadRequest, id))
		return
	}
	run, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) observeRun(err error) {
	if s.metrics == nil {
		return
	}
	if err == nil {
		s.metrics.ObserveRun("ok")
		return
	}
	_, kind := classify(err)
	s.metrics.ObserveRun(kind)
}
