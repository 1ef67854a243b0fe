package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/philp97/frontier/internal/portfolio"
)

// DefaultYahooURL is the Yahoo Finance chart endpoint.
const DefaultYahooURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

type yahooResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol string `json:"symbol"`
				// GmtOffset is the exchange's offset from UTC in seconds.
				GmtOffset int64 `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// YahooSource downloads daily adjusted closes from Yahoo Finance.
type YahooSource struct {
	BaseURL   string
	Client    *http.Client
	UserAgent string
}

// NewYahooSource returns a source for baseURL, or the public endpoint when
// baseURL is empty.
func NewYahooSource(baseURL string, timeout time.Duration) *YahooSource {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	return &YahooSource{
		BaseURL:   baseURL,
		Client:    &http.Client{Timeout: timeout},
		UserAgent: "Mozilla/5.0 (compatible; FrontierApp/1.0)",
	}
}

// Fetch downloads the asset's daily history for [start, end]. Adjusted
// closes are preferred; null closes are skipped. Bars are dated by the
// exchange's local calendar day.
func (y *YahooSource) Fetch(ctx context.Context, asset string, start, end time.Time) ([]portfolio.PricePoint, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", strconv.FormatInt(portfolio.Day(start).Unix(), 10))
	q.Set("period2", strconv.FormatInt(portfolio.Day(end).AddDate(0, 0, 1).Unix(), 10))
	endpoint := y.BaseURL + url.PathEscape(asset) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Asset: asset, Err: err}
	}
	// Yahoo requires a user-agent header
	req.Header.Set("User-Agent", y.UserAgent)

	resp, err := y.Client.Do(req)
	if err != nil {
		return nil, &FetchError{Asset: asset, Err: fmt.Errorf("network error: %w", err)}
	}
	defer resp.Body.Close()

	var yr yahooResponse
	if err := json.NewDecoder(resp.Body).Decode(&yr); err != nil {
		return nil, &FetchError{Asset: asset, Err: fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)}
	}
	if yr.Chart.Error != nil {
		return nil, &FetchError{Asset: asset, Err: fmt.Errorf("yahoo error %s: %s", yr.Chart.Error.Code, yr.Chart.Error.Description)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Asset: asset, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if len(yr.Chart.Result) == 0 {
		return nil, &FetchError{Asset: asset, Err: fmt.Errorf("no data returned, check the symbol")}
	}

	result := yr.Chart.Result[0]
	closes := result.Indicators.AdjClose
	var series []*float64
	if len(closes) > 0 && len(closes[0].AdjClose) > 0 {
		series = closes[0].AdjClose
	} else if len(result.Indicators.Quote) > 0 {
		series = result.Indicators.Quote[0].Close
	} else {
		return nil, &FetchError{Asset: asset, Err: fmt.Errorf("no quote data")}
	}

	points := make([]portfolio.PricePoint, 0, len(series))
	for i, c := range series {
		if c == nil || i >= len(result.Timestamp) {
			continue
		}
		points = append(points, portfolio.PricePoint{
			Date:  time.Unix(result.Timestamp[i]+result.Meta.GmtOffset, 0).UTC(),
			Price: *c,
		})
	}
	return window(points, start, end), nil
}
