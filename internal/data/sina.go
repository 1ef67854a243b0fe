package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/philp97/frontier/internal/portfolio"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// DefaultSinaURL is the Sina quotes JSONP endpoint.
const DefaultSinaURL = "https://quotes.sina.cn/cn/api/jsonp_v2.php/"

// sinaDailyScale is the bar length in minutes Sina uses for daily k-lines.
const sinaDailyScale = 240

type sinaBar struct {
	Day   string `json:"day"`
	Close string `json:"close"`
}

// SinaSource downloads daily closes of China A-share symbols (sh600519,
// sz000001) from Sina's k-line service. Symbols are sent lower case.
//
// Sina only serves the latest datalen bars, so the request asks for one bar
// per calendar day from start to today and the window is applied locally.
type SinaSource struct {
	BaseURL string
	Client  *http.Client
	now     func() time.Time
}

// NewSinaSource returns a source for baseURL, or the public endpoint when
// baseURL is empty.
func NewSinaSource(baseURL string, timeout time.Duration) *SinaSource {
	if baseURL == "" {
		baseURL = DefaultSinaURL
	}
	return &SinaSource{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// Fetch downloads the symbol's daily closes for [start, end].
func (s *SinaSource) Fetch(ctx context.Context, asset string, start, end time.Time) ([]portfolio.PricePoint, error) {
	symbol := strings.ToLower(strings.TrimSpace(asset))
	now := s.now()

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("scale", strconv.Itoa(sinaDailyScale))
	q.Set("ma", "no")
	q.Set("datalen", strconv.Itoa(barsSince(start, end, now)))
	callback := fmt.Sprintf("var%%20_%s_%d_%d=", symbol, sinaDailyScale, now.UnixMilli())
	endpoint := s.BaseURL + callback + "/CN_MarketDataService.getKLineData?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Asset: asset, Err: err}
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, &FetchError{Asset: asset, Err: fmt.Errorf("network error: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Asset: asset, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	// the body is GBK encoded
	raw, err := io.ReadAll(simplifiedchinese.GBK.NewDecoder().Reader(resp.Body))
	if err != nil {
		return nil, &FetchError{Asset: asset, Err: fmt.Errorf("read response: %w", err)}
	}
	payload, err := unwrapJSONP(raw)
	if err != nil {
		return nil, &FetchError{Asset: asset, Err: err}
	}
	if bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		return nil, &FetchError{Asset: asset, Err: ErrUnknownAsset}
	}

	var bars []sinaBar
	if err := json.Unmarshal(payload, &bars); err != nil {
		return nil, &FetchError{Asset: asset, Err: fmt.Errorf("decode k-line data: %w", err)}
	}
	points := make([]portfolio.PricePoint, 0, len(bars))
	for _, b := range bars {
		d, err := time.Parse(time.DateOnly, b.Day)
		if err != nil {
			return nil, &FetchError{Asset: asset, Err: fmt.Errorf("bar day %q: %w", b.Day, err)}
		}
		price, err := strconv.ParseFloat(b.Close, 64)
		if err != nil {
			return nil, &FetchError{Asset: asset, Err: fmt.Errorf("close on %s: %w", b.Day, err)}
		}
		points = append(points, portfolio.PricePoint{Date: d, Price: price})
	}
	return window(points, start, end), nil
}

// unwrapJSONP returns the argument of a `var _x=( ... );` JSONP body.
func unwrapJSONP(body []byte) ([]byte, error) {
	open := bytes.Index(body, []byte("=("))
	if open >= 0 {
		open++
	} else {
		open = bytes.IndexByte(body, '(')
	}
	end := bytes.LastIndexByte(body, ')')
	if open < 0 || end <= open {
		return nil, fmt.Errorf("response is not JSONP: %.64q", body)
	}
	return body[open+1 : end], nil
}

// barsSince counts calendar days from start through the later of end and
// now, inclusive.
func barsSince(start, end, now time.Time) int {
	last := portfolio.Day(now)
	if e := portfolio.Day(end); e.After(last) {
		last = e
	}
	n := int(last.Sub(portfolio.Day(start)).Hours()/24) + 1
	return max(n, 1)
}
