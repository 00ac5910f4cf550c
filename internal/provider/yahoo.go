package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"bondwatch/internal/domain"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooProvider fetches daily closes from the Yahoo chart endpoint for ETFs,
// index symbols (^VIX), and equities.
type YahooProvider struct {
	client  *http.Client
	baseURL string
	limiter *RateLimiter
	tracer  trace.Tracer
}

func NewYahooProvider(limiter *RateLimiter, tracer trace.Tracer) *YahooProvider {
	return &YahooProvider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: yahooBaseURL,
		limiter: limiter,
		tracer:  tracer,
	}
}

// FetchDailyCloses returns up to lookbackDays of daily closing prices for
// symbol, ascending. Null closes (halts, partial sessions) are skipped.
func (p *YahooProvider) FetchDailyCloses(ctx context.Context, symbol string, lookbackDays int) (domain.Series, error) {
	ctx, span := p.tracer.Start(ctx, "yahoo.fetch-daily-closes")
	defer span.End()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("range", rangeParam(lookbackDays))
	q.Set("interval", "1d")
	u := strings.TrimRight(p.baseURL, "/") + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "bondwatch/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("yahoo chart API error %d for %s: %s", resp.StatusCode, symbol, string(body))
	}

	var payload struct {
		Chart struct {
			Result []struct {
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
			Error *struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode yahoo chart response for %s: %w", symbol, err)
	}
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart error for %s: %s (%s)",
			symbol, payload.Chart.Error.Description, payload.Chart.Error.Code)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo chart response for %s has no quote data", symbol)
	}

	result := payload.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	if len(result.Timestamp) != len(closes) {
		return nil, fmt.Errorf("yahoo chart response for %s misaligned: %d timestamps, %d closes",
			symbol, len(result.Timestamp), len(closes))
	}

	series := make(domain.Series, 0, len(closes))
	for i, c := range closes {
		if c == nil {
			continue
		}
		day := time.Unix(result.Timestamp[i], 0).UTC().Truncate(24 * time.Hour)
		series = append(series, domain.Point{Time: day, Value: *c})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("yahoo chart response for %s has no usable closes", symbol)
	}
	return series, nil
}

func rangeParam(lookbackDays int) string {
	switch {
	case lookbackDays <= 0:
		return "1y"
	case lookbackDays <= 30:
		return "1mo"
	case lookbackDays <= 90:
		return "3mo"
	case lookbackDays <= 180:
		return "6mo"
	case lookbackDays <= 366:
		return "1y"
	case lookbackDays <= 732:
		return "2y"
	default:
		return "5y"
	}
}
