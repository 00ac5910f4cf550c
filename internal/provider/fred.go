// Package provider holds the HTTP clients for the external market-data
// sources: FRED for treasury yield series and the Yahoo chart endpoint for
// ETF and equity closes.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"bondwatch/internal/domain"
)

const fredBaseURL = "https://api.stlouisfed.org"

// FredProvider fetches daily observations for a FRED series (DGS2, DGS10).
type FredProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	limiter *RateLimiter
	tracer  trace.Tracer
}

func NewFredProvider(apiKey string, limiter *RateLimiter, tracer trace.Tracer) *FredProvider {
	return &FredProvider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: fredBaseURL,
		apiKey:  apiKey,
		limiter: limiter,
		tracer:  tracer,
	}
}

// FetchSeries returns the series' daily values since start, ascending.
// Missing observations (FRED publishes "." on market holidays) are skipped.
func (p *FredProvider) FetchSeries(ctx context.Context, seriesID string, start time.Time) (domain.Series, error) {
	ctx, span := p.tracer.Start(ctx, "fred.fetch-series")
	defer span.End()

	if p.apiKey == "" {
		return nil, fmt.Errorf("fred api key not configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("series_id", seriesID)
	q.Set("api_key", p.apiKey)
	q.Set("file_type", "json")
	q.Set("observation_start", start.Format("2006-01-02"))
	u := strings.TrimRight(p.baseURL, "/") + "/fred/series/observations?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fred API error %d for %s: %s", resp.StatusCode, seriesID, string(body))
	}

	var payload struct {
		Observations []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode fred response for %s: %w", seriesID, err)
	}
	if len(payload.Observations) == 0 {
		return nil, fmt.Errorf("fred series %s has no observations", seriesID)
	}

	series := make(domain.Series, 0, len(payload.Observations))
	for _, obs := range payload.Observations {
		raw := strings.TrimSpace(obs.Value)
		if raw == "" || raw == "." {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parse fred value %q for %s: %w", obs.Value, seriesID, err)
		}
		ts, err := time.ParseInLocation("2006-01-02", obs.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse fred date %q for %s: %w", obs.Date, seriesID, err)
		}
		series = append(series, domain.Point{Time: ts, Value: v})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("fred series %s has only missing observations", seriesID)
	}
	return series, nil
}
