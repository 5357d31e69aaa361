// Package yahoo implements market.Source against the public Yahoo Finance
// chart and search endpoints.
package yahoo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"stockpilot/internal/market"
)

const (
	defaultBaseURL   = "https://query1.finance.yahoo.com"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	maxBodyBytes     = 4 << 20
)

// Source queries Yahoo Finance over REST.
type Source struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Source)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.httpClient = c }
}

// WithBaseURL points the source at a different host, mainly for tests.
func WithBaseURL(base string) Option {
	return func(s *Source) { s.baseURL = strings.TrimSuffix(base, "/") }
}

func NewSource(timeout time.Duration, opts ...Option) *Source {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &Source{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ market.Source = (*Source)(nil)

// GetQuote fetches the latest price and previous close via the chart endpoint.
func (s *Source) GetQuote(ctx context.Context, symbol string) (market.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return market.Quote{}, fmt.Errorf("symbol cannot be empty")
	}
	path := fmt.Sprintf("/v8/finance/chart/%s?range=2d&interval=1d", url.PathEscape(symbol))
	body, err := s.get(ctx, path)
	if err != nil {
		return market.Quote{}, err
	}
	result := gjson.GetBytes(body, "chart.result.0")
	if !result.Exists() {
		if msg := gjson.GetBytes(body, "chart.error.description"); msg.Exists() {
			return market.Quote{}, fmt.Errorf("yahoo chart error for %s: %s", symbol, msg.String())
		}
		return market.Quote{}, fmt.Errorf("yahoo chart returned no result for %s", symbol)
	}
	meta := result.Get("meta")
	price := meta.Get("regularMarketPrice").Float()
	prevClose := meta.Get("chartPreviousClose").Float()
	// The daily closes cover two sessions; prefer them when the meta previous
	// close is missing (happens for thinly traded symbols).
	closes := result.Get("indicators.quote.0.close").Array()
	if price == 0 && len(closes) > 0 {
		price = closes[len(closes)-1].Float()
	}
	if prevClose == 0 && len(closes) > 1 {
		prevClose = closes[len(closes)-2].Float()
	}
	if price == 0 {
		return market.Quote{}, fmt.Errorf("yahoo returned no price for %s", symbol)
	}
	if prevClose == 0 {
		prevClose = price
	}
	currency := meta.Get("currency").String()
	if currency == "" {
		currency = "USD"
	}
	return market.Quote{
		Symbol:        symbol,
		Name:          meta.Get("shortName").String(),
		Price:         price,
		PreviousClose: prevClose,
		Currency:      currency,
		UpdatedAt:     time.Now(),
	}, nil
}

// GetCandles fetches up to limit daily (or intraday) bars, oldest first.
func (s *Source) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}
	if interval == "" {
		interval = "1d"
	}
	if limit <= 0 {
		limit = 60
	}
	rng := rangeForInterval(interval, limit)
	path := fmt.Sprintf("/v8/finance/chart/%s?range=%s&interval=%s",
		url.PathEscape(symbol), rng, url.QueryEscape(interval))
	body, err := s.get(ctx, path)
	if err != nil {
		return nil, err
	}
	result := gjson.GetBytes(body, "chart.result.0")
	if !result.Exists() {
		return nil, fmt.Errorf("yahoo chart returned no result for %s", symbol)
	}
	timestamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()

	candles := make([]market.Candle, 0, len(timestamps))
	for i := range timestamps {
		if i >= len(closes) || closes[i].Type == gjson.Null {
			continue
		}
		c := market.Candle{
			OpenTime: time.Unix(timestamps[i].Int(), 0),
			Close:    closes[i].Float(),
		}
		if i < len(opens) {
			c.Open = opens[i].Float()
		}
		if i < len(highs) {
			c.High = highs[i].Float()
		}
		if i < len(lows) {
			c.Low = lows[i].Float()
		}
		if i < len(volumes) {
			c.Volume = volumes[i].Float()
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("yahoo returned no candles for %s", symbol)
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// FindTicker resolves a free-text query to the best matching equity symbol.
func (s *Source) FindTicker(ctx context.Context, query string) (market.SymbolMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return market.SymbolMatch{}, fmt.Errorf("query cannot be empty")
	}
	path := "/v1/finance/search?q=" + url.QueryEscape(query)
	body, err := s.get(ctx, path)
	if err != nil {
		return market.SymbolMatch{}, err
	}
	quotes := gjson.GetBytes(body, "quotes").Array()
	var fallback *market.SymbolMatch
	for _, q := range quotes {
		sym := q.Get("symbol").String()
		if sym == "" {
			continue
		}
		name := q.Get("longname").String()
		if name == "" {
			name = q.Get("shortname").String()
		}
		match := market.SymbolMatch{Symbol: sym, Name: name}
		if q.Get("quoteType").String() == "EQUITY" {
			return match, nil
		}
		if fallback == nil {
			fallback = &match
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return market.SymbolMatch{}, fmt.Errorf("no ticker found for %q", query)
}

func (s *Source) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building yahoo request failed: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling yahoo failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading yahoo response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("yahoo returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func rangeForInterval(interval string, limit int) string {
	switch interval {
	case "1m", "5m", "15m", "30m", "60m", "1h":
		return "5d"
	default:
		switch {
		case limit <= 22:
			return "1mo"
		case limit <= 66:
			return "3mo"
		case limit <= 130:
			return "6mo"
		default:
			return "1y"
		}
	}
}
