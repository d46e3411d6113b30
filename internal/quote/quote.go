// Package quote looks up live prices from the Finnhub quote endpoint.
package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xtrntr/papertrade/internal/apperr"
	"github.com/xtrntr/papertrade/internal/metrics"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/money"
)

// DefaultBaseURL is Finnhub's REST API root
const DefaultBaseURL = "https://finnhub.io/api/v1"

// DefaultTimeout bounds one lookup
const DefaultTimeout = 5 * time.Second

// Provider resolves a symbol to a quote, or nil when none is available
type Provider interface {
	Lookup(ctx context.Context, symbol string) *models.Quote
}

// Client calls the Finnhub quote endpoint
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Log     *slog.Logger
	Metrics *metrics.Metrics
}

// NewClient creates a client with the default endpoint and timeout
func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
		Log:     logger,
		Metrics: m,
	}
}

// finnhubQuote is the subset of /quote we read; c is the current price
type finnhubQuote struct {
	Current *float64 `json:"c"`
}

// Normalize trims and upper-cases a ticker
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Lookup returns the current quote for symbol, or nil if it cannot be resolved.
// It never returns an error; the reason is logged.
func (c *Client) Lookup(ctx context.Context, symbol string) *models.Quote {
	q, err := c.Fetch(ctx, symbol)
	if err != nil {
		c.logger().Debug("quote unavailable", "symbol", Normalize(symbol), "error", err)
		return nil
	}
	return q
}

// Fetch is Lookup with the failure reason: UnknownSymbol for blank or
// unrecognised symbols, ProviderUnavailable for transport and payload failures.
func (c *Client) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = Normalize(symbol)
	if symbol == "" {
		return nil, apperr.New(apperr.UnknownSymbol, "must provide stock symbol")
	}

	start := time.Now()
	q, err := c.fetch(ctx, symbol)
	c.Metrics.Quote(outcome(err), time.Since(start))
	return q, err
}

func (c *Client) fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	addr := fmt.Sprintf("%s/quote?symbol=%s&token=%s",
		strings.TrimRight(c.BaseURL, "/"), url.QueryEscape(symbol), url.QueryEscape(c.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		// the URL carries the token; keep it out of the error
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "", unwrapURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "", fmt.Errorf("quote %s: %s", symbol, resp.Status))
	}

	var data finnhubQuote
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "", fmt.Errorf("decode quote %s: %w", symbol, err))
	}

	// Finnhub answers unknown symbols with all-zero fields; sub-cent prices round to zero
	if data.Current == nil {
		return nil, apperr.New(apperr.UnknownSymbol, "invalid stock symbol")
	}
	price := money.FromFloat(*data.Current)
	if !price.IsPositive() {
		return nil, apperr.New(apperr.UnknownSymbol, "invalid stock symbol")
	}

	return &models.Quote{
		Name:   symbol, // the quote endpoint carries no company name
		Symbol: symbol,
		Price:  price,
	}, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (c *Client) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

func outcome(err error) string {
	switch apperr.KindOf(err) {
	case apperr.UnknownSymbol:
		return "unknown"
	case apperr.ProviderUnavailable:
		return "unavailable"
	}
	if err != nil {
		return "error"
	}
	return "ok"
}

func unwrapURLError(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return ue.Err
	}
	return err
}
