package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/fintrack/stockledger/internal/config"
	"github.com/fintrack/stockledger/lib/errs"
	"github.com/shopspring/decimal"
)

// Client looks quotes up over HTTP from an IEX-style provider exposing
// GET {base}/quote/{SYMBOL}.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.QuoteConfig, log *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type quotePayload struct {
	Symbol string      `json:"symbol"`
	Name   string      `json:"companyName"`
	Price  json.Number `json:"latestPrice"`
}

func (c *Client) Lookup(ctx context.Context, symbol string) (*Quote, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, errs.ErrInvalidSymbol
	}

	endpoint := fmt.Sprintf("%s/quote/%s", c.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("quote: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errs.ErrInvalidSymbol
	case resp.StatusCode != http.StatusOK:
		c.log.Warn("quote provider returned non-200 status", "symbol", symbol, "status", resp.Status)
		return nil, fmt.Errorf("%w: status %s", errs.ErrQuoteUnavailable, resp.Status)
	}

	// Decode the price through json.Number so it never passes through
	// float64.
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var payload quotePayload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", errs.ErrQuoteUnavailable, err)
	}

	price, err := decimal.NewFromString(payload.Price.String())
	if err != nil {
		return nil, fmt.Errorf("%w: bad price %q", errs.ErrQuoteUnavailable, payload.Price)
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("%w: negative price %s", errs.ErrQuoteUnavailable, price)
	}

	if payload.Symbol == "" {
		payload.Symbol = symbol
	}

	return &Quote{
		Symbol: NormalizeSymbol(payload.Symbol),
		Name:   payload.Name,
		Price:  price.Round(2),
	}, nil
}
