package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownSymbol is returned when the provider does not recognize a symbol.
	ErrUnknownSymbol = errors.New("invalid symbol")

	// ErrUnavailable is returned when the provider cannot be reached or
	// answers with something other than a quote.
	ErrUnavailable = errors.New("quote provider unavailable")
)

// Quote is the current name and price for one ticker symbol
type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

// Provider looks up current quotes for ticker symbols
type Provider interface {
	Lookup(ctx context.Context, symbol string) (*Quote, error)
}

// Normalize canonicalizes a user-supplied symbol for lookups and ledger keys
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Client fetches quotes from an IEX-style REST API
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a quote client. The timeout caps the one external call a
// trade is allowed to block on.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Lookup fetches the current quote for a symbol. Symbols match
// case-insensitively.
func (c *Client) Lookup(ctx context.Context, symbol string) (*Quote, error) {
	symbol = Normalize(symbol)
	if symbol == "" {
		return nil, ErrUnknownSymbol
	}

	endpoint := fmt.Sprintf("%s/stock/%s/quote?token=%s",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUnknownSymbol
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body struct {
		Symbol      string          `json:"symbol"`
		CompanyName string          `json:"companyName"`
		LatestPrice decimal.Decimal `json:"latestPrice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode quote: %v", ErrUnavailable, err)
	}
	if body.Symbol == "" || !body.LatestPrice.IsPositive() {
		return nil, fmt.Errorf("%w: malformed quote for %s", ErrUnavailable, symbol)
	}

	return &Quote{
		Symbol: Normalize(body.Symbol),
		Name:   body.CompanyName,
		Price:  body.LatestPrice,
	}, nil
}
