package engine

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stockfolio/stockfolio/internal/db"
	"github.com/stockfolio/stockfolio/internal/models"
	"github.com/stockfolio/stockfolio/internal/quotes"
)

// ErrInvalidQuantity is returned when a trade requests less than one share.
var ErrInvalidQuantity = errors.New("shares must be a positive whole number")

// Store is the slice of the ledger store the engine depends on
type Store interface {
	GetUser(ctx context.Context, id int) (*models.User, error)
	GetHolding(ctx context.Context, userID int, symbol string) (*models.Holding, error)
	GetUserHoldings(ctx context.Context, userID int) ([]models.Holding, error)
	GetUserTransactions(ctx context.Context, userID int) ([]models.Transaction, error)
	ExecuteTrade(ctx context.Context, userID int, symbol, name string, sharesDelta int64, price decimal.Decimal) (decimal.Decimal, error)
}

// Engine validates and executes buy/sell requests and computes portfolio
// valuations. Request identity is always an explicit userID argument.
type Engine struct {
	store  Store
	quotes quotes.Provider
	log    *zap.SugaredLogger
}

// New creates a trading engine
func New(store Store, provider quotes.Provider, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{store: store, quotes: provider, log: log}
}

// Receipt summarizes one committed trade
type Receipt struct {
	Symbol  string          `json:"symbol"`
	Name    string          `json:"name"`
	Shares  int64           `json:"shares"`
	Price   decimal.Decimal `json:"price"`
	Total   decimal.Decimal `json:"total"`
	NewCash decimal.Decimal `json:"cash"`
}

// PortfolioLine is one holding valued at the current quote
type PortfolioLine struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Shares       int64           `json:"shares"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Value        decimal.Decimal `json:"value"`
	PriceStale   bool            `json:"price_stale,omitempty"`
}

// Portfolio is the full valuation read model for one user
type Portfolio struct {
	Cash       decimal.Decimal `json:"cash"`
	Holdings   []PortfolioLine `json:"holdings"`
	StockValue decimal.Decimal `json:"stock_value"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// Buy purchases shares of a symbol. The quote is fetched exactly once and
// used for both the affordability check and the committed price, so the two
// cannot drift within one trade. No ledger mutation happens unless the
// store's atomic commit succeeds.
func (e *Engine) Buy(ctx context.Context, userID int, symbol string, shares int64) (*Receipt, error) {
	if shares < 1 {
		return nil, ErrInvalidQuantity
	}

	quote, err := e.quotes.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	cost := quote.Price.Mul(decimal.NewFromInt(shares))
	if user.Cash.LessThan(cost) {
		return nil, db.ErrInsufficientFunds
	}

	// The store re-checks cash inside the commit, so a concurrent trade
	// landing after the read above cannot overdraw the account.
	newCash, err := e.store.ExecuteTrade(ctx, userID, quote.Symbol, quote.Name, shares, quote.Price)
	if err != nil {
		return nil, err
	}

	e.log.Infow("buy committed",
		"user_id", userID, "symbol", quote.Symbol, "shares", shares, "price", quote.Price)
	return &Receipt{
		Symbol:  quote.Symbol,
		Name:    quote.Name,
		Shares:  shares,
		Price:   quote.Price,
		Total:   cost,
		NewCash: newCash,
	}, nil
}

// Sell sells shares of a held symbol at the current quote. Selling up to and
// including the full position is allowed; selling the full position deletes
// the holding.
func (e *Engine) Sell(ctx context.Context, userID int, symbol string, shares int64) (*Receipt, error) {
	if shares < 1 {
		return nil, ErrInvalidQuantity
	}

	symbol = quotes.Normalize(symbol)
	holding, err := e.store.GetHolding(ctx, userID, symbol)
	if err != nil {
		return nil, err
	}
	if holding == nil || holding.Shares < shares {
		return nil, db.ErrInsufficientShares
	}

	// A live price is still required to book proceeds and history
	quote, err := e.quotes.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	newCash, err := e.store.ExecuteTrade(ctx, userID, quote.Symbol, quote.Name, -shares, quote.Price)
	if err != nil {
		return nil, err
	}

	proceeds := quote.Price.Mul(decimal.NewFromInt(shares))
	e.log.Infow("sell committed",
		"user_id", userID, "symbol", quote.Symbol, "shares", shares, "price", quote.Price)
	return &Receipt{
		Symbol:  quote.Symbol,
		Name:    quote.Name,
		Shares:  shares,
		Price:   quote.Price,
		Total:   proceeds,
		NewCash: newCash,
	}, nil
}

// Portfolio values the user's holdings at current quotes. A quote failure
// for one symbol marks that line stale and values it at the last recorded
// trade price instead of failing the whole read. Read-only.
func (e *Engine) Portfolio(ctx context.Context, userID int) (*Portfolio, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings, err := e.store.GetUserHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{Cash: user.Cash, StockValue: decimal.Zero}
	for _, h := range holdings {
		line := PortfolioLine{Symbol: h.Symbol, Name: h.Name, Shares: h.Shares}
		quote, err := e.quotes.Lookup(ctx, h.Symbol)
		if err != nil {
			e.log.Warnw("quote unavailable, valuing at last trade price",
				"symbol", h.Symbol, "error", err)
			line.CurrentPrice = h.LastPrice
			line.PriceStale = true
		} else {
			line.CurrentPrice = quote.Price
		}
		line.Value = line.CurrentPrice.Mul(decimal.NewFromInt(h.Shares))
		p.StockValue = p.StockValue.Add(line.Value)
		p.Holdings = append(p.Holdings, line)
	}
	p.TotalValue = p.Cash.Add(p.StockValue)
	return p, nil
}

// History returns the user's transaction log, newest first
func (e *Engine) History(ctx context.Context, userID int) ([]models.Transaction, error) {
	return e.store.GetUserTransactions(ctx, userID)
}

// GetQuote looks up a single symbol for the quote page
func (e *Engine) GetQuote(ctx context.Context, symbol string) (*quotes.Quote, error) {
	return e.quotes.Lookup(ctx, symbol)
}
