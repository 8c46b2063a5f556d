package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered user. Cash is mutated only by trade commits.
type User struct {
	ID           int             `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Cash         decimal.Decimal `json:"cash"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Holding is a user's current position in one symbol. A row exists only
// while shares > 0; selling a position down to zero deletes it.
type Holding struct {
	UserID    int             `json:"-"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Shares    int64           `json:"shares"`
	LastPrice decimal.Decimal `json:"last_price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is one immutable history entry. Shares is the signed delta:
// positive for a buy, negative for a sell.
type Transaction struct {
	ID         int64           `json:"id"`
	UserID     int             `json:"-"`
	Symbol     string          `json:"symbol"`
	Shares     int64           `json:"shares"`
	Price      decimal.Decimal `json:"price"`
	ExecutedAt time.Time       `json:"executed_at"`
}
