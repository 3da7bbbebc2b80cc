package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceUpdate struct {
	Symbol string  `json:"s"`
	Price  float64 `json:"p"`
}

// HoldingView values one open position at a live quote. Degraded marks a
// row whose quote could not be fetched; its price and total are zero.
type HoldingView struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Shares   int64           `json:"shares"`
	Price    decimal.Decimal `json:"price"`
	Total    decimal.Decimal `json:"total"`
	Degraded bool            `json:"degraded,omitempty"`
}

type PortfolioView struct {
	UserID   string          `json:"userId"`
	Cash     decimal.Decimal `json:"cash"`
	Holdings []HoldingView   `json:"holdings"`
	NetWorth decimal.Decimal `json:"netWorth"`
	Partial  bool            `json:"partial,omitempty"`
}

type HistoryEntry struct {
	Symbol    string          `json:"symbol"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"createdAt"`
}
