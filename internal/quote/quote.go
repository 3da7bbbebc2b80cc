package quote

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Quote is an externally supplied, time-varying price for a symbol. Two
// lookups for the same symbol may return different prices; callers that
// need a consistent price must capture one result and reuse it.
type Quote struct {
	Symbol string
	Name   string
	Price  decimal.Decimal
}

type Gateway interface {
	// Lookup resolves a ticker symbol to its current quote. It returns
	// errs.ErrInvalidSymbol for unknown symbols and errs.ErrQuoteUnavailable
	// for transient provider failures.
	Lookup(ctx context.Context, symbol string) (*Quote, error)
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
