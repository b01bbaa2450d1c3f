// Package exposure implements optional per-wallet stake limits.
//
// A wallet's open exposure is the sum of its unsettled stakes. Two caps
// apply to a new wager:
//   - MaxPerMarket bounds open exposure on a single market
//   - MaxPerCategory bounds open exposure summed across every market that
//     shares the target market's category (correlated propositions, e.g.
//     several markets about the same election)
//
// A zero cap disables that check.
package exposure

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPerMarketLimitExceeded is returned when a wager would push a wallet's
	// open exposure on one market beyond MaxPerMarket.
	ErrPerMarketLimitExceeded = errors.New("exposure: per-market stake limit exceeded")

	// ErrCategoryLimitExceeded is returned when a wager would push the open
	// exposure across markets of one category beyond MaxPerCategory.
	ErrCategoryLimitExceeded = errors.New("exposure: category stake limit exceeded")
)

// Position is a wallet's open stake on one market.
type Position struct {
	MarketID int64
	Category string
	Staked   decimal.Decimal
}

// Limiter enforces stake caps.
type Limiter struct {
	MaxPerMarket   decimal.Decimal
	MaxPerCategory decimal.Decimal
}

// NewLimiter creates a limiter. Pass zero to disable a cap.
func NewLimiter(maxPerMarket, maxPerCategory decimal.Decimal) *Limiter {
	return &Limiter{
		MaxPerMarket:   maxPerMarket,
		MaxPerCategory: maxPerCategory,
	}
}

// Enabled reports whether any cap is configured.
func (l *Limiter) Enabled() bool {
	return l != nil && (l.MaxPerMarket.IsPositive() || l.MaxPerCategory.IsPositive())
}

// CheckLimit validates a new stake of amount on marketID (in category)
// against the wallet's existing open positions.
func (l *Limiter) CheckLimit(marketID int64, category string, amount decimal.Decimal, open []Position) error {
	if !l.Enabled() {
		return nil
	}

	inMarket := amount
	inCategory := amount
	for _, p := range open {
		if p.MarketID == marketID {
			inMarket = inMarket.Add(p.Staked)
		}
		if category != "" && p.Category == category {
			inCategory = inCategory.Add(p.Staked)
		}
	}

	if l.MaxPerMarket.IsPositive() && inMarket.GreaterThan(l.MaxPerMarket) {
		return ErrPerMarketLimitExceeded
	}
	if category != "" && l.MaxPerCategory.IsPositive() && inCategory.GreaterThan(l.MaxPerCategory) {
		return ErrCategoryLimitExceeded
	}
	return nil
}
