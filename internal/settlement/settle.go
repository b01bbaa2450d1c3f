// Package settlement resolves markets and settles their wagers.
//
// A market moves active -> closed -> resolved; closing is optional and
// resolution is terminal. Resolution pays every open wager whose prediction
// matches the outcome its frozen potential payout and every other open
// wager zero, in the same store transaction that marks the market resolved.
package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/store"
)

// Payout returns the settled payout of w under outcome.
func Payout(w model.Wager, outcome model.Outcome) decimal.Decimal {
	if w.Prediction == outcome {
		return w.PotentialPayout
	}
	return decimal.Zero
}

// Settle computes the resolution of m. It does not touch wagers that are
// already settled; payouts leave the pool, so the stats delta debits it by
// their total.
func Settle(m model.Market, open []model.Wager, outcome model.Outcome, at time.Time) store.Settlement {
	settled := make([]model.Wager, 0, len(open))
	paid := decimal.Zero
	for _, w := range open {
		if w.IsSettled {
			continue
		}
		w.ActualPayout = Payout(w, outcome)
		w.IsSettled = true
		paid = paid.Add(w.ActualPayout)
		settled = append(settled, w)
	}

	o := outcome
	ts := at
	m.Status = model.StatusResolved
	m.Outcome = &o
	m.ResolvedAt = &ts

	return store.Settlement{
		Market: m,
		Wagers: settled,
		Stats:  model.StatsDelta{Pool: paid.Neg()},
	}
}
