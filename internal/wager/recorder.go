// Package wager records wagers against markets.
//
// Fee and potential payout are computed by the caller; the recorder checks
// every input before anything is written and then hands the committed wager
// to the tracker, which folds it into market aggregates exactly once.
package wager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/apperr"
	"github.com/atmx/wager-engine/internal/exposure"
	"github.com/atmx/wager-engine/internal/metrics"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/store"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = store.MaxPageSize
)

var one = decimal.NewFromInt(1)

// Applier folds a committed wager into its market. *tracker.Tracker
// implements it.
type Applier interface {
	ApplyWager(ctx context.Context, wagerID int64) (*model.Market, bool, error)
}

// PlaceInput is a wager request.
type PlaceInput struct {
	MarketID        int64
	Wallet          string
	Amount          decimal.Decimal
	Prediction      string
	PriceAtBet      decimal.Decimal
	PotentialPayout decimal.Decimal
	PlatformFee     decimal.Decimal
	TxRef           string
}

// Recorder validates and persists wagers.
type Recorder struct {
	store   store.Store
	applier Applier
	limiter *exposure.Limiter
	now     func() time.Time
}

// NewRecorder creates a recorder. limiter may be nil.
func NewRecorder(st store.Store, applier Applier, limiter *exposure.Limiter) *Recorder {
	return &Recorder{
		store:   st,
		applier: applier,
		limiter: limiter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PlaceWager records a wager. The returned wager is committed even when
// the aggregate update fails; that failure is logged and repaired by a
// later apply or reconcile.
func (r *Recorder) PlaceWager(ctx context.Context, in PlaceInput) (*model.Wager, error) {
	start := time.Now()
	defer func() { metrics.WagerLatency.Observe(time.Since(start).Seconds()) }()

	w, err := r.place(ctx, in)
	if err != nil {
		metrics.WagerRejections.WithLabelValues(apperr.CodeOf(err)).Inc()
		return nil, err
	}
	return w, nil
}

func (r *Recorder) place(ctx context.Context, in PlaceInput) (*model.Wager, error) {
	pred, err := validate(&in)
	if err != nil {
		return nil, err
	}

	m, err := r.store.GetMarket(ctx, in.MarketID)
	if err != nil {
		return nil, mapStoreErr("get market", in.MarketID, err)
	}
	if m.Status != model.StatusActive {
		return nil, marketNotActive(in.MarketID)
	}

	w := &model.Wager{
		MarketID:        in.MarketID,
		Wallet:          in.Wallet,
		Amount:          in.Amount,
		Prediction:      pred,
		PriceAtBet:      in.PriceAtBet,
		PotentialPayout: in.PotentialPayout,
		ActualPayout:    decimal.Zero,
		PlatformFee:     in.PlatformFee,
		TxRef:           strings.TrimSpace(in.TxRef),
		PlacedAt:        r.now(),
	}
	// The store re-checks the market status and the stake caps in the
	// insert transaction, so a resolution that started after GetMarket
	// still wins and concurrent placements cannot overshoot a cap.
	if err := r.store.InsertWager(ctx, w, r.exposureCheck(m, in.Amount)); err != nil {
		return nil, mapStoreErr("insert wager", in.MarketID, err)
	}

	metrics.WagersTotal.WithLabelValues(string(pred)).Inc()
	slog.Info("wager recorded",
		"wager_id", w.ID,
		"market_id", w.MarketID,
		"prediction", pred,
		"amount", w.Amount.String(),
		"price_at_bet", w.PriceAtBet.String(),
	)

	if r.applier != nil {
		if _, applied, err := r.applier.ApplyWager(ctx, w.ID); err != nil {
			slog.Error("wager aggregate update failed, pending reconcile",
				"wager_id", w.ID, "market_id", w.MarketID, "err", err)
		} else {
			w.Applied = applied
		}
	}
	return w, nil
}

// validate normalizes in and checks every field in a fixed order.
func validate(in *PlaceInput) (model.Outcome, error) {
	in.Wallet = strings.TrimSpace(in.Wallet)
	if in.Wallet == "" {
		return "", apperr.Validation("wallet_required", "wallet is required")
	}
	if !in.Amount.IsPositive() {
		return "", apperr.Validation("invalid_amount", "amount must be greater than 0")
	}
	pred, ok := model.ParseOutcome(in.Prediction)
	if !ok {
		return "", apperr.Validation("invalid_prediction", "prediction must be yes or no")
	}
	if in.PriceAtBet.IsNegative() || in.PriceAtBet.GreaterThan(one) {
		return "", apperr.Validation("invalid_price", "price_at_bet must be between 0 and 1")
	}
	if in.PotentialPayout.IsNegative() {
		return "", apperr.Validation("invalid_payout", "potential_payout must not be negative")
	}
	if in.PlatformFee.IsNegative() {
		return "", apperr.Validation("invalid_fee", "platform_fee must not be negative")
	}
	return pred, nil
}

// exposureCheck returns the store check enforcing the stake caps for a new
// stake of amount on target, or nil when no cap is configured.
func (r *Recorder) exposureCheck(target *model.Market, amount decimal.Decimal) store.WagerCheck {
	if !r.limiter.Enabled() {
		return nil
	}
	return func(open []store.Exposure) error {
		positions := make([]exposure.Position, 0, len(open))
		for _, e := range open {
			positions = append(positions, exposure.Position{MarketID: e.MarketID, Category: e.Category, Staked: e.Staked})
		}
		if err := r.limiter.CheckLimit(target.ID, target.Category, amount, positions); err != nil {
			return apperr.Validation("exposure_limit", err.Error())
		}
		return nil
	}
}

// ListWagers returns wagers newest first. Limit defaults to 50 and is
// clamped to [1, 100]; a negative offset starts at 0.
func (r *Recorder) ListWagers(ctx context.Context, f store.WagerFilter) ([]model.Wager, error) {
	f.Limit = store.ClampLimit(f.Limit, DefaultListLimit, MaxListLimit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Wallet != "" {
		f.Wallet = strings.TrimSpace(f.Wallet)
	}

	wagers, err := r.store.ListWagers(ctx, f)
	if err != nil {
		return nil, apperr.Store("list wagers", err)
	}
	if wagers == nil {
		wagers = []model.Wager{}
	}
	return wagers, nil
}

func mapStoreErr(op string, marketID int64, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("market_not_found", fmt.Sprintf("market %d not found", marketID))
	case errors.Is(err, store.ErrMarketNotActive):
		return marketNotActive(marketID)
	}
	return apperr.Store(op, err)
}

func marketNotActive(id int64) error {
	return apperr.Conflict("market_not_active", fmt.Sprintf("market %d is not accepting wagers", id))
}
