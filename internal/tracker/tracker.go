// Package tracker keeps each market's staked totals, prices and rolling
// volume consistent with its wager set, and owns the market price history.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/apperr"
	"github.com/atmx/wager-engine/internal/live"
	"github.com/atmx/wager-engine/internal/metrics"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/pricing"
	"github.com/atmx/wager-engine/internal/store"
)

const (
	// VolumeWindow is the trailing window of Market.Volume24h.
	VolumeWindow = 24 * time.Hour

	DefaultChartLimit    = 100
	MaxChartLimit        = 100
	DefaultTrendingLimit = 10
	MaxTrendingLimit     = 50
)

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)

	// priceSumTolerance bounds |yes + no - 1| for recorded chart points.
	priceSumTolerance = decimal.New(1, -6)
)

// Tracker applies wagers to market aggregates. It holds no state of its
// own beyond its collaborators.
type Tracker struct {
	store  store.Store
	pricer pricing.Pricer
	pub    live.Publisher
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a tracker. A nil publisher discards events.
func New(st store.Store, pricer pricing.Pricer, pub live.Publisher, opts ...Option) *Tracker {
	if pub == nil {
		pub = live.Nop{}
	}
	t := &Tracker{
		store:  st,
		pricer: pricer,
		pub:    pub,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ApplyWager folds one wager into its market exactly once. The boolean
// reports whether this call did the work; a repeated call returns the
// current market and false.
func (t *Tracker) ApplyWager(ctx context.Context, wagerID int64) (*model.Market, bool, error) {
	var wager model.Wager
	since := t.now().Add(-VolumeWindow)

	m, applied, err := t.store.ApplyWager(ctx, wagerID, since, func(m model.Market, w model.Wager) (model.Market, model.StatsDelta) {
		wager = w
		if w.Prediction == model.OutcomeYes {
			m.TotalYesAmount = m.TotalYesAmount.Add(w.Amount)
		} else {
			m.TotalNoAmount = m.TotalNoAmount.Add(w.Amount)
		}
		m.YesPrice, m.NoPrice = t.pricer.Prices(m.TotalYesAmount, m.TotalNoAmount)
		return m, model.StatsDelta{
			Fees:   w.PlatformFee,
			Volume: w.Amount,
			Bets:   1,
			Pool:   w.Amount.Sub(w.PlatformFee),
		}
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, apperr.NotFound("wager_not_found", fmt.Sprintf("wager %d not found", wagerID))
		}
		return nil, false, apperr.Store("apply wager", err)
	}
	if !applied {
		return m, false, nil
	}

	metrics.AppliedWagers.Inc()
	metrics.MarketVolume.WithLabelValues(strconv.FormatInt(m.ID, 10), string(wager.Prediction)).
		Add(wager.Amount.InexactFloat64())

	// The chart point is derived history; losing it never undoes the apply.
	point := &model.ChartPoint{
		MarketID:  m.ID,
		Timestamp: t.now(),
		YesPrice:  m.YesPrice,
		NoPrice:   m.NoPrice,
		Volume:    wager.Amount,
	}
	if err := t.store.InsertChartPoint(ctx, point); err != nil {
		slog.Warn("chart point after wager failed", "market_id", m.ID, "wager_id", wagerID, "err", err)
	} else {
		metrics.ChartPoints.Inc()
	}

	slog.Info("wager applied",
		"wager_id", wagerID,
		"market_id", m.ID,
		"prediction", wager.Prediction,
		"yes_price", m.YesPrice.String(),
		"no_price", m.NoPrice.String(),
		"volume_24h", m.Volume24h.String(),
	)

	t.pub.Publish(model.Event{
		Type:       model.EventWagerPlaced,
		MarketID:   m.ID,
		YesPrice:   m.YesPrice.String(),
		NoPrice:    m.NoPrice.String(),
		Prediction: string(wager.Prediction),
		Amount:     wager.Amount.String(),
		Timestamp:  point.Timestamp,
	})
	return m, true, nil
}

// ReconcileMarket applies every wager of a market that is committed but not
// yet reflected in its aggregates. It returns how many were applied.
func (t *Tracker) ReconcileMarket(ctx context.Context, marketID int64) (int, error) {
	if _, err := t.getMarket(ctx, marketID); err != nil {
		return 0, err
	}

	ids, err := t.store.UnappliedWagerIDs(ctx, marketID)
	if err != nil {
		return 0, apperr.Store("list unapplied wagers", err)
	}

	count := 0
	for _, id := range ids {
		_, applied, err := t.ApplyWager(ctx, id)
		if err != nil {
			return count, err
		}
		if applied {
			count++
		}
	}
	if count > 0 {
		slog.Info("market reconciled", "market_id", marketID, "applied", count)
	}
	return count, nil
}

// ChartInput is a client-supplied price sample.
type ChartInput struct {
	MarketID  int64
	YesPrice  decimal.Decimal
	NoPrice   decimal.Decimal
	Volume    decimal.Decimal
	Timestamp *time.Time
}

// RecordChartPoint validates and appends a price sample. A missing
// timestamp means now.
func (t *Tracker) RecordChartPoint(ctx context.Context, in ChartInput) (*model.ChartPoint, error) {
	if !inUnitRange(in.YesPrice) || !inUnitRange(in.NoPrice) {
		return nil, apperr.Validation("invalid_price", "yes_price and no_price must be between 0 and 1")
	}
	if in.Volume.IsNegative() {
		return nil, apperr.Validation("invalid_volume", "volume must not be negative")
	}
	if in.YesPrice.Add(in.NoPrice).Sub(one).Abs().GreaterThan(priceSumTolerance) {
		return nil, apperr.Validation("price_sum", "yes_price and no_price must sum to 1")
	}

	ts := t.now()
	if in.Timestamp != nil {
		ts = in.Timestamp.UTC()
	}
	p := &model.ChartPoint{
		MarketID:  in.MarketID,
		Timestamp: ts,
		YesPrice:  in.YesPrice,
		NoPrice:   in.NoPrice,
		Volume:    in.Volume,
	}
	if err := t.store.InsertChartPoint(ctx, p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, marketNotFound(in.MarketID)
		}
		return nil, apperr.Store("insert chart point", err)
	}
	metrics.ChartPoints.Inc()

	t.pub.Publish(model.Event{
		Type:      model.EventChartPoint,
		MarketID:  p.MarketID,
		YesPrice:  p.YesPrice.String(),
		NoPrice:   p.NoPrice.String(),
		Timestamp: p.Timestamp,
	})
	return p, nil
}

// QueryChartRange returns a market's samples in ascending time order within
// the inclusive [from, to] window. An inverted window yields no points.
func (t *Tracker) QueryChartRange(ctx context.Context, marketID int64, from, to *time.Time, limit int) ([]model.ChartPoint, error) {
	if from != nil && to != nil && from.After(*to) {
		return []model.ChartPoint{}, nil
	}
	if _, err := t.getMarket(ctx, marketID); err != nil {
		return nil, err
	}

	points, err := t.store.ListChartPoints(ctx, store.ChartFilter{
		MarketID: marketID,
		From:     from,
		To:       to,
		Limit:    store.ClampLimit(limit, DefaultChartLimit, MaxChartLimit),
	})
	if err != nil {
		return nil, apperr.Store("list chart points", err)
	}
	if points == nil {
		points = []model.ChartPoint{}
	}
	return points, nil
}

// TrendingMarkets returns active markets by descending 24h volume.
func (t *Tracker) TrendingMarkets(ctx context.Context, limit int) ([]model.Market, error) {
	markets, err := t.store.ListMarkets(ctx, store.MarketFilter{
		Status:  model.StatusActive,
		OrderBy: store.OrderVolume24h,
		Limit:   store.ClampLimit(limit, DefaultTrendingLimit, MaxTrendingLimit),
	})
	if err != nil {
		return nil, apperr.Store("list trending markets", err)
	}
	if markets == nil {
		markets = []model.Market{}
	}
	return markets, nil
}

func (t *Tracker) getMarket(ctx context.Context, id int64) (*model.Market, error) {
	m, err := t.store.GetMarket(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, marketNotFound(id)
		}
		return nil, apperr.Store("get market", err)
	}
	return m, nil
}

func marketNotFound(id int64) error {
	return apperr.NotFound("market_not_found", fmt.Sprintf("market %d not found", id))
}

func inUnitRange(v decimal.Decimal) bool {
	return !v.LessThan(zero) && !v.GreaterThan(one)
}
