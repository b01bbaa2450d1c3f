package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/atmx/wager-engine/internal/apperr"
	"github.com/atmx/wager-engine/internal/live"
	"github.com/atmx/wager-engine/internal/metrics"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/store"
)

// Result is the outcome of a resolution.
type Result struct {
	Market        model.Market  `json:"market"`
	SettledWagers []model.Wager `json:"settled_wagers"`
}

// Engine drives market lifecycle transitions.
type Engine struct {
	store  store.Store
	locker Locker
	pub    live.Publisher
	now    func() time.Time
}

// NewEngine creates a settlement engine. A nil locker falls back to an
// in-process LocalLocker; a nil publisher discards events.
func NewEngine(st store.Store, locker Locker, pub live.Publisher) *Engine {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if pub == nil {
		pub = live.Nop{}
	}
	return &Engine{
		store:  st,
		locker: locker,
		pub:    pub,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the resolution timestamp source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// ResolveMarket fixes the outcome of a market and settles all of its open
// wagers atomically. A resolved market can never be resolved again.
func (e *Engine) ResolveMarket(ctx context.Context, marketID int64, outcome string) (*Result, error) {
	o, ok := model.ParseOutcome(outcome)
	if !ok {
		return nil, apperr.Validation("invalid_outcome", "outcome must be yes or no")
	}

	release, err := e.locker.Lock(ctx, lockKey(marketID))
	if err != nil {
		if errors.Is(err, store.ErrLockHeld) {
			return nil, apperr.Conflict("resolution_in_progress", fmt.Sprintf("market %d is being resolved", marketID))
		}
		return nil, apperr.Store("acquire settlement lock", err)
	}
	defer release()

	at := e.now()
	s, err := e.store.ResolveMarket(ctx, marketID, func(m model.Market, open []model.Wager) (store.Settlement, error) {
		return Settle(m, open, o, at), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, marketNotFound(marketID)
		case errors.Is(err, store.ErrAlreadyResolved):
			return nil, apperr.Conflict("already_resolved", fmt.Sprintf("market %d is already resolved", marketID))
		}
		return nil, apperr.Store("resolve market", err)
	}

	metrics.MarketsResolved.WithLabelValues(string(o)).Inc()
	metrics.SettledWagers.Add(float64(len(s.Wagers)))

	slog.Info("market resolved",
		"market_id", marketID,
		"outcome", o,
		"settled", len(s.Wagers),
		"paid_out", s.Stats.Pool.Neg().String(),
	)

	e.pub.Publish(model.Event{
		Type:      model.EventMarketResolved,
		MarketID:  marketID,
		YesPrice:  s.Market.YesPrice.String(),
		NoPrice:   s.Market.NoPrice.String(),
		Outcome:   string(o),
		Timestamp: at,
	})

	wagers := s.Wagers
	if wagers == nil {
		wagers = []model.Wager{}
	}
	return &Result{Market: s.Market, SettledWagers: wagers}, nil
}

// CloseMarket stops an active market from accepting wagers without
// resolving it.
func (e *Engine) CloseMarket(ctx context.Context, marketID int64) (*model.Market, error) {
	m, err := e.store.CloseMarket(ctx, marketID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, marketNotFound(marketID)
		case errors.Is(err, store.ErrMarketNotActive):
			return nil, apperr.Conflict("market_not_active", fmt.Sprintf("market %d is not active", marketID))
		}
		return nil, apperr.Store("close market", err)
	}

	slog.Info("market closed", "market_id", marketID)
	e.pub.Publish(model.Event{
		Type:      model.EventMarketClosed,
		MarketID:  marketID,
		YesPrice:  m.YesPrice.String(),
		NoPrice:   m.NoPrice.String(),
		Timestamp: e.now(),
	})
	return m, nil
}

func lockKey(marketID int64) string {
	return "settle:" + strconv.FormatInt(marketID, 10)
}

func marketNotFound(id int64) error {
	return apperr.NotFound("market_not_found", fmt.Sprintf("market %d not found", id))
}
