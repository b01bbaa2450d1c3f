package aggregate_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/wager-engine/internal/aggregate"
	"github.com/atmx/wager-engine/internal/apperr"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/store"
)

func seedMarket(t *testing.T, ms *store.MemoryStore, title string) *model.Market {
	t.Helper()
	m := &model.Market{
		Title:     title,
		Status:    model.StatusActive,
		YesPrice:  d("0.7"),
		NoPrice:   d("0.3"),
		CreatedAt: base,
	}
	require.NoError(t, ms.CreateMarket(context.Background(), m))
	return m
}

func placeWager(t *testing.T, ms *store.MemoryStore, marketID int64, wallet, amount string, pred model.Outcome, potential string, at time.Time) {
	t.Helper()
	require.NoError(t, ms.InsertWager(context.Background(), &model.Wager{
		MarketID:        marketID,
		Wallet:          wallet,
		Amount:          d(amount),
		Prediction:      pred,
		PriceAtBet:      d("0.5"),
		PotentialPayout: d(potential),
		PlacedAt:        at,
	}, nil))
}

func resolve(t *testing.T, ms *store.MemoryStore, marketID int64, outcome model.Outcome) {
	t.Helper()
	_, err := ms.ResolveMarket(context.Background(), marketID, func(m model.Market, open []model.Wager) (store.Settlement, error) {
		for i := range open {
			if open[i].Prediction == outcome {
				open[i].ActualPayout = open[i].PotentialPayout
			}
			open[i].IsSettled = true
		}
		o := outcome
		now := base
		m.Status, m.Outcome, m.ResolvedAt = model.StatusResolved, &o, &now
		return store.Settlement{Market: m, Wagers: open}, nil
	})
	require.NoError(t, err)
}

func TestGetPortfolio_EnrichesWagers(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	eng := aggregate.NewEngine(ms)

	done := seedMarket(t, ms, "Resolved market")
	live := seedMarket(t, ms, "Live market")

	placeWager(t, ms, done.ID, "0xalice", "100", model.OutcomeYes, "150", base)
	placeWager(t, ms, live.ID, "0xalice", "50", model.OutcomeNo, "80", base.Add(time.Hour))
	placeWager(t, ms, live.ID, "0xbob", "10", model.OutcomeYes, "20", base.Add(time.Hour))
	resolve(t, ms, done.ID, model.OutcomeYes)

	p, err := eng.GetPortfolio(ctx, "  0xalice ")
	require.NoError(t, err)

	assert.Equal(t, "0xalice", p.User.Wallet)
	assert.True(t, p.Metrics.TotalInvested.Equal(d("150")))
	assert.True(t, p.Metrics.TotalReturns.Equal(d("150")))
	assert.True(t, p.Metrics.UnrealizedValue.Equal(d("80")))
	assert.True(t, p.Metrics.ProfitLoss.IsZero())
	assert.Equal(t, 2, p.Metrics.TotalBets)
	assert.Equal(t, 1, p.Metrics.ActiveBets)
	assert.Equal(t, 1, p.Metrics.SettledBets)

	require.Len(t, p.Wagers, 2)
	newest := p.Wagers[0]
	assert.Equal(t, "Live market", newest.MarketTitle)
	assert.Equal(t, model.StatusActive, newest.MarketStatus)
	assert.Nil(t, newest.Outcome)
	assert.True(t, newest.CurrentPrice.Equal(d("0.3")), "no-side price = %s", newest.CurrentPrice)

	oldest := p.Wagers[1]
	assert.Equal(t, model.StatusResolved, oldest.MarketStatus)
	require.NotNil(t, oldest.Outcome)
	assert.Equal(t, model.OutcomeYes, *oldest.Outcome)
}

func TestGetPortfolio_Errors(t *testing.T) {
	eng := aggregate.NewEngine(store.NewMemoryStore())

	_, err := eng.GetPortfolio(context.Background(), "   ")
	assert.Equal(t, "wallet_required", apperr.CodeOf(err))

	_, err = eng.GetPortfolio(context.Background(), "0xnobody")
	assert.Equal(t, "user_not_found", apperr.CodeOf(err))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetPortfolio_PagesThroughLargeHistory(t *testing.T) {
	ms := store.NewMemoryStore()
	m := seedMarket(t, ms, "Busy")
	for i := 0; i < 250; i++ {
		placeWager(t, ms, m.ID, "0xwhale", "1", model.OutcomeYes, "2", base.Add(time.Duration(i)*time.Second))
	}

	p, err := aggregate.NewEngine(ms).GetPortfolio(context.Background(), "0xwhale")
	require.NoError(t, err)
	assert.Equal(t, 250, p.Metrics.TotalBets)
	assert.True(t, p.Metrics.TotalInvested.Equal(d("250")))
}

func TestGetLeaderboard(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	eng := aggregate.NewEngine(ms)

	m := seedMarket(t, ms, "Final")
	placeWager(t, ms, m.ID, "0xa", "10", model.OutcomeYes, "30", base)
	placeWager(t, ms, m.ID, "0xb", "10", model.OutcomeNo, "15", base)
	resolve(t, ms, m.ID, model.OutcomeYes)
	require.NoError(t, ms.CreateUser(ctx, &model.User{Wallet: "0xidle", CreatedAt: base}))

	got, err := eng.GetLeaderboard(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 2, "users without activity are excluded")
	assert.Equal(t, "0xa", got[0].Wallet)
	assert.Equal(t, 1, got[0].Rank)
	assert.True(t, got[0].TotalWinnings.Equal(d("30")))
	assert.Equal(t, 1, got[1].LostBets)

	_, err = eng.GetLeaderboard(ctx, "karma", 10)
	assert.Equal(t, "invalid_sort", apperr.CodeOf(err))
}

func TestPlatformSummary(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	eng := aggregate.NewEngine(ms)

	for i := 0; i < 3; i++ {
		seedMarket(t, ms, fmt.Sprintf("m%d", i))
	}
	closed := seedMarket(t, ms, "closed")
	_, err := ms.CloseMarket(ctx, closed.ID)
	require.NoError(t, err)
	require.NoError(t, ms.CreateUser(ctx, &model.User{Wallet: "0xa", CreatedAt: base}))

	s, err := eng.PlatformSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.ActiveMarkets)
	assert.Equal(t, int64(4), s.TotalMarkets)
	assert.Equal(t, int64(1), s.TotalUsers)
}
