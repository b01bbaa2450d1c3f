package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/store"
)

// openPostgres connects to WAGER_TEST_DATABASE_URL and applies migrations.
func openPostgres(t *testing.T) *store.PostgresStore {
	t.Helper()
	dsn := os.Getenv("WAGER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WAGER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := store.Connect(ctx, store.PoolConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = store.RunMigrations(ctx, pool)
	require.NoError(t, err)
	return store.NewPostgresStore(pool)
}

func newActiveMarket(t *testing.T, s store.Store) *model.Market {
	t.Helper()
	m := &model.Market{
		Title:     "Concurrent settlement",
		Status:    model.StatusActive,
		YesPrice:  decimal.RequireFromString("0.5"),
		NoPrice:   decimal.RequireFromString("0.5"),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateMarket(context.Background(), m))
	return m
}

// ApplyWager and ResolveMarket lock the same market and wager rows. Running
// them together must never fail with a deadlock.
func TestPostgres_ApplyAndResolveConcurrently(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()

	apply := func(m model.Market, _ model.Wager) (model.Market, model.StatsDelta) {
		return m, model.StatsDelta{}
	}
	settle := func(m model.Market, open []model.Wager) (store.Settlement, error) {
		yes := model.OutcomeYes
		now := time.Now().UTC()
		m.Status = model.StatusResolved
		m.Outcome = &yes
		m.ResolvedAt = &now
		for i := range open {
			open[i].ActualPayout = decimal.Zero
		}
		return store.Settlement{Market: m, Wagers: open}, nil
	}

	for round := 0; round < 20; round++ {
		m := newActiveMarket(t, s)
		w := &model.Wager{
			MarketID:   m.ID,
			Wallet:     "0xrace",
			Amount:     decimal.RequireFromString("1"),
			Prediction: model.OutcomeYes,
			PlacedAt:   time.Now().UTC(),
		}
		require.NoError(t, s.InsertWager(ctx, w, nil))

		var g errgroup.Group
		g.Go(func() error {
			_, _, err := s.ApplyWager(ctx, w.ID, time.Now().Add(-24*time.Hour), apply)
			return err
		})
		g.Go(func() error {
			_, err := s.ResolveMarket(ctx, m.ID, settle)
			return err
		})
		require.NoError(t, g.Wait(), "round %d", round)
	}
}
