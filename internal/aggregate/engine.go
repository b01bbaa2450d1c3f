package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/atmx/wager-engine/internal/apperr"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/store"
)

// marketFetchConcurrency bounds parallel market reads during enrichment.
const marketFetchConcurrency = 8

// Engine reads the ledger and feeds the pure aggregations. Reads are not
// snapshot-isolated; a result may race a concurrent settlement.
type Engine struct {
	store store.Store
}

func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// GetPortfolio returns a wallet's summary, metrics and enriched wagers.
func (e *Engine) GetPortfolio(ctx context.Context, wallet string) (*model.Portfolio, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, apperr.Validation("wallet_required", "wallet is required")
	}

	var (
		user   *model.User
		wagers []model.Wager
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := e.store.GetUser(gctx, wallet)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("user_not_found", "user not found")
			}
			return apperr.Store("get user", err)
		}
		user = u
		return nil
	})
	g.Go(func() error {
		ws, err := allWagers(gctx, e.store, store.WagerFilter{Wallet: wallet})
		if err != nil {
			return apperr.Store("list wallet wagers", err)
		}
		wagers = ws
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	markets, err := e.marketsFor(ctx, wagers)
	if err != nil {
		return nil, err
	}

	enriched := make([]model.PortfolioWager, 0, len(wagers))
	for _, w := range wagers {
		pw := model.PortfolioWager{Wager: w}
		if m, ok := markets[w.MarketID]; ok {
			pw.MarketTitle = m.Title
			pw.MarketStatus = m.Status
			pw.Outcome = m.Outcome
			pw.CurrentPrice = m.PriceFor(w.Prediction)
		}
		enriched = append(enriched, pw)
	}

	return &model.Portfolio{
		User:    *user,
		Metrics: Portfolio(wagers),
		Wagers:  enriched,
	}, nil
}

// marketsFor loads the distinct markets referenced by wagers. Markets that
// vanished between reads are skipped.
func (e *Engine) marketsFor(ctx context.Context, wagers []model.Wager) (map[int64]*model.Market, error) {
	ids := make(map[int64]struct{})
	for _, w := range wagers {
		ids[w.MarketID] = struct{}{}
	}

	var mu sync.Mutex
	markets := make(map[int64]*model.Market, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(marketFetchConcurrency)
	for id := range ids {
		g.Go(func() error {
			m, err := e.store.GetMarket(gctx, id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil
				}
				return apperr.Store("get market", err)
			}
			mu.Lock()
			markets[id] = m
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return markets, nil
}

// GetLeaderboard ranks every user with activity.
func (e *Engine) GetLeaderboard(ctx context.Context, sortBy string, limit int) ([]model.LeaderboardEntry, error) {
	key, err := ParseSortKey(sortBy)
	if err != nil {
		return nil, err
	}

	var (
		users  []model.User
		wagers []model.Wager
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		us, err := e.store.ListUsers(gctx)
		if err != nil {
			return apperr.Store("list users", err)
		}
		users = us
		return nil
	})
	g.Go(func() error {
		ws, err := allWagers(gctx, e.store, store.WagerFilter{})
		if err != nil {
			return apperr.Store("list wagers", err)
		}
		wagers = ws
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Leaderboard(users, wagers, key, limit), nil
}

// Summary is the platform stats row plus live market counts.
type Summary struct {
	model.PlatformStats
	ActiveMarkets int `json:"active_markets"`
}

// PlatformSummary returns platform-wide totals.
func (e *Engine) PlatformSummary(ctx context.Context) (*Summary, error) {
	var (
		stats  *model.PlatformStats
		active int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := e.store.GetPlatformStats(gctx)
		if err != nil {
			return apperr.Store("get platform stats", err)
		}
		stats = s
		return nil
	})
	g.Go(func() error {
		n, err := countMarkets(gctx, e.store, model.StatusActive)
		if err != nil {
			return apperr.Store("count active markets", err)
		}
		active = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Summary{PlatformStats: *stats, ActiveMarkets: active}, nil
}

// allWagers pages through every wager matching f. Rows that shift pages
// under concurrent inserts are deduplicated by id.
func allWagers(ctx context.Context, st store.Store, f store.WagerFilter) ([]model.Wager, error) {
	var (
		out  []model.Wager
		seen = make(map[int64]bool)
	)
	f.Limit = store.MaxPageSize
	for f.Offset = 0; ; f.Offset += store.MaxPageSize {
		page, err := st.ListWagers(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("page at offset %d: %w", f.Offset, err)
		}
		for _, w := range page {
			if !seen[w.ID] {
				seen[w.ID] = true
				out = append(out, w)
			}
		}
		if len(page) < store.MaxPageSize {
			return out, nil
		}
	}
}

func countMarkets(ctx context.Context, st store.Store, status model.MarketStatus) (int, error) {
	n := 0
	f := store.MarketFilter{Status: status, Limit: store.MaxPageSize}
	for ; ; f.Offset += store.MaxPageSize {
		page, err := st.ListMarkets(ctx, f)
		if err != nil {
			return 0, err
		}
		n += len(page)
		if len(page) < store.MaxPageSize {
			return n, nil
		}
	}
}
