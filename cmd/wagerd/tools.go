package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/atmx/wager-engine/internal/aggregate"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/pricing"
	"github.com/atmx/wager-engine/internal/store"
	"github.com/atmx/wager-engine/internal/tracker"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply embedded SQL migrations to the configured database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.close()
		return b.migrate(cmd.Context())
	},
}

var (
	leaderboardSort  string
	leaderboardLimit int
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Print the ranked leaderboard",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.close()

		entries, err := aggregate.NewEngine(b.store).GetLeaderboard(cmd.Context(), leaderboardSort, leaderboardLimit)
		if err != nil {
			return err
		}
		printLeaderboard(entries)
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [market-id...]",
	Short: "Apply wagers whose aggregate update did not complete",
	Long:  "Reconcile the given markets, or every market in any status when none are named.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.close()

		pricer, err := pricing.New(cfg.Pricing.Model, decimal.NewFromFloat(cfg.Pricing.Liquidity))
		if err != nil {
			return err
		}
		markets, applied, err := reconcile(cmd.Context(), b.store, tracker.New(b.store, pricer, nil), args)
		if err != nil {
			return err
		}
		fmt.Printf("reconciled %d markets, applied %d wagers\n", markets, applied)
		return nil
	},
}

func init() {
	leaderboardCmd.Flags().StringVar(&leaderboardSort, "sort", "winnings", "winnings, volume, profit, winrate or bets")
	leaderboardCmd.Flags().IntVar(&leaderboardLimit, "limit", aggregate.DefaultLeaderboardLimit, "number of entries")
}

// reconcile applies pending wagers on the named markets, or on every market
// when args is empty. Closed and resolved markets are included because a
// wager accepted before closing can still be unapplied.
func reconcile(ctx context.Context, st store.Store, tr *tracker.Tracker, args []string) (int, int, error) {
	ids, err := marketIDs(ctx, st, args)
	if err != nil {
		return 0, 0, err
	}
	total := 0
	for _, id := range ids {
		n, err := tr.ReconcileMarket(ctx, id)
		if err != nil {
			return 0, total, fmt.Errorf("market %d: %w", id, err)
		}
		total += n
	}
	return len(ids), total, nil
}

func marketIDs(ctx context.Context, st store.Store, args []string) ([]int64, error) {
	if len(args) > 0 {
		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid market id %q", a)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	var ids []int64
	f := store.MarketFilter{Limit: store.MaxPageSize}
	for ; ; f.Offset += store.MaxPageSize {
		page, err := st.ListMarkets(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, m := range page {
			ids = append(ids, m.ID)
		}
		if len(page) < store.MaxPageSize {
			return ids, nil
		}
	}
}

func printLeaderboard(entries []model.LeaderboardEntry) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Wallet", "Winnings", "Volume", "P/L", "ROI %", "Win rate", "Bets"})
	for _, e := range entries {
		table.Append([]string{
			strconv.Itoa(e.Rank),
			e.Wallet,
			e.TotalWinnings.StringFixed(2),
			e.TotalVolume.StringFixed(2),
			e.ProfitLoss.StringFixed(2),
			e.ROI.StringFixed(2),
			e.WinRate.StringFixed(4),
			strconv.Itoa(e.TotalBets),
		})
	}
	table.Render()
}
