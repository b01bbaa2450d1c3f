// Package aggregate derives portfolio and leaderboard figures from the
// wager ledger. Nothing here is cached: every figure is recomputed from the
// wagers it summarizes.
package aggregate

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/apperr"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/store"
)

const (
	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 100

	ratioScale int32 = 4
)

var hundred = decimal.NewFromInt(100)

// SortKey orders the leaderboard. Every key sorts descending.
type SortKey string

const (
	SortWinnings SortKey = "winnings"
	SortVolume   SortKey = "volume"
	SortProfit   SortKey = "profit"
	SortWinRate  SortKey = "winrate"
	SortBets     SortKey = "bets"
)

// ParseSortKey accepts a client sort key; empty means winnings.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortWinnings, nil
	case SortWinnings, SortVolume, SortProfit, SortWinRate, SortBets:
		return k, nil
	}
	return "", apperr.Validation("invalid_sort", "sort_by must be one of winnings, volume, profit, winrate, bets")
}

// Portfolio summarizes one wallet's wagers.
func Portfolio(wagers []model.Wager) model.PortfolioMetrics {
	var pm model.PortfolioMetrics
	for _, w := range wagers {
		pm.TotalInvested = pm.TotalInvested.Add(w.Amount)
		pm.TotalBets++
		if w.IsSettled {
			pm.TotalReturns = pm.TotalReturns.Add(w.ActualPayout)
			pm.SettledBets++
		} else {
			pm.UnrealizedValue = pm.UnrealizedValue.Add(w.PotentialPayout)
			pm.ActiveBets++
		}
	}
	pm.ProfitLoss = pm.TotalReturns.Sub(pm.TotalInvested)
	return pm
}

// Leaderboard ranks users by key. users must be in insertion order; ties
// keep the earlier created user first. Users with no wagers and no recorded
// volume are left out.
func Leaderboard(users []model.User, wagers []model.Wager, key SortKey, limit int) []model.LeaderboardEntry {
	byWallet := make(map[string][]model.Wager)
	for _, w := range wagers {
		byWallet[w.Wallet] = append(byWallet[w.Wallet], w)
	}

	ordered := make([]model.User, len(users))
	copy(ordered, users)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	entries := make([]model.LeaderboardEntry, 0, len(ordered))
	for _, u := range ordered {
		own := byWallet[u.Wallet]
		if len(own) == 0 && !u.TotalVolume.IsPositive() {
			continue
		}
		entries = append(entries, entryFor(u.Wallet, own))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return less(entries[j], entries[i], key)
	})

	limit = store.ClampLimit(limit, DefaultLeaderboardLimit, MaxLeaderboardLimit)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func entryFor(wallet string, wagers []model.Wager) model.LeaderboardEntry {
	e := model.LeaderboardEntry{Wallet: wallet}
	for _, w := range wagers {
		e.TotalBets++
		e.TotalInvested = e.TotalInvested.Add(w.Amount)
		e.TotalVolume = e.TotalVolume.Add(w.Amount)
		if !w.IsSettled {
			e.ActiveBets++
			continue
		}
		e.TotalWinnings = e.TotalWinnings.Add(w.ActualPayout)
		// Win and loss compare the payout to the stake; a payout equal
		// to the stake counts as neither.
		switch w.ActualPayout.Cmp(w.Amount) {
		case 1:
			e.WonBets++
		case -1:
			e.LostBets++
		}
	}

	e.ProfitLoss = e.TotalWinnings.Sub(e.TotalInvested)

	decided := e.WonBets + e.LostBets
	if decided < 1 {
		decided = 1
	}
	e.WinRate = decimal.NewFromInt(int64(e.WonBets)).DivRound(decimal.NewFromInt(int64(decided)), ratioScale)

	if e.TotalInvested.IsPositive() {
		e.ROI = e.ProfitLoss.Mul(hundred).DivRound(e.TotalInvested, ratioScale)
	}
	return e
}

// less reports whether a ranks below b under key.
func less(a, b model.LeaderboardEntry, key SortKey) bool {
	switch key {
	case SortVolume:
		return a.TotalVolume.LessThan(b.TotalVolume)
	case SortProfit:
		return a.ProfitLoss.LessThan(b.ProfitLoss)
	case SortWinRate:
		return a.WinRate.LessThan(b.WinRate)
	case SortBets:
		return a.TotalBets < b.TotalBets
	default:
		return a.TotalWinnings.LessThan(b.TotalWinnings)
	}
}
