// Package model defines the core domain types shared across the wager engine.
// All monetary values and prices use shopspring/decimal, never float64.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// ParseOutcome normalises a client-supplied prediction or outcome.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseOutcome(s string) (Outcome, bool) {
	switch Outcome(strings.ToLower(strings.TrimSpace(s))) {
	case OutcomeYes:
		return OutcomeYes, true
	case OutcomeNo:
		return OutcomeNo, true
	}
	return "", false
}

// MarketStatus is the lifecycle state of a market: active → closed → resolved.
type MarketStatus string

const (
	StatusActive   MarketStatus = "active"
	StatusClosed   MarketStatus = "closed"
	StatusResolved MarketStatus = "resolved"
)

// User is keyed by wallet. It is referenced by wagers but owns none of them.
type User struct {
	Wallet        string          `json:"wallet" db:"wallet"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	TotalVolume   decimal.Decimal `json:"total_volume" db:"total_volume"`
	TotalWinnings decimal.Decimal `json:"total_winnings" db:"total_winnings"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Market is a binary yes/no proposition. YesPrice + NoPrice = 1 at every
// observed state, and Status == resolved iff Outcome and ResolvedAt are set.
type Market struct {
	ID             int64           `json:"id" db:"id"`
	Title          string          `json:"title" db:"title"`
	Description    string          `json:"description,omitempty" db:"description"`
	ImageURL       string          `json:"image_url,omitempty" db:"image_url"`
	Category       string          `json:"category,omitempty" db:"category"`
	Status         MarketStatus    `json:"status" db:"status"`
	TotalYesAmount decimal.Decimal `json:"total_yes_amount" db:"total_yes_amount"`
	TotalNoAmount  decimal.Decimal `json:"total_no_amount" db:"total_no_amount"`
	YesPrice       decimal.Decimal `json:"yes_price" db:"yes_price"`
	NoPrice        decimal.Decimal `json:"no_price" db:"no_price"`
	Outcome        *Outcome        `json:"outcome" db:"outcome"`
	Creator        string          `json:"creator" db:"creator"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	ClosesAt       *time.Time      `json:"closes_at,omitempty" db:"closes_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	Volume24h      decimal.Decimal `json:"volume_24h" db:"volume_24h"`
}

// TotalVolume is the cumulative amount staked on both sides.
func (m *Market) TotalVolume() decimal.Decimal {
	return m.TotalYesAmount.Add(m.TotalNoAmount)
}

// PriceFor returns the current price of the given side.
func (m *Market) PriceFor(o Outcome) decimal.Decimal {
	if o == OutcomeNo {
		return m.NoPrice
	}
	return m.YesPrice
}

// Wager is a stake placed by a wallet on one side of a market. Once
// IsSettled is true, every financial field is frozen.
type Wager struct {
	ID              int64           `json:"id" db:"id"`
	MarketID        int64           `json:"market_id" db:"market_id"`
	Wallet          string          `json:"wallet" db:"wallet"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Prediction      Outcome         `json:"prediction" db:"prediction"`
	PriceAtBet      decimal.Decimal `json:"price_at_bet" db:"price_at_bet"`
	PotentialPayout decimal.Decimal `json:"potential_payout" db:"potential_payout"`
	ActualPayout    decimal.Decimal `json:"actual_payout" db:"actual_payout"`
	PlatformFee     decimal.Decimal `json:"platform_fee" db:"platform_fee"`
	TxRef           string          `json:"tx_ref,omitempty" db:"tx_ref"`
	PlacedAt        time.Time       `json:"placed_at" db:"placed_at"`
	IsSettled       bool            `json:"is_settled" db:"is_settled"`
	// Applied is set once the wager has been folded into market and user
	// aggregates. It makes the aggregate update idempotent per wager.
	Applied bool `json:"-" db:"applied"`
}

// ChartPoint is one sample of a market's price time series.
type ChartPoint struct {
	MarketID  int64           `json:"market_id" db:"market_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	YesPrice  decimal.Decimal `json:"yes_price" db:"yes_price"`
	NoPrice   decimal.Decimal `json:"no_price" db:"no_price"`
	Volume    decimal.Decimal `json:"volume" db:"volume"`
}

// PlatformStats is the singleton platform-wide aggregate row.
type PlatformStats struct {
	TotalFees    decimal.Decimal `json:"total_fees" db:"total_fees"`
	TotalVolume  decimal.Decimal `json:"total_volume" db:"total_volume"`
	TotalMarkets int64           `json:"total_markets" db:"total_markets"`
	TotalUsers   int64           `json:"total_users" db:"total_users"`
	TotalBets    int64           `json:"total_bets" db:"total_bets"`
	PoolBalance  decimal.Decimal `json:"pool_balance" db:"pool_balance"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// StatsDelta is an increment applied to PlatformStats.
type StatsDelta struct {
	Fees    decimal.Decimal
	Volume  decimal.Decimal
	Markets int64
	Users   int64
	Bets    int64
	Pool    decimal.Decimal
}

// PortfolioMetrics are the per-wallet figures derived from its wagers.
type PortfolioMetrics struct {
	TotalInvested   decimal.Decimal `json:"total_invested"`
	TotalReturns    decimal.Decimal `json:"total_returns"`
	UnrealizedValue decimal.Decimal `json:"unrealized_value"`
	ProfitLoss      decimal.Decimal `json:"profit_loss"`
	TotalBets       int             `json:"total_bets"`
	ActiveBets      int             `json:"active_bets"`
	SettledBets     int             `json:"settled_bets"`
}

// PortfolioWager is a wager enriched with the state of its market.
type PortfolioWager struct {
	Wager
	MarketTitle  string          `json:"market_title"`
	MarketStatus MarketStatus    `json:"market_status"`
	Outcome      *Outcome        `json:"market_outcome"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// Portfolio is the response of a portfolio query.
type Portfolio struct {
	User    User             `json:"user"`
	Metrics PortfolioMetrics `json:"metrics"`
	Wagers  []PortfolioWager `json:"wagers"`
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank          int             `json:"rank"`
	Wallet        string          `json:"wallet"`
	TotalWinnings decimal.Decimal `json:"total_winnings"`
	TotalVolume   decimal.Decimal `json:"total_volume"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	ProfitLoss    decimal.Decimal `json:"profit_loss"`
	ROI           decimal.Decimal `json:"roi"`
	WinRate       decimal.Decimal `json:"win_rate"`
	TotalBets     int             `json:"total_bets"`
	WonBets       int             `json:"won_bets"`
	LostBets      int             `json:"lost_bets"`
	ActiveBets    int             `json:"active_bets"`
}

// Event types pushed to live subscribers.
const (
	EventWagerPlaced    = "wager_placed"
	EventMarketClosed   = "market_closed"
	EventMarketResolved = "market_resolved"
	EventChartPoint     = "chart_point"
)

// Event is a market state change broadcast to WebSocket clients.
type Event struct {
	Type       string    `json:"type"`
	MarketID   int64     `json:"market_id"`
	YesPrice   string    `json:"yes_price,omitempty"`
	NoPrice    string    `json:"no_price,omitempty"`
	Prediction string    `json:"prediction,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
