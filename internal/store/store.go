// Package store defines the persistence interface for the wager engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache over market reads), and in-memory (for testing and development).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/model"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrAlreadyExists   = errors.New("store: already exists")
	ErrMarketNotActive = errors.New("store: market is not active")
	ErrAlreadyResolved = errors.New("store: market already resolved")
)

// MaxPageSize bounds every list query.
const MaxPageSize = 100

// WagerFilter selects wagers. Zero values mean "no filter".
// Results are ordered newest first.
type WagerFilter struct {
	MarketID *int64
	Wallet   string
	Settled  *bool
	Limit    int
	Offset   int
}

// ChartFilter selects chart points of one market within an inclusive
// [From, To] window. Results are ordered by timestamp ascending.
type ChartFilter struct {
	MarketID int64
	From     *time.Time
	To       *time.Time
	Limit    int
}

// MarketOrder selects the ordering of ListMarkets.
type MarketOrder int

const (
	OrderNewest MarketOrder = iota
	OrderVolume24h
)

// MarketFilter selects markets.
type MarketFilter struct {
	Status   model.MarketStatus
	Category string
	OrderBy  MarketOrder
	Limit    int
	Offset   int
}

// UserPatch holds explicit user field updates. Nil fields are left alone.
type UserPatch struct {
	Balance       *decimal.Decimal
	TotalVolume   *decimal.Decimal
	TotalWinnings *decimal.Decimal
}

// ApplyFunc folds one wager into its market. It receives the market with
// Volume24h already recomputed and returns the new market state plus the
// platform stats increment.
type ApplyFunc func(m model.Market, w model.Wager) (model.Market, model.StatsDelta)

// Exposure is a wallet's open (unsettled) stake on one market.
type Exposure struct {
	MarketID int64
	Category string
	Staked   decimal.Decimal
}

// WagerCheck vets a new wager against its wallet's open exposure. It runs
// inside the inserting transaction, and placements by the same wallet are
// serialized around it, so the exposure it sees cannot change before the
// insert commits. A non-nil error aborts the insert and is returned wrapped.
type WagerCheck func(open []Exposure) error

// Settlement is the result of settling a market's open wagers.
type Settlement struct {
	Market model.Market
	Wagers []model.Wager
	Stats  model.StatsDelta
}

// SettleFunc computes the settlement of a market from its unsettled wagers.
// It is called inside the resolving transaction.
type SettleFunc func(m model.Market, open []model.Wager) (Settlement, error)

// Store is the persistence interface. PostgreSQL is the source of truth.
type Store interface {
	// --- Users ---

	// CreateUser registers a wallet. Returns ErrAlreadyExists on duplicates.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by wallet.
	GetUser(ctx context.Context, wallet string) (*model.User, error)

	// UpdateUser applies explicit field updates.
	UpdateUser(ctx context.Context, wallet string, patch UserPatch) (*model.User, error)

	// ListUsers returns all users in insertion order.
	ListUsers(ctx context.Context) ([]model.User, error)

	// --- Markets ---

	// CreateMarket persists a new market and assigns its ID.
	CreateMarket(ctx context.Context, m *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id int64) (*model.Market, error)

	// ListMarkets returns markets matching the filter.
	ListMarkets(ctx context.Context, f MarketFilter) ([]model.Market, error)

	// SetMarketImage records the public URL of a market's image.
	SetMarketImage(ctx context.Context, id int64, url string) error

	// CloseMarket moves an active market to closed.
	CloseMarket(ctx context.Context, id int64) (*model.Market, error)

	// ResolveMarket locks the market, checks it is not resolved, hands its
	// unsettled wagers to fn and persists the result atomically.
	ResolveMarket(ctx context.Context, id int64, fn SettleFunc) (*Settlement, error)

	// --- Wager ledger ---

	// InsertWager assigns the wager's ID and persists it, creating the
	// owning user when absent. The market's active status is checked in
	// the same transaction (ErrNotFound / ErrMarketNotActive), and so is
	// check when it is non-nil.
	InsertWager(ctx context.Context, w *model.Wager, check WagerCheck) error

	// GetWager retrieves a wager by its ID.
	GetWager(ctx context.Context, id int64) (*model.Wager, error)

	// ListWagers returns wagers matching the filter, newest first.
	ListWagers(ctx context.Context, f WagerFilter) ([]model.Wager, error)

	// ApplyWager folds a wager into its market, its user's volume and the
	// platform stats exactly once. volumeSince bounds the rolling volume
	// window. The bool result reports whether this call applied it.
	ApplyWager(ctx context.Context, wagerID int64, volumeSince time.Time, fn ApplyFunc) (*model.Market, bool, error)

	// UnappliedWagerIDs lists wagers of a market not yet folded into aggregates.
	UnappliedWagerIDs(ctx context.Context, marketID int64) ([]int64, error)

	// --- Chart ---

	// InsertChartPoint appends a price sample.
	InsertChartPoint(ctx context.Context, p *model.ChartPoint) error

	// ListChartPoints returns a market's samples in ascending time order.
	ListChartPoints(ctx context.Context, f ChartFilter) ([]model.ChartPoint, error)

	// --- Platform stats ---

	// GetPlatformStats returns the singleton stats row, creating it if needed.
	GetPlatformStats(ctx context.Context) (*model.PlatformStats, error)
}

// ClampLimit bounds a page size to [1, max]. Zero means "not given" and
// yields def; a negative limit clamps up to 1.
func ClampLimit(limit, def, max int) int {
	switch {
	case limit == 0:
		return def
	case limit < 1:
		return 1
	case limit > max:
		return max
	}
	return limit
}
