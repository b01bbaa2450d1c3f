package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
// A single mutex makes every method one atomic transaction.
type MemoryStore struct {
	mu sync.RWMutex

	users     map[string]*model.User
	userOrder []string

	markets      map[int64]*model.Market
	nextMarketID int64

	wagers      map[int64]*model.Wager
	wagerOrder  []int64
	nextWagerID int64

	charts map[int64][]model.ChartPoint
	stats  *model.PlatformStats

	now func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*model.User),
		markets: make(map[int64]*model.Market),
		wagers:  make(map[int64]*model.Wager),
		charts:  make(map[int64][]model.ChartPoint),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.Wallet]; ok {
		return fmt.Errorf("user %s: %w", u.Wallet, ErrAlreadyExists)
	}
	s.addUserLocked(*u)
	return nil
}

func (s *MemoryStore) addUserLocked(u model.User) {
	copy := u
	s.users[u.Wallet] = &copy
	s.userOrder = append(s.userOrder, u.Wallet)
	s.bumpStatsLocked(model.StatsDelta{Users: 1})
}

func (s *MemoryStore) GetUser(_ context.Context, wallet string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[wallet]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", wallet, ErrNotFound)
	}
	copy := *u
	return &copy, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, wallet string, patch UserPatch) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[wallet]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", wallet, ErrNotFound)
	}
	if patch.Balance != nil {
		u.Balance = *patch.Balance
	}
	if patch.TotalVolume != nil {
		u.TotalVolume = *patch.TotalVolume
	}
	if patch.TotalWinnings != nil {
		u.TotalWinnings = *patch.TotalWinnings
	}
	u.UpdatedAt = s.now()
	copy := *u
	return &copy, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.userOrder))
	for _, w := range s.userOrder {
		users = append(users, *s.users[w])
	}
	return users, nil
}

// --- Markets ---

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMarketID++
	m.ID = s.nextMarketID
	copy := *m
	s.markets[m.ID] = &copy
	s.bumpStatsLocked(model.StatsDelta{Markets: 1})
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id int64) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %d: %w", id, ErrNotFound)
	}
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context, f MarketFilter) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.Category != "" && m.Category != f.Category {
			continue
		}
		markets = append(markets, *m)
	}

	sort.SliceStable(markets, func(i, j int) bool {
		if f.OrderBy == OrderVolume24h {
			if c := markets[i].Volume24h.Cmp(markets[j].Volume24h); c != 0 {
				return c > 0
			}
		} else if !markets[i].CreatedAt.Equal(markets[j].CreatedAt) {
			return markets[i].CreatedAt.After(markets[j].CreatedAt)
		}
		return markets[i].ID > markets[j].ID
	})

	return page(markets, f.Offset, f.Limit), nil
}

func (s *MemoryStore) SetMarketImage(_ context.Context, id int64, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("market %d: %w", id, ErrNotFound)
	}
	m.ImageURL = url
	return nil
}

func (s *MemoryStore) CloseMarket(_ context.Context, id int64) (*model.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %d: %w", id, ErrNotFound)
	}
	if m.Status != model.StatusActive {
		return nil, fmt.Errorf("market %d is %s: %w", id, m.Status, ErrMarketNotActive)
	}
	m.Status = model.StatusClosed
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) ResolveMarket(_ context.Context, id int64, fn SettleFunc) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %d: %w", id, ErrNotFound)
	}
	if m.Status == model.StatusResolved {
		return nil, fmt.Errorf("market %d: %w", id, ErrAlreadyResolved)
	}

	var open []model.Wager
	for _, wid := range s.wagerOrder {
		w := s.wagers[wid]
		if w.MarketID == id && !w.IsSettled {
			open = append(open, *w)
		}
	}

	// fn runs before any mutation; an error leaves the store untouched.
	result, err := fn(*m, open)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for _, w := range result.Wagers {
		stored := s.wagers[w.ID]
		stored.ActualPayout = w.ActualPayout
		stored.IsSettled = true
		if w.ActualPayout.IsPositive() {
			if u, ok := s.users[w.Wallet]; ok {
				u.TotalWinnings = u.TotalWinnings.Add(w.ActualPayout)
				u.UpdatedAt = now
			}
		}
	}
	resolved := result.Market
	*m = resolved
	s.bumpStatsLocked(result.Stats)

	return &result, nil
}

// --- Wager ledger ---

func (s *MemoryStore) InsertWager(_ context.Context, w *model.Wager, check WagerCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[w.MarketID]
	if !ok {
		return fmt.Errorf("market %d: %w", w.MarketID, ErrNotFound)
	}
	if m.Status != model.StatusActive {
		return fmt.Errorf("market %d is %s: %w", w.MarketID, m.Status, ErrMarketNotActive)
	}
	if check != nil {
		if err := check(s.exposureLocked(w.Wallet)); err != nil {
			return fmt.Errorf("wager check: %w", err)
		}
	}

	if _, ok := s.users[w.Wallet]; !ok {
		s.addUserLocked(model.User{
			Wallet:    w.Wallet,
			CreatedAt: w.PlacedAt,
			UpdatedAt: w.PlacedAt,
		})
	}

	s.nextWagerID++
	w.ID = s.nextWagerID
	copy := *w
	s.wagers[w.ID] = &copy
	s.wagerOrder = append(s.wagerOrder, w.ID)
	return nil
}

// exposureLocked sums the wallet's unsettled stakes per market, ordered by
// market id.
func (s *MemoryStore) exposureLocked(wallet string) []Exposure {
	staked := make(map[int64]decimal.Decimal)
	for _, id := range s.wagerOrder {
		w := s.wagers[id]
		if w.Wallet != wallet || w.IsSettled {
			continue
		}
		staked[w.MarketID] = staked[w.MarketID].Add(w.Amount)
	}
	open := make([]Exposure, 0, len(staked))
	for id, amt := range staked {
		var category string
		if m, ok := s.markets[id]; ok {
			category = m.Category
		}
		open = append(open, Exposure{MarketID: id, Category: category, Staked: amt})
	}
	sort.Slice(open, func(i, j int) bool { return open[i].MarketID < open[j].MarketID })
	return open
}

func (s *MemoryStore) GetWager(_ context.Context, id int64) (*model.Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wagers[id]
	if !ok {
		return nil, fmt.Errorf("wager %d: %w", id, ErrNotFound)
	}
	copy := *w
	return &copy, nil
}

func (s *MemoryStore) ListWagers(_ context.Context, f WagerFilter) ([]model.Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Wager
	// Newest first: walk insertion order backwards.
	for i := len(s.wagerOrder) - 1; i >= 0; i-- {
		w := s.wagers[s.wagerOrder[i]]
		if f.MarketID != nil && w.MarketID != *f.MarketID {
			continue
		}
		if f.Wallet != "" && w.Wallet != f.Wallet {
			continue
		}
		if f.Settled != nil && w.IsSettled != *f.Settled {
			continue
		}
		result = append(result, *w)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].PlacedAt.After(result[j].PlacedAt)
	})

	return page(result, f.Offset, f.Limit), nil
}

func (s *MemoryStore) ApplyWager(_ context.Context, wagerID int64, volumeSince time.Time, fn ApplyFunc) (*model.Market, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wagers[wagerID]
	if !ok {
		return nil, false, fmt.Errorf("wager %d: %w", wagerID, ErrNotFound)
	}
	m, ok := s.markets[w.MarketID]
	if !ok {
		return nil, false, fmt.Errorf("market %d: %w", w.MarketID, ErrNotFound)
	}
	if w.Applied {
		copy := *m
		return &copy, false, nil
	}

	vol := decimal.Zero
	for _, other := range s.wagers {
		if other.MarketID == w.MarketID && !other.PlacedAt.Before(volumeSince) {
			vol = vol.Add(other.Amount)
		}
	}
	current := *m
	current.Volume24h = vol

	updated, delta := fn(current, *w)
	*m = updated
	w.Applied = true

	if u, ok := s.users[w.Wallet]; ok {
		u.TotalVolume = u.TotalVolume.Add(w.Amount)
		u.UpdatedAt = s.now()
	}
	s.bumpStatsLocked(delta)

	copy := *m
	return &copy, true, nil
}

func (s *MemoryStore) UnappliedWagerIDs(_ context.Context, marketID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	for _, id := range s.wagerOrder {
		w := s.wagers[id]
		if w.MarketID == marketID && !w.Applied {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// --- Chart ---

func (s *MemoryStore) InsertChartPoint(_ context.Context, p *model.ChartPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[p.MarketID]; !ok {
		return fmt.Errorf("market %d: %w", p.MarketID, ErrNotFound)
	}
	points := append(s.charts[p.MarketID], *p)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	s.charts[p.MarketID] = points
	return nil
}

func (s *MemoryStore) ListChartPoints(_ context.Context, f ChartFilter) ([]model.ChartPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ChartPoint
	for _, p := range s.charts[f.MarketID] {
		if f.From != nil && p.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && p.Timestamp.After(*f.To) {
			continue
		}
		result = append(result, p)
	}
	return page(result, 0, f.Limit), nil
}

// --- Platform stats ---

func (s *MemoryStore) GetPlatformStats(_ context.Context) (*model.PlatformStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureStatsLocked()
	copy := *s.stats
	return &copy, nil
}

func (s *MemoryStore) ensureStatsLocked() {
	if s.stats == nil {
		s.stats = &model.PlatformStats{UpdatedAt: s.now()}
	}
}

func (s *MemoryStore) bumpStatsLocked(d model.StatsDelta) {
	s.ensureStatsLocked()
	s.stats.TotalFees = s.stats.TotalFees.Add(d.Fees)
	s.stats.TotalVolume = s.stats.TotalVolume.Add(d.Volume)
	s.stats.TotalMarkets += d.Markets
	s.stats.TotalUsers += d.Users
	s.stats.TotalBets += d.Bets
	s.stats.PoolBalance = s.stats.PoolBalance.Add(d.Pool)
	s.stats.UpdatedAt = s.now()
}

// page applies offset and limit; limit is capped at MaxPageSize.
func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	limit = ClampLimit(limit, MaxPageSize, MaxPageSize)
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
