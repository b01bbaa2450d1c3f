package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
//
// Placement takes a FOR SHARE lock on the market row and settlement a FOR
// UPDATE lock, so a resolution always happens after the last accepted wager.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const marketColumns = `id, title, description, image_url, category, status,
	total_yes_amount::TEXT, total_no_amount::TEXT, yes_price::TEXT, no_price::TEXT,
	outcome, creator, created_at, closes_at, resolved_at, volume_24h::TEXT`

const wagerColumns = `id, market_id, wallet, amount::TEXT, prediction,
	price_at_bet::TEXT, potential_payout::TEXT, actual_payout::TEXT, platform_fee::TEXT,
	tx_ref, placed_at, is_settled, applied`

const userColumns = `wallet, balance::TEXT, total_volume::TEXT, total_winnings::TEXT, created_at, updated_at`

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (wallet, balance, total_volume, total_winnings, created_at, updated_at)
			 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5, $6)`,
			u.Wallet, u.Balance.String(), u.TotalVolume.String(), u.TotalWinnings.String(),
			u.CreatedAt, u.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("user %s: %w", u.Wallet, ErrAlreadyExists)
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return bumpStats(ctx, tx, model.StatsDelta{Users: 1})
	})
}

func (s *PostgresStore) GetUser(ctx context.Context, wallet string) (*model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE wallet = $1`, wallet)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user %s", wallet)
	}
	return u, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, wallet string, patch UserPatch) (*model.User, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE users SET
			balance        = COALESCE($2::NUMERIC, balance),
			total_volume   = COALESCE($3::NUMERIC, total_volume),
			total_winnings = COALESCE($4::NUMERIC, total_winnings),
			updated_at     = NOW()
		 WHERE wallet = $1
		 RETURNING `+userColumns,
		wallet, decPtr(patch.Balance), decPtr(patch.TotalVolume), decPtr(patch.TotalWinnings),
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user %s", wallet)
	}
	return u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// --- Markets ---

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO markets (title, description, image_url, category, status,
			        total_yes_amount, total_no_amount, yes_price, no_price,
			        creator, created_at, closes_at, volume_24h)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC,
			         $10, $11, $12, $13::NUMERIC)
			 RETURNING id`,
			m.Title, m.Description, m.ImageURL, m.Category, string(m.Status),
			m.TotalYesAmount.String(), m.TotalNoAmount.String(),
			m.YesPrice.String(), m.NoPrice.String(),
			m.Creator, m.CreatedAt, m.ClosesAt, m.Volume24h.String(),
		).Scan(&m.ID)
		if err != nil {
			return fmt.Errorf("insert market: %w", err)
		}
		return bumpStats(ctx, tx, model.StatsDelta{Markets: 1})
	})
}

func (s *PostgresStore) GetMarket(ctx context.Context, id int64) (*model.Market, error) {
	return getMarket(ctx, s.pool, id, "")
}

func getMarket(ctx context.Context, q querier, id int64, lock string) (*model.Market, error) {
	row := q.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1 `+lock, id)
	m, err := scanMarket(row)
	if err != nil {
		return nil, notFound(err, "market %d", id)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context, f MarketFilter) ([]model.Market, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}

	query := `SELECT ` + marketColumns + ` FROM markets`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.OrderBy == OrderVolume24h {
		query += " ORDER BY volume_24h DESC, id DESC"
	} else {
		query += " ORDER BY created_at DESC, id DESC"
	}
	args = append(args, ClampLimit(f.Limit, MaxPageSize, MaxPageSize), max(f.Offset, 0))
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	markets := []model.Market{}
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) SetMarketImage(ctx context.Context, id int64, url string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE markets SET image_url = $2 WHERE id = $1`, id, url)
	if err != nil {
		return fmt.Errorf("set market image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("market %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CloseMarket(ctx context.Context, id int64) (*model.Market, error) {
	var closed *model.Market
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		m, err := getMarket(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return err
		}
		if m.Status != model.StatusActive {
			return fmt.Errorf("market %d is %s: %w", id, m.Status, ErrMarketNotActive)
		}
		if _, err := tx.Exec(ctx, `UPDATE markets SET status = 'closed' WHERE id = $1`, id); err != nil {
			return fmt.Errorf("close market: %w", err)
		}
		m.Status = model.StatusClosed
		closed = m
		return nil
	})
	return closed, err
}

func (s *PostgresStore) ResolveMarket(ctx context.Context, id int64, fn SettleFunc) (*Settlement, error) {
	var result Settlement
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		m, err := getMarket(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return err
		}
		if m.Status == model.StatusResolved {
			return fmt.Errorf("market %d: %w", id, ErrAlreadyResolved)
		}

		rows, err := tx.Query(ctx,
			`SELECT `+wagerColumns+` FROM wagers
			 WHERE market_id = $1 AND NOT is_settled
			 ORDER BY id FOR UPDATE`, id)
		if err != nil {
			return fmt.Errorf("load open wagers: %w", err)
		}
		open, err := scanWagers(rows)
		if err != nil {
			return err
		}

		result, err = fn(*m, open)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, w := range result.Wagers {
			batch.Queue(
				`UPDATE wagers SET actual_payout = $2::NUMERIC, is_settled = TRUE
				 WHERE id = $1 AND NOT is_settled`,
				w.ID, w.ActualPayout.String())
			if w.ActualPayout.IsPositive() {
				batch.Queue(
					`UPDATE users SET total_winnings = total_winnings + $2::NUMERIC, updated_at = NOW()
					 WHERE wallet = $1`,
					w.Wallet, w.ActualPayout.String())
			}
		}
		rm := result.Market
		batch.Queue(
			`UPDATE markets SET status = $2, outcome = $3, resolved_at = $4 WHERE id = $1`,
			id, string(rm.Status), outcomePtr(rm.Outcome), rm.ResolvedAt)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("persist settlement: %w", err)
		}

		return bumpStats(ctx, tx, result.Stats)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// --- Wager ledger ---

func (s *PostgresStore) InsertWager(ctx context.Context, w *model.Wager, check WagerCheck) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM markets WHERE id = $1 FOR SHARE`, w.MarketID).Scan(&status)
		if err != nil {
			return notFound(err, "market %d", w.MarketID)
		}
		if model.MarketStatus(status) != model.StatusActive {
			return fmt.Errorf("market %d is %s: %w", w.MarketID, status, ErrMarketNotActive)
		}

		if check != nil {
			open, err := walletExposure(ctx, tx, w.Wallet)
			if err != nil {
				return err
			}
			if err := check(open); err != nil {
				return fmt.Errorf("wager check: %w", err)
			}
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO users (wallet, created_at, updated_at) VALUES ($1, $2, $2)
			 ON CONFLICT (wallet) DO NOTHING`,
			w.Wallet, w.PlacedAt)
		if err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}
		if tag.RowsAffected() == 1 {
			if err := bumpStats(ctx, tx, model.StatsDelta{Users: 1}); err != nil {
				return err
			}
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO wagers (market_id, wallet, amount, prediction, price_at_bet,
			        potential_payout, actual_payout, platform_fee, tx_ref, placed_at, is_settled)
			 VALUES ($1, $2, $3::NUMERIC, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10, FALSE)
			 RETURNING id`,
			w.MarketID, w.Wallet, w.Amount.String(), string(w.Prediction), w.PriceAtBet.String(),
			w.PotentialPayout.String(), w.ActualPayout.String(), w.PlatformFee.String(),
			w.TxRef, w.PlacedAt,
		).Scan(&w.ID)
		if err != nil {
			return fmt.Errorf("insert wager: %w", err)
		}
		return nil
	})
}

// walletExposure takes the wallet's placement lock for the rest of tx and
// sums its unsettled stakes per market.
func walletExposure(ctx context.Context, tx pgx.Tx, wallet string) ([]Exposure, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "wallet:"+wallet); err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	rows, err := tx.Query(ctx,
		`SELECT w.market_id, m.category, SUM(w.amount)::TEXT
		 FROM wagers w JOIN markets m ON m.id = w.market_id
		 WHERE w.wallet = $1 AND NOT w.is_settled
		 GROUP BY w.market_id, m.category
		 ORDER BY w.market_id`, wallet)
	if err != nil {
		return nil, fmt.Errorf("wallet exposure: %w", err)
	}
	defer rows.Close()

	var open []Exposure
	for rows.Next() {
		var (
			e      Exposure
			staked string
		)
		if err := rows.Scan(&e.MarketID, &e.Category, &staked); err != nil {
			return nil, fmt.Errorf("scan exposure: %w", err)
		}
		e.Staked = parseDecimal(staked)
		open = append(open, e)
	}
	return open, rows.Err()
}

func (s *PostgresStore) GetWager(ctx context.Context, id int64) (*model.Wager, error) {
	return getWager(ctx, s.pool, id, "")
}

func getWager(ctx context.Context, q querier, id int64, lock string) (*model.Wager, error) {
	row := q.QueryRow(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE id = $1 `+lock, id)
	w, err := scanWager(row)
	if err != nil {
		return nil, notFound(err, "wager %d", id)
	}
	return w, nil
}

func (s *PostgresStore) ListWagers(ctx context.Context, f WagerFilter) ([]model.Wager, error) {
	var (
		where []string
		args  []any
	)
	if f.MarketID != nil {
		args = append(args, *f.MarketID)
		where = append(where, fmt.Sprintf("market_id = $%d", len(args)))
	}
	if f.Wallet != "" {
		args = append(args, f.Wallet)
		where = append(where, fmt.Sprintf("wallet = $%d", len(args)))
	}
	if f.Settled != nil {
		args = append(args, *f.Settled)
		where = append(where, fmt.Sprintf("is_settled = $%d", len(args)))
	}

	query := `SELECT ` + wagerColumns + ` FROM wagers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, ClampLimit(f.Limit, MaxPageSize, MaxPageSize), max(f.Offset, 0))
	query += fmt.Sprintf(" ORDER BY placed_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wagers: %w", err)
	}
	wagers, err := scanWagers(rows)
	if err != nil {
		return nil, err
	}
	if wagers == nil {
		wagers = []model.Wager{}
	}
	return wagers, nil
}

func (s *PostgresStore) ApplyWager(ctx context.Context, wagerID int64, volumeSince time.Time, fn ApplyFunc) (*model.Market, bool, error) {
	var (
		result  *model.Market
		applied bool
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Lock order is market then wager, matching ResolveMarket. A
		// wager's market never changes, so the unlocked read is safe.
		var marketID int64
		err := tx.QueryRow(ctx, `SELECT market_id FROM wagers WHERE id = $1`, wagerID).Scan(&marketID)
		if err != nil {
			return notFound(err, "wager %d", wagerID)
		}
		m, err := getMarket(ctx, tx, marketID, "FOR UPDATE")
		if err != nil {
			return err
		}
		w, err := getWager(ctx, tx, wagerID, "FOR UPDATE")
		if err != nil {
			return err
		}
		if w.Applied {
			result = m
			return nil
		}

		var volS string
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(amount), 0)::TEXT FROM wagers
			 WHERE market_id = $1 AND placed_at >= $2`,
			w.MarketID, volumeSince).Scan(&volS)
		if err != nil {
			return fmt.Errorf("rolling volume: %w", err)
		}
		m.Volume24h = parseDecimal(volS)

		updated, delta := fn(*m, *w)

		batch := &pgx.Batch{}
		batch.Queue(
			`UPDATE markets SET total_yes_amount = $2::NUMERIC, total_no_amount = $3::NUMERIC,
			        yes_price = $4::NUMERIC, no_price = $5::NUMERIC, volume_24h = $6::NUMERIC
			 WHERE id = $1`,
			updated.ID, updated.TotalYesAmount.String(), updated.TotalNoAmount.String(),
			updated.YesPrice.String(), updated.NoPrice.String(), updated.Volume24h.String())
		batch.Queue(
			`UPDATE users SET total_volume = total_volume + $2::NUMERIC, updated_at = NOW()
			 WHERE wallet = $1`,
			w.Wallet, w.Amount.String())
		batch.Queue(`UPDATE wagers SET applied = TRUE WHERE id = $1`, w.ID)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("apply wager: %w", err)
		}
		if err := bumpStats(ctx, tx, delta); err != nil {
			return err
		}

		result = &updated
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, applied, nil
}

func (s *PostgresStore) UnappliedWagerIDs(ctx context.Context, marketID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM wagers WHERE market_id = $1 AND NOT applied ORDER BY id`, marketID)
	if err != nil {
		return nil, fmt.Errorf("unapplied wagers: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// --- Chart ---

func (s *PostgresStore) InsertChartPoint(ctx context.Context, p *model.ChartPoint) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chart_points (market_id, timestamp, yes_price, no_price, volume)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC)`,
		p.MarketID, p.Timestamp, p.YesPrice.String(), p.NoPrice.String(), p.Volume.String(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("market %d: %w", p.MarketID, ErrNotFound)
		}
		return fmt.Errorf("insert chart point: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChartPoints(ctx context.Context, f ChartFilter) ([]model.ChartPoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, timestamp, yes_price::TEXT, no_price::TEXT, volume::TEXT
		 FROM chart_points
		 WHERE market_id = $1
		   AND ($2::TIMESTAMPTZ IS NULL OR timestamp >= $2)
		   AND ($3::TIMESTAMPTZ IS NULL OR timestamp <= $3)
		 ORDER BY timestamp, id
		 LIMIT $4`,
		f.MarketID, f.From, f.To, ClampLimit(f.Limit, MaxPageSize, MaxPageSize))
	if err != nil {
		return nil, fmt.Errorf("list chart points: %w", err)
	}
	defer rows.Close()

	points := []model.ChartPoint{}
	for rows.Next() {
		var p model.ChartPoint
		var yesS, noS, volS string
		if err := rows.Scan(&p.MarketID, &p.Timestamp, &yesS, &noS, &volS); err != nil {
			return nil, err
		}
		p.YesPrice = parseDecimal(yesS)
		p.NoPrice = parseDecimal(noS)
		p.Volume = parseDecimal(volS)
		points = append(points, p)
	}
	return points, rows.Err()
}

// --- Platform stats ---

func (s *PostgresStore) GetPlatformStats(ctx context.Context) (*model.PlatformStats, error) {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO platform_stats (id) VALUES (1) ON CONFLICT (id) DO NOTHING`); err != nil {
		return nil, fmt.Errorf("ensure platform stats: %w", err)
	}

	var st model.PlatformStats
	var feesS, volS, poolS string
	err := s.pool.QueryRow(ctx,
		`SELECT total_fees::TEXT, total_volume::TEXT, total_markets, total_users,
		        total_bets, pool_balance::TEXT, updated_at
		 FROM platform_stats WHERE id = 1`).
		Scan(&feesS, &volS, &st.TotalMarkets, &st.TotalUsers, &st.TotalBets, &poolS, &st.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get platform stats: %w", err)
	}
	st.TotalFees = parseDecimal(feesS)
	st.TotalVolume = parseDecimal(volS)
	st.PoolBalance = parseDecimal(poolS)
	return &st, nil
}

// bumpStats upserts the singleton stats row with an increment.
func bumpStats(ctx context.Context, q querier, d model.StatsDelta) error {
	_, err := q.Exec(ctx,
		`INSERT INTO platform_stats AS ps
		        (id, total_fees, total_volume, total_markets, total_users, total_bets, pool_balance, updated_at)
		 VALUES (1, $1::NUMERIC, $2::NUMERIC, $3, $4, $5, $6::NUMERIC, NOW())
		 ON CONFLICT (id) DO UPDATE SET
		        total_fees    = ps.total_fees + EXCLUDED.total_fees,
		        total_volume  = ps.total_volume + EXCLUDED.total_volume,
		        total_markets = ps.total_markets + EXCLUDED.total_markets,
		        total_users   = ps.total_users + EXCLUDED.total_users,
		        total_bets    = ps.total_bets + EXCLUDED.total_bets,
		        pool_balance  = ps.pool_balance + EXCLUDED.pool_balance,
		        updated_at    = NOW()`,
		d.Fees.String(), d.Volume.String(), d.Markets, d.Users, d.Bets, d.Pool.String(),
	)
	if err != nil {
		return fmt.Errorf("bump platform stats: %w", err)
	}
	return nil
}

// --- Scanning helpers ---

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var balS, volS, winS string
	if err := row.Scan(&u.Wallet, &balS, &volS, &winS, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Balance = parseDecimal(balS)
	u.TotalVolume = parseDecimal(volS)
	u.TotalWinnings = parseDecimal(winS)
	return &u, nil
}

func scanMarket(row pgx.Row) (*model.Market, error) {
	var m model.Market
	var status string
	var outcome *string
	var yesAmt, noAmt, yesP, noP, vol string

	if err := row.Scan(&m.ID, &m.Title, &m.Description, &m.ImageURL, &m.Category, &status,
		&yesAmt, &noAmt, &yesP, &noP,
		&outcome, &m.Creator, &m.CreatedAt, &m.ClosesAt, &m.ResolvedAt, &vol); err != nil {
		return nil, err
	}

	m.Status = model.MarketStatus(status)
	if outcome != nil {
		o := model.Outcome(*outcome)
		m.Outcome = &o
	}
	m.TotalYesAmount = parseDecimal(yesAmt)
	m.TotalNoAmount = parseDecimal(noAmt)
	m.YesPrice = parseDecimal(yesP)
	m.NoPrice = parseDecimal(noP)
	m.Volume24h = parseDecimal(vol)
	return &m, nil
}

func scanWager(row pgx.Row) (*model.Wager, error) {
	var w model.Wager
	var prediction string
	var amtS, priceS, potS, actS, feeS string

	if err := row.Scan(&w.ID, &w.MarketID, &w.Wallet, &amtS, &prediction,
		&priceS, &potS, &actS, &feeS,
		&w.TxRef, &w.PlacedAt, &w.IsSettled, &w.Applied); err != nil {
		return nil, err
	}

	w.Prediction = model.Outcome(prediction)
	w.Amount = parseDecimal(amtS)
	w.PriceAtBet = parseDecimal(priceS)
	w.PotentialPayout = parseDecimal(potS)
	w.ActualPayout = parseDecimal(actS)
	w.PlatformFee = parseDecimal(feeS)
	return &w, nil
}

func scanWagers(rows pgx.Rows) ([]model.Wager, error) {
	defer rows.Close()

	var wagers []model.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, err
		}
		wagers = append(wagers, *w)
	}
	return wagers, rows.Err()
}

// parseDecimal converts a NUMERIC::TEXT column. The column types guarantee
// a valid numeric literal.
func parseDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func decPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func outcomePtr(o *model.Outcome) *string {
	if o == nil {
		return nil
	}
	s := string(*o)
	return &s
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
