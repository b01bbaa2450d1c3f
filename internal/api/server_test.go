package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/wager-engine/internal/aggregate"
	"github.com/atmx/wager-engine/internal/api"
	"github.com/atmx/wager-engine/internal/blob"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/pricing"
	"github.com/atmx/wager-engine/internal/settlement"
	"github.com/atmx/wager-engine/internal/store"
	"github.com/atmx/wager-engine/internal/tracker"
	"github.com/atmx/wager-engine/internal/wager"
)

type testEnv struct {
	store  store.Store
	images *blob.Memory
	router chi.Router
}

// newTestEnv wires every service over an in-memory store and image store.
func newTestEnv(t *testing.T, opts api.Options) *testEnv {
	t.Helper()
	return newTestEnvWith(t, store.NewMemoryStore(), blob.NewMemory("https://cdn.test"), opts)
}

func newTestEnvWith(t *testing.T, st store.Store, images blob.ImageStore, opts api.Options) *testEnv {
	t.Helper()
	tr := tracker.New(st, pricing.PoolPricer{}, nil)
	srv := api.New(api.Deps{
		Store:      st,
		Recorder:   wager.NewRecorder(st, tr, nil),
		Tracker:    tr,
		Settlement: settlement.NewEngine(st, nil, nil),
		Aggregate:  aggregate.NewEngine(st),
		Images:     images,
	}, opts)
	env := &testEnv{store: st, router: srv.Router()}
	if m, ok := images.(*blob.Memory); ok {
		env.images = m
	}
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createMarket(t *testing.T, title string) model.Market {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/markets", map[string]any{"title": title, "category": "sports"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var m model.Market
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func (e *testEnv) placeWager(t *testing.T, marketID int64, wallet, amount, prediction string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/v1/wagers", map[string]any{
		"market_id":        marketID,
		"wallet":           wallet,
		"amount":           amount,
		"prediction":       prediction,
		"price_at_bet":     "0.5",
		"potential_payout": "20",
		"platform_fee":     "0.2",
	})
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error.Code
}

// --- Health ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t, api.Options{Network: "testnet", StoreKind: "memory", Pricing: "pool"})

	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "wager-engine", body["service"])
	assert.Equal(t, "testnet", body["network"])
	assert.Equal(t, "memory", body["store"])
}

// --- Wagers ---

func TestPlaceWager_UpdatesMarket(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	m := env.createMarket(t, "Will it rain?")
	assert.Equal(t, model.StatusActive, m.Status)
	assert.Equal(t, "0.5", m.YesPrice.String())

	w := env.placeWager(t, m.ID, "alice", "30", "yes")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = env.placeWager(t, m.ID, "bob", "10", "NO")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var placed model.Wager
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &placed))
	assert.Equal(t, model.OutcomeNo, placed.Prediction)
	assert.Equal(t, "bob", placed.Wallet)

	w = env.do(t, http.MethodGet, "/api/v1/markets/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.Market
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "30", got.TotalYesAmount.String())
	assert.Equal(t, "10", got.TotalNoAmount.String())
	assert.Equal(t, "0.75", got.YesPrice.String())
	assert.Equal(t, "0.25", got.NoPrice.String())
}

// wagerBody is a valid placement body for marketID with overrides applied.
// A nil override removes the field.
func wagerBody(marketID int64, overrides map[string]any) map[string]any {
	body := map[string]any{
		"market_id":        marketID,
		"wallet":           "a",
		"amount":           "1",
		"prediction":       "yes",
		"price_at_bet":     "0.5",
		"potential_payout": "2",
		"platform_fee":     "0",
	}
	for k, v := range overrides {
		if v == nil {
			delete(body, k)
			continue
		}
		body[k] = v
	}
	return body
}

func TestPlaceWager_Errors(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	m := env.createMarket(t, "m")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"empty body", "", http.StatusBadRequest, "invalid_body"},
		{"malformed", "{", http.StatusBadRequest, "invalid_body"},
		{"bad number", wagerBody(m.ID, map[string]any{"amount": "ten"}), http.StatusBadRequest, "invalid_number"},
		{"zero amount", wagerBody(m.ID, map[string]any{"amount": 0}), http.StatusBadRequest, "invalid_amount"},
		{"no wallet", wagerBody(m.ID, map[string]any{"wallet": nil}), http.StatusBadRequest, "wallet_required"},
		{"bad prediction", wagerBody(m.ID, map[string]any{"prediction": "maybe"}), http.StatusBadRequest, "invalid_prediction"},
		{"unknown market", wagerBody(999, nil), http.StatusNotFound, "market_not_found"},
		{"missing price", wagerBody(m.ID, map[string]any{"price_at_bet": nil}), http.StatusBadRequest, "invalid_number"},
		{"missing payout", wagerBody(m.ID, map[string]any{"potential_payout": nil}), http.StatusBadRequest, "invalid_number"},
		{"missing fee", wagerBody(m.ID, map[string]any{"platform_fee": nil}), http.StatusBadRequest, "invalid_number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/wagers", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}

	w := env.do(t, http.MethodGet, "/api/v1/wagers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
}

func TestPlaceWager_NumberBounds(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	m := env.createMarket(t, "m")

	rejected := []any{
		"1e10000000",
		"1e39",
		"1e-10000000",
		"0.0000000000000000001",
		"123456789012345678901234567890123456789",
		"1" + strings.Repeat("0", 100),
	}
	for _, amount := range rejected {
		start := time.Now()
		w := env.do(t, http.MethodPost, "/api/v1/wagers", wagerBody(m.ID, map[string]any{"amount": amount}))
		assert.Equal(t, http.StatusBadRequest, w.Code, amount)
		assert.Equal(t, "invalid_number", errorCode(t, w), amount)
		assert.Less(t, time.Since(start), time.Second, amount)
	}

	// JSON number literals go through the same bounds.
	w := env.do(t, http.MethodPost, "/api/v1/wagers", `{"market_id":1,"wallet":"a","amount":1e10000000,"prediction":"yes","price_at_bet":0.5,"potential_payout":2,"platform_fee":0}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_number", errorCode(t, w))

	for _, amount := range []any{"1e3", "0.000000000000000001", "12345678901234567890.123456789012345678", 2.5} {
		w := env.do(t, http.MethodPost, "/api/v1/wagers", wagerBody(m.ID, map[string]any{"amount": amount}))
		assert.Equal(t, http.StatusCreated, w.Code, "%v: %s", amount, w.Body.String())
	}
}

func TestPlaceWager_ClosedMarket(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	m := env.createMarket(t, "m")

	w := env.do(t, http.MethodPost, "/api/v1/markets/1/close", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.placeWager(t, m.ID, "alice", "5", "yes")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "market_not_active", errorCode(t, w))
}

func TestListWagers_Filters(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	a := env.createMarket(t, "a")
	b := env.createMarket(t, "b")
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, env.placeWager(t, a.ID, "alice", "1", "yes").Code)
	}
	require.Equal(t, http.StatusCreated, env.placeWager(t, b.ID, "bob", "1", "no").Code)

	var list struct {
		Wagers []model.Wager `json:"wagers"`
		Count  int           `json:"count"`
	}
	w := env.do(t, http.MethodGet, "/api/v1/wagers?market_id=1&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	w = env.do(t, http.MethodGet, "/api/v1/wagers?wallet=bob&settled=false&limit=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, b.ID, list.Wagers[0].MarketID)

	for _, q := range []string{"market_id=x", "settled=maybe", "limit=ten", "offset=1.5"} {
		w = env.do(t, http.MethodGet, "/api/v1/wagers?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Equal(t, "invalid_query", errorCode(t, w), q)
	}
}

// --- Markets ---

func TestCreateMarket_TitleRequired(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	w := env.do(t, http.MethodPost, "/api/v1/markets", map[string]any{"title": "   "})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "title_required", errorCode(t, w))
}

func TestGetMarket_BadID(t *testing.T) {
	env := newTestEnv(t, api.Options{})

	w := env.do(t, http.MethodGet, "/api/v1/markets/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_market_id", errorCode(t, w))

	w = env.do(t, http.MethodGet, "/api/v1/markets/42", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "market_not_found", errorCode(t, w))
}

func TestListMarkets_QueryValidation(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	env.createMarket(t, "a")

	w := env.do(t, http.MethodGet, "/api/v1/markets?status=active&sort=volume_24h", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	for _, q := range []string{"status=open", "sort=random"} {
		w = env.do(t, http.MethodGet, "/api/v1/markets?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Equal(t, "invalid_query", errorCode(t, w), q)
	}
}

func TestTrendingMarkets(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	quiet := env.createMarket(t, "quiet")
	busy := env.createMarket(t, "busy")
	require.Equal(t, http.StatusCreated, env.placeWager(t, quiet.ID, "a", "1", "yes").Code)
	require.Equal(t, http.StatusCreated, env.placeWager(t, busy.ID, "b", "9", "yes").Code)

	w := env.do(t, http.MethodGet, "/api/v1/markets/trending?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Markets []model.Market `json:"markets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Markets, 1)
	assert.Equal(t, busy.ID, body.Markets[0].ID)
}

func TestResolveMarket(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	m := env.createMarket(t, "m")
	require.Equal(t, http.StatusCreated, env.placeWager(t, m.ID, "alice", "10", "yes").Code)
	require.Equal(t, http.StatusCreated, env.placeWager(t, m.ID, "bob", "10", "no").Code)

	w := env.do(t, http.MethodPost, "/api/v1/markets/1/resolve", map[string]string{"outcome": "maybe"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_outcome", errorCode(t, w))

	w = env.do(t, http.MethodPost, "/api/v1/markets/1/resolve", map[string]string{"outcome": "yes"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res settlement.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, model.StatusResolved, res.Market.Status)
	require.NotNil(t, res.Market.Outcome)
	assert.Equal(t, model.OutcomeYes, *res.Market.Outcome)
	require.Len(t, res.SettledWagers, 2)
	for _, wg := range res.SettledWagers {
		assert.True(t, wg.IsSettled)
		if wg.Prediction == model.OutcomeYes {
			assert.Equal(t, "20", wg.ActualPayout.String())
		} else {
			assert.True(t, wg.ActualPayout.IsZero())
		}
	}

	w = env.do(t, http.MethodPost, "/api/v1/markets/1/resolve", map[string]string{"outcome": "no"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_resolved", errorCode(t, w))

	w = env.do(t, http.MethodPost, "/api/v1/markets/9/resolve", map[string]string{"outcome": "no"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestReconcileMarket(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	env.createMarket(t, "m")

	w := env.do(t, http.MethodPost, "/api/v1/markets/1/reconcile", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"market_id":1,"applied":0}`, w.Body.String())
}

// --- Chart ---

func TestChart_RecordAndQuery(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	env.createMarket(t, "m")

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodPost, "/api/v1/markets/1/chart", map[string]any{
			"yes_price": "0.6",
			"no_price":  "0.4",
			"volume":    10 * (i + 1),
			"timestamp": base.Add(time.Duration(i) * time.Hour),
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	var body struct {
		Points []model.ChartPoint `json:"points"`
		Count  int                `json:"count"`
	}
	from := base.Add(time.Hour).Format(time.RFC3339)
	w := env.do(t, http.MethodGet, "/api/v1/markets/1/chart?from="+from, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	to := base.Add(time.Hour).Unix()
	w = env.do(t, http.MethodGet, "/api/v1/markets/1/chart?to="+jsonInt(to), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	// Inverted window.
	w = env.do(t, http.MethodGet, "/api/v1/markets/1/chart?from="+base.Add(2*time.Hour).Format(time.RFC3339)+"&to="+base.Format(time.RFC3339), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.Points)

	w = env.do(t, http.MethodGet, "/api/v1/markets/1/chart?from=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_time", errorCode(t, w))
}

func TestChart_PriceSum(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	env.createMarket(t, "m")

	w := env.do(t, http.MethodPost, "/api/v1/markets/1/chart", map[string]any{
		"yes_price": 0.7, "no_price": 0.7, "volume": 0,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "price_sum", errorCode(t, w))
}

// --- Users ---

func TestUsers(t *testing.T) {
	env := newTestEnv(t, api.Options{})

	w := env.do(t, http.MethodPost, "/api/v1/users", map[string]any{"wallet": "alice", "balance": "100"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/users", map[string]any{"wallet": "alice"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "wallet_exists", errorCode(t, w))

	w = env.do(t, http.MethodPatch, "/api/v1/users/alice", map[string]any{"total_winnings": "12.5"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var u model.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	assert.Equal(t, "12.5", u.TotalWinnings.String())
	assert.Equal(t, "100", u.Balance.String())

	w = env.do(t, http.MethodPatch, "/api/v1/users/alice", map[string]any{"balance": -1})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_balance", errorCode(t, w))

	w = env.do(t, http.MethodGet, "/api/v1/users/nobody", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "user_not_found", errorCode(t, w))
}

// --- Aggregates ---

func TestPortfolioAndLeaderboard(t *testing.T) {
	env := newTestEnv(t, api.Options{})
	m := env.createMarket(t, "m")
	require.Equal(t, http.StatusCreated, env.placeWager(t, m.ID, "alice", "10", "yes").Code)
	require.Equal(t, http.StatusCreated, env.placeWager(t, m.ID, "bob", "10", "no").Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/markets/1/resolve", map[string]string{"outcome": "yes"}).Code)

	w := env.do(t, http.MethodGet, "/api/v1/portfolio/alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p model.Portfolio
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "10", p.Metrics.TotalInvested.String())
	assert.Equal(t, "20", p.Metrics.TotalReturns.String())
	require.Len(t, p.Wagers, 1)
	assert.Equal(t, "m", p.Wagers[0].MarketTitle)

	w = env.do(t, http.MethodGet, "/api/v1/portfolio/nobody", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/leaderboard?sort_by=profit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var lb struct {
		Leaderboard []model.LeaderboardEntry `json:"leaderboard"`
		Count       int                      `json:"count"`
		SortBy      string                   `json:"sort_by"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lb))
	require.Equal(t, 2, lb.Count)
	assert.Equal(t, "profit", lb.SortBy)
	assert.Equal(t, "alice", lb.Leaderboard[0].Wallet)
	assert.Equal(t, 1, lb.Leaderboard[0].Rank)

	w = env.do(t, http.MethodGet, "/api/v1/leaderboard", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lb))
	assert.Equal(t, "winnings", lb.SortBy)

	w = env.do(t, http.MethodGet, "/api/v1/leaderboard?sort_by=luck", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_sort", errorCode(t, w))

	w = env.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sum aggregate.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, int64(2), sum.TotalBets)
	assert.Equal(t, 0, sum.ActiveMarkets)
}

// --- Image upload ---

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func (e *testEnv) upload(t *testing.T, path string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "pic.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t, api.Options{MaxUploadBytes: 1024})
	env.createMarket(t, "m")

	w := env.upload(t, "/api/v1/markets/1/image", pngHeader)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var m model.Market
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	require.True(t, strings.HasPrefix(m.ImageURL, "https://cdn.test/markets/1/"), m.ImageURL)
	assert.True(t, strings.HasSuffix(m.ImageURL, ".png"))

	stored, ok := env.images.Object(strings.TrimPrefix(m.ImageURL, "https://cdn.test/"))
	require.True(t, ok)
	assert.Equal(t, pngHeader, stored)

	w = env.upload(t, "/api/v1/markets/1/image", []byte("just some text"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unsupported_image", errorCode(t, w))

	w = env.upload(t, "/api/v1/markets/1/image", append(pngHeader, make([]byte, 2048)...))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "image_too_large", errorCode(t, w))

	w = env.upload(t, "/api/v1/markets/7/image", pngHeader)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadImage_Disabled(t *testing.T) {
	env := newTestEnvWith(t, store.NewMemoryStore(), nil, api.Options{})
	env.createMarket(t, "m")

	w := env.upload(t, "/api/v1/markets/1/image", pngHeader)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "uploads_disabled", errorCode(t, w))
}

// --- Middleware ---

func TestRateLimit_WritesOnly(t *testing.T) {
	env := newTestEnv(t, api.Options{RateLimit: 1, RateBurst: 1})

	env.createMarket(t, "m")
	w := env.do(t, http.MethodPost, "/api/v1/markets", map[string]any{"title": "again"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", errorCode(t, w))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/markets", nil).Code)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, api.Options{CORSOrigins: []string{"https://app.test"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/markets", nil)
	req.Header.Set("Origin", "https://app.test")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.test", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/markets", nil)
	req.Header.Set("Origin", "https://evil.test")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

// failingStore fails market listing to exercise the store error mapping.
type failingStore struct {
	*store.MemoryStore
}

func (failingStore) ListMarkets(context.Context, store.MarketFilter) ([]model.Market, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailure_Is503(t *testing.T) {
	env := newTestEnvWith(t, failingStore{store.NewMemoryStore()}, nil, api.Options{})

	w := env.do(t, http.MethodGet, "/api/v1/markets", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "store_error", errorCode(t, w))
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
