package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/apperr"
	"github.com/atmx/wager-engine/internal/store"
	"github.com/atmx/wager-engine/internal/wager"
)

// placeWagerRequest is the JSON body for POST /wagers. The price, payout
// and fee fields are required; a missing one fails with invalid_number.
type placeWagerRequest struct {
	MarketID        int64   `json:"market_id"`
	Wallet          string  `json:"wallet"`
	Amount          Number  `json:"amount"`
	Prediction      string  `json:"prediction"`
	PriceAtBet      *Number `json:"price_at_bet"`
	PotentialPayout *Number `json:"potential_payout"`
	PlatformFee     *Number `json:"platform_fee"`
	TxRef           string  `json:"tx_ref"`
}

func required(n *Number, field string) (decimal.Decimal, error) {
	if n == nil {
		return decimal.Zero, apperr.Validation("invalid_number", field+" is required")
	}
	return n.Decimal, nil
}

func (s *Server) placeWager(w http.ResponseWriter, r *http.Request) {
	var req placeWagerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	in := wager.PlaceInput{
		MarketID:   req.MarketID,
		Wallet:     req.Wallet,
		Amount:     req.Amount.Decimal,
		Prediction: req.Prediction,
		TxRef:      req.TxRef,
	}
	var err error
	if in.PriceAtBet, err = required(req.PriceAtBet, "price_at_bet"); err != nil {
		writeError(w, r, err)
		return
	}
	if in.PotentialPayout, err = required(req.PotentialPayout, "potential_payout"); err != nil {
		writeError(w, r, err)
		return
	}
	if in.PlatformFee, err = required(req.PlatformFee, "platform_fee"); err != nil {
		writeError(w, r, err)
		return
	}

	wg, err := s.recorder.PlaceWager(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wg)
}

func (s *Server) listWagers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	marketID, err := queryInt64Ptr(q, "market_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	settled, err := queryBoolPtr(q, "settled")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(q, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(q, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}

	wagers, err := s.recorder.ListWagers(r.Context(), store.WagerFilter{
		MarketID: marketID,
		Wallet:   q.Get("wallet"),
		Settled:  settled,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wagers": wagers,
		"count":  len(wagers),
	})
}
