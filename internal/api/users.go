package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/apperr"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/store"
)

type createUserRequest struct {
	Wallet  string  `json:"wallet"`
	Balance *Number `json:"balance"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	wallet := strings.TrimSpace(req.Wallet)
	if wallet == "" {
		writeError(w, r, apperr.Validation("wallet_required", "wallet is required"))
		return
	}
	balance := decimal.Zero
	if req.Balance != nil {
		if req.Balance.IsNegative() {
			writeError(w, r, apperr.Validation("invalid_balance", "balance must not be negative"))
			return
		}
		balance = req.Balance.Decimal
	}

	now := time.Now().UTC()
	u := &model.User{Wallet: wallet, Balance: balance, CreatedAt: now, UpdatedAt: now}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			writeError(w, r, apperr.Conflict("wallet_exists", "wallet is already registered"))
			return
		}
		writeError(w, r, apperr.Store("create user", err))
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.GetUser(r.Context(), strings.TrimSpace(chi.URLParam(r, "wallet")))
	if err != nil {
		writeError(w, r, userErr("get user", err))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// updateUserRequest carries explicit overrides; absent fields are kept.
type updateUserRequest struct {
	Balance       *Number `json:"balance"`
	TotalVolume   *Number `json:"total_volume"`
	TotalWinnings *Number `json:"total_winnings"`
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var patch store.UserPatch
	fields := []struct {
		in   *Number
		out  **decimal.Decimal
		code string
		name string
	}{
		{req.Balance, &patch.Balance, "invalid_balance", "balance"},
		{req.TotalVolume, &patch.TotalVolume, "invalid_volume", "total_volume"},
		{req.TotalWinnings, &patch.TotalWinnings, "invalid_winnings", "total_winnings"},
	}
	for _, f := range fields {
		if f.in == nil {
			continue
		}
		if f.in.IsNegative() {
			writeError(w, r, apperr.Validation(f.code, f.name+" must not be negative"))
			return
		}
		v := f.in.Decimal
		*f.out = &v
	}

	u, err := s.store.UpdateUser(r.Context(), strings.TrimSpace(chi.URLParam(r, "wallet")), patch)
	if err != nil {
		writeError(w, r, userErr("update user", err))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func userErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("user_not_found", "user not found")
	}
	return apperr.Store(op, err)
}
