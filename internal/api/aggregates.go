package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/wager-engine/internal/aggregate"
)

func (s *Server) getPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.aggregate.GetPortfolio(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sortBy := q.Get("sort_by")
	entries, err := s.aggregate.GetLeaderboard(r.Context(), sortBy, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	key, _ := aggregate.ParseSortKey(sortBy)
	writeJSON(w, http.StatusOK, map[string]any{
		"leaderboard": entries,
		"count":       len(entries),
		"sort_by":     key,
	})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	sum, err := s.aggregate.PlatformSummary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
