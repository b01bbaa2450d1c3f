package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/apperr"
	"github.com/atmx/wager-engine/internal/blob"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/store"
	"github.com/atmx/wager-engine/internal/tracker"
)

const defaultMarketLimit = 50

var half = decimal.NewFromFloat(0.5)

// createMarketRequest is the JSON body for POST /markets.
type createMarketRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Creator     string     `json:"creator"`
	ClosesAt    *time.Time `json:"closes_at"`
}

func (s *Server) createMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, r, apperr.Validation("title_required", "title is required"))
		return
	}

	m := &model.Market{
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		Creator:     strings.TrimSpace(req.Creator),
		Status:      model.StatusActive,
		YesPrice:    half,
		NoPrice:     half,
		CreatedAt:   time.Now().UTC(),
		ClosesAt:    req.ClosesAt,
	}
	if err := s.store.CreateMarket(r.Context(), m); err != nil {
		writeError(w, r, apperr.Store("create market", err))
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.MarketFilter{Category: strings.TrimSpace(q.Get("category"))}

	switch status := model.MarketStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))); status {
	case "", model.StatusActive, model.StatusClosed, model.StatusResolved:
		f.Status = status
	default:
		writeError(w, r, apperr.Validation("invalid_query", "status must be active, closed or resolved"))
		return
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("sort"))) {
	case "", "newest":
		f.OrderBy = store.OrderNewest
	case "volume_24h", "trending":
		f.OrderBy = store.OrderVolume24h
	default:
		writeError(w, r, apperr.Validation("invalid_query", "sort must be newest or volume_24h"))
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
	f.Limit = store.ClampLimit(limit, defaultMarketLimit, store.MaxPageSize)
	f.Offset = max(offset, 0)

	markets, err := s.store.ListMarkets(r.Context(), f)
	if err != nil {
		writeError(w, r, apperr.Store("list markets", err))
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets, "count": len(markets)})
}

func (s *Server) trendingMarkets(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query(), "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	markets, err := s.tracker.TrendingMarkets(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets, "count": len(markets)})
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.loadMarket(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

func (s *Server) resolveMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.settler.ResolveMarket(r.Context(), id, req.Outcome)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) closeMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.settler.CloseMarket(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) reconcileMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.tracker.ReconcileMarket(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "applied": n})
}

// chartPointRequest is the JSON body for POST /markets/{id}/chart.
type chartPointRequest struct {
	YesPrice  Number     `json:"yes_price"`
	NoPrice   Number     `json:"no_price"`
	Volume    Number     `json:"volume"`
	Timestamp *time.Time `json:"timestamp"`
}

func (s *Server) recordChartPoint(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req chartPointRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.tracker.RecordChartPoint(r.Context(), tracker.ChartInput{
		MarketID:  id,
		YesPrice:  req.YesPrice.Decimal,
		NoPrice:   req.NoPrice.Decimal,
		Volume:    req.Volume.Decimal,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) queryChart(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	from, err := queryTime(q, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := queryTime(q, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(q, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}

	points, err := s.tracker.QueryChartRange(r.Context(), id, from, to, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"points":    points,
		"count":     len(points),
	})
}

// uploadImage stores a multipart "image" field and records its URL.
func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "uploads_disabled", "image uploads are not configured")
		return
	}
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.loadMarket(r, id); err != nil {
		writeError(w, r, err)
		return
	}

	// Leave room for multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+64<<10)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, imageTooLarge())
			return
		}
		writeError(w, r, apperr.Validation("invalid_body", "expected multipart form with an image field"))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, r, apperr.Validation("invalid_body", "image field is required"))
		return
	}
	defer file.Close()
	if header.Size > s.opts.MaxUploadBytes {
		writeError(w, r, imageTooLarge())
		return
	}

	// The declared part type is not trusted; sniff the leading bytes.
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, r, apperr.Validation("invalid_body", "could not read image"))
		return
	}
	head = head[:n]
	contentType := http.DetectContentType(head)

	url, err := s.images.PutImage(r.Context(), id, io.MultiReader(bytes.NewReader(head), file), contentType)
	if err != nil {
		if errors.Is(err, blob.ErrUnsupportedType) {
			writeError(w, r, apperr.Validation("unsupported_image", "image must be png, jpeg, gif or webp"))
			return
		}
		writeError(w, r, apperr.Store("put image", err))
		return
	}
	if err := s.store.SetMarketImage(r.Context(), id, url); err != nil {
		writeError(w, r, apperr.Store("set market image", err))
		return
	}

	m, err := s.loadMarket(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) loadMarket(r *http.Request, id int64) (*model.Market, error) {
	m, err := s.store.GetMarket(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("market_not_found", "market not found")
		}
		return nil, apperr.Store("get market", err)
	}
	return m, nil
}

func imageTooLarge() error {
	return apperr.Validation("image_too_large", "image exceeds the upload size limit")
}
